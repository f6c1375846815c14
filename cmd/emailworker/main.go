package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	appconfig "github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/config"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/email"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/events"
)

func main() {
	_ = godotenv.Load()
	cfg, err := appconfig.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log.Println("Email worker starting...")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.CheckoutTopic, cfg.Kafka.EmailGroup, log.Default())
	defer consumer.Close()

	// Customer addresses live in the storefront; for demo every mail goes to one inbox.
	recipient := cfg.Email.DemoRecipient
	notifier := email.NewNotifier(email.PickSender(), func(string) string { return recipient }, log.Default())

	if err := consumer.Run(ctx, notifier); err != nil {
		log.Fatalf("[email-worker] %v", err)
	}
	log.Println("[email-worker] stopped")
}
