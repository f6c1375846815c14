package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/authz"
)

func main() {
	_ = godotenv.Load()
	api := getenv("OPENFGA_API_URL", "http://localhost:8081")
	store := os.Getenv("OPENFGA_STORE_ID")
	if store == "" {
		log.Fatal("OPENFGA_STORE_ID not set. Create a store and export its ID.")
	}
	storefront := authz.StorefrontObject(getenv("SEED_STOREFRONT", "acme-main"))
	client := authz.NewOpenFGAClient(api, store)
	ctx := context.Background()

	tuples := []authz.Tuple{
		{User: "user:alice", Relation: authz.RelationCanCheckout, Object: storefront},
		{User: "user:bob", Relation: authz.RelationCanCheckout, Object: storefront},
	}
	if err := client.Write(ctx, tuples); err != nil {
		log.Fatalf("write tuples: %v", err)
	}
	log.Println("seeded tuples")

	allowed, err := client.Check(ctx, "user:alice", storefront, authz.RelationCanCheckout)
	if err != nil {
		log.Fatalf("check alice checkout: %v", err)
	}
	log.Printf("Check alice checkout -> %v", allowed)
	if !allowed {
		os.Exit(1)
	}

	denied, err := client.Check(ctx, "user:charlie", storefront, authz.RelationCanCheckout)
	if err != nil {
		log.Fatalf("check charlie checkout: %v", err)
	}
	log.Printf("Check charlie checkout -> %v", denied)
	if denied {
		os.Exit(1)
	}

	log.Println("Authz seed verification passed")
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
