package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/api"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/authz"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
	appconfig "github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/config"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/events"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/guard"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/secrets"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/shopapi"
	postgres "github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/storage/postgres"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/telemetry"
)

func newLogger(cfg appconfig.Config) *log.Logger {
	prefix := ""
	if cfg.ServiceName != "" {
		prefix = fmt.Sprintf("[%s] ", cfg.ServiceName)
	}
	logger := log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds)
	log.SetOutput(os.Stdout)
	log.SetFlags(logger.Flags())
	log.SetPrefix(prefix)
	return logger
}

func setupTelemetry(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger) {
	var shutdown func(context.Context) error
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = telemetry.InitTracer(ctx, cfg.ServiceName)
			if err != nil {
				logger.Printf("WARNING: tracing disabled: %v", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if shutdown != nil {
				return shutdown(ctx)
			}
			return nil
		},
	})
}

// newSQLDB provides the journal database. The service keeps running without it; callers
// check for nil.
func newSQLDB(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger) *sql.DB {
	logger.Printf("Connecting to PostgreSQL database %s@%s:%d", cfg.Database.Database, cfg.Database.Host, cfg.Database.Port)
	db, err := postgres.Open(cfg.Database)
	if err != nil {
		logger.Printf("WARNING: failed to connect to database, checkout journal disabled: %v", err)
		return nil
	}
	if err := postgres.Migrate(db); err != nil {
		logger.Printf("WARNING: migrations failed, checkout journal disabled: %v", err)
		_ = db.Close()
		return nil
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return db.Close() },
	})
	return db
}

func newRepository(db *sql.DB) *postgres.Repository {
	if db == nil {
		return nil
	}
	return postgres.NewRepository(db)
}

// newKafkaProducer constructs a shared Kafka producer and binds its lifecycle to Fx.
func newKafkaProducer(cfg appconfig.Config, lc fx.Lifecycle) *events.Producer {
	if !cfg.Kafka.Enabled {
		return nil
	}
	prod := events.NewProducer(cfg.Kafka.Brokers)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return prod.Close() },
	})
	return prod
}

// newRedisClient returns nil when REDIS_ADDR is unset; captures are then deduplicated
// per replica only.
func newRedisClient(cfg appconfig.Config, lc fx.Lifecycle, logger *log.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		logger.Printf("REDIS_ADDR not set, capture claims are local to this replica")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				logger.Printf("WARNING: redis ping failed, claims will fail closed: %v", err)
			}
			return nil
		},
		OnStop: func(context.Context) error { return client.Close() },
	})
	return client
}

func newShopClient(cfg appconfig.Config) (*shopapi.Client, error) {
	return shopapi.New(shopapi.Config{
		BaseURL: cfg.ShopAPI.BaseURL,
		Timeout: cfg.ShopAPI.Timeout,
	})
}

// newListener fans checkout events out to Kafka and the journal, whichever are available.
func newListener(cfg appconfig.Config, logger *log.Logger, prod *events.Producer, repo *postgres.Repository) checkout.Listener {
	var ls checkout.Listeners
	if prod != nil {
		ls = append(ls, events.NewPublisher(prod, cfg.Kafka.CheckoutTopic, logger))
	}
	if repo != nil {
		ls = append(ls, repo)
	}
	return ls
}

func newRegistry(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger) *api.Registry {
	reg := api.NewRegistry(cfg.Checkout.SessionTTL)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(time.Minute)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if n := reg.Sweep(); n > 0 {
							logger.Printf("expired %d idle checkout sessions", n)
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
	return reg
}

func newRouter(cfg appconfig.Config, logger *log.Logger, reg *api.Registry, shop *shopapi.Client, rdb *redis.Client, repo *postgres.Repository, listener checkout.Listener) http.Handler {
	opts := api.Options{
		Registry:       reg,
		Backends:       func(token string) api.Backend { return shop.WithToken(token) },
		Authz:          authz.NewFromEnv(),
		Listener:       listener,
		Checkout:       checkout.Config{MethodCodeSegments: cfg.Checkout.MethodCodeSegments},
		CaptureTimeout: cfg.Checkout.CaptureTimeout,
		Logger:         logger,
	}
	if rdb != nil {
		opts.Claimer = guard.NewRedisClaimer(rdb, guard.DefaultTTL)
	}
	if repo != nil {
		opts.Journal = repo
	}
	return api.NewRouter(opts)
}

func registerWebServer(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger, shutdowner fx.Shutdowner, handler http.Handler) {
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           withCORS(handler),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Printf("Checkout API listening on %s", cfg.HTTP.Addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Printf("Checkout API server error: %v", err)
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Principal, X-Storefront")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	_ = godotenv.Load()
	if err := secrets.BootstrapFromOpenBao(context.Background()); err != nil {
		log.Printf("WARNING: OpenBao bootstrap failed: %v", err)
	}

	app := fx.New(
		fx.Provide(
			appconfig.Load,
			newLogger,
			newSQLDB,
			newRepository,
			newKafkaProducer,
			newRedisClient,
			newShopClient,
			newListener,
			newRegistry,
			newRouter,
		),
		fx.Invoke(
			func(logger *log.Logger, cfg appconfig.Config) {
				logger.Printf("Starting %s...", cfg.ServiceName)
			},
			setupTelemetry,
			registerWebServer,
		),
	)

	app.Run()
}
