package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
)

// DefaultTTL keeps a claim long enough to outlive any hosted payment page.
const DefaultTTL = 24 * time.Hour

// RedisClaimer records capture identifiers so that every replica submits a given
// identifier at most once.
type RedisClaimer struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClaimer(client *redis.Client, ttl time.Duration) *RedisClaimer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisClaimer{client: client, ttl: ttl}
}

// Claim returns true for the first caller of a provider/id pair.
func (r *RedisClaimer) Claim(ctx context.Context, provider checkout.Provider, id string) (bool, error) {
	ok, err := r.client.SetNX(ctx, claimKey(provider, id), time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

func claimKey(provider checkout.Provider, id string) string {
	return fmt.Sprintf("checkout:capture:%s:%s", provider, id)
}
