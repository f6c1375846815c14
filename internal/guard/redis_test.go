package guard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
)

func setupTestRedis(t *testing.T) (*RedisClaimer, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisClaimer(client, time.Hour), mr
}

func TestClaimFirstCallerWins(t *testing.T) {
	claimer, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := claimer.Claim(ctx, checkout.ProviderStripeConnect, "cs_test_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = claimer.Claim(ctx, checkout.ProviderStripeConnect, "cs_test_1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = claimer.Claim(ctx, checkout.ProviderPayPalSmartButton, "cs_test_1")
	require.NoError(t, err)
	assert.True(t, ok, "claims are scoped per provider")

	assert.True(t, mr.Exists("checkout:capture:stripe_connect:cs_test_1"))
	assert.Equal(t, time.Hour, mr.TTL("checkout:capture:stripe_connect:cs_test_1"))
}

func TestClaimExpires(t *testing.T) {
	claimer, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := claimer.Claim(ctx, checkout.ProviderPayPalSmartButton, "5O1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Hour)
	ok, err = claimer.Claim(ctx, checkout.ProviderPayPalSmartButton, "5O1")
	require.NoError(t, err)
	assert.True(t, ok, "an expired claim can be taken again")
}

func TestClaimErrorWhenRedisDown(t *testing.T) {
	claimer, mr := setupTestRedis(t)
	mr.Close()

	_, err := claimer.Claim(context.Background(), checkout.ProviderStripeConnect, "cs_2")
	assert.Error(t, err)
}
