package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "storefront-checkout", cfg.ServiceName)
	assert.Equal(t, ":3000", cfg.HTTP.Addr)
	assert.Equal(t, 2, cfg.Checkout.MethodCodeSegments)
	assert.Equal(t, 60*time.Second, cfg.Checkout.CaptureTimeout)
	assert.Equal(t, "checkout.v1", cfg.Kafka.CheckoutTopic)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("CHECKOUT_METHOD_CODE_SEGMENTS", "3")
	t.Setenv("CHECKOUT_CAPTURE_TIMEOUT", "15s")
	t.Setenv("SHOP_API_BASE_URL", "https://shop.example")
	t.Setenv("KAFKA_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3, cfg.Checkout.MethodCodeSegments)
	assert.Equal(t, 15*time.Second, cfg.Checkout.CaptureTimeout)
	assert.Equal(t, "https://shop.example", cfg.ShopAPI.BaseURL)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoadRejectsBadValues(t *testing.T) {
	for key, val := range map[string]string{
		"CHECKOUT_DB_PORT":              "abc",
		"CHECKOUT_CAPTURE_TIMEOUT":      "soon",
		"CHECKOUT_METHOD_CODE_SEGMENTS": "0",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
