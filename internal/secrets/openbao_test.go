package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFlattensScalars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/secret/data/checkout/dev", r.URL.Path)
		assert.Equal(t, "root", r.Header.Get("X-Vault-Token"))
		assert.Equal(t, "team", r.Header.Get("X-Vault-Namespace"))
		_, _ = w.Write([]byte(`{"data":{"data":{"CHECKOUT_DB_PASSWORD":"s3cret","REDIS_DB":2,"KAFKA_ENABLED":false,"nested":{"a":1}}}}`))
	}))
	defer srv.Close()

	got, err := Read(context.Background(), OpenBaoConfig{
		Addr: srv.URL, Token: "root", Mount: "secret", SecretPath: "checkout/dev", Namespace: "team",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"CHECKOUT_DB_PASSWORD": "s3cret",
		"REDIS_DB":             "2",
		"KAFKA_ENABLED":        "false",
	}, got)
}

func TestReadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Read(context.Background(), OpenBaoConfig{Addr: srv.URL, Token: "t", Mount: "secret", SecretPath: "x"})
	assert.ErrorIs(t, err, ErrOpenBaoSecretNotFound)
}

func TestBootstrapExportsEnv(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"data":{"SHOP_API_BASE_URL":"https://shop.internal"}}}`))
	}))
	defer srv.Close()

	t.Setenv("OPENBAO_ADDR", srv.URL+"/")
	t.Setenv("OPENBAO_TOKEN", "root")
	t.Setenv("OPENBAO_SECRET_PATH", "/checkout/dev/")
	t.Setenv("SHOP_API_BASE_URL", "")

	require.NoError(t, BootstrapFromOpenBao(context.Background()))
	assert.Equal(t, "https://shop.internal", os.Getenv("SHOP_API_BASE_URL"))
}

func TestBootstrapDisabled(t *testing.T) {
	t.Setenv("OPENBAO_ADDR", "")
	assert.False(t, OpenBaoConfigFromEnv().Enabled())
	assert.NoError(t, BootstrapFromOpenBao(context.Background()))
}
