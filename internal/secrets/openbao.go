package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrOpenBaoSecretNotFound = errors.New("openbao secret path not found")

// OpenBaoConfig locates a KV v2 secret.
type OpenBaoConfig struct {
	Addr       string
	Token      string
	Mount      string
	SecretPath string
	Namespace  string
}

// Enabled reports whether enough is configured to read the secret.
func (c OpenBaoConfig) Enabled() bool {
	return c.Addr != "" && c.Token != "" && c.SecretPath != ""
}

// OpenBaoConfigFromEnv reads OPENBAO_* variables.
func OpenBaoConfigFromEnv() OpenBaoConfig {
	mount := strings.Trim(strings.TrimSpace(os.Getenv("OPENBAO_MOUNT")), "/")
	if mount == "" {
		mount = "secret"
	}
	return OpenBaoConfig{
		Addr:       strings.TrimRight(strings.TrimSpace(os.Getenv("OPENBAO_ADDR")), "/"),
		Token:      os.Getenv("OPENBAO_TOKEN"),
		Mount:      mount,
		SecretPath: strings.Trim(strings.TrimSpace(os.Getenv("OPENBAO_SECRET_PATH")), "/"),
		Namespace:  strings.TrimSpace(os.Getenv("OPENBAO_NAMESPACE")),
	}
}

// BootstrapFromOpenBao loads secrets such as CHECKOUT_DB_PASSWORD or REDIS_PASSWORD from an
// OpenBao KV path and exports them as environment variables. Without OpenBao configuration
// it is a no-op.
func BootstrapFromOpenBao(ctx context.Context) error {
	cfg := OpenBaoConfigFromEnv()
	if !cfg.Enabled() {
		return nil
	}
	values, err := Read(ctx, cfg)
	if err != nil {
		return err
	}
	for k, v := range values {
		_ = os.Setenv(k, v)
	}
	log.Printf("[Secrets] loaded %d values from %s/%s", len(values), cfg.Mount, cfg.SecretPath)
	return nil
}

// Read fetches the secret and flattens scalar values to strings. Nested values are skipped.
func Read(ctx context.Context, cfg OpenBaoConfig) (map[string]string, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		fmt.Sprintf("%s/v1/%s/data/%s", cfg.Addr, cfg.Mount, cfg.SecretPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create OpenBao request: %w", err)
	}

	req.Header.Set("X-Vault-Token", cfg.Token)
	if cfg.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", cfg.Namespace)
	}

	client := &http.Client{Timeout: 5 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call OpenBao: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrOpenBaoSecretNotFound
	default:
		return nil, fmt.Errorf("openbao request failed: status=%d", resp.StatusCode)
	}

	var payload struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode OpenBao response: %w", err)
	}

	out := make(map[string]string, len(payload.Data.Data))
	for k, v := range payload.Data.Data {
		switch val := v.(type) {
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case bool:
			out[k] = strconv.FormatBool(val)
		}
	}
	return out, nil
}
