package internal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mahino/scalar"
)

// ValidateProviderConfig performs basic sanity checks on live reference
// provider settings.
func ValidateProviderConfig(cfg scalar.ProviderConfig) error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("provider endpoint not configured")
	}
	if cfg.Username != "" && cfg.Password == "" {
		return fmt.Errorf("provider username provided without password")
	}
	if cfg.Password != "" && cfg.Username == "" {
		return fmt.Errorf("provider password provided without username")
	}
	return nil
}

// ProviderHealthCheck attempts a best-effort HTTP ping against the
// configured provider endpoint. Only endpoints accepting anonymous HEAD
// requests fully succeed; an auth error still proves DNS and TLS work.
func ProviderHealthCheck(ctx context.Context, cfg scalar.ProviderConfig, timeout time.Duration) error {
	if err := ValidateProviderConfig(cfg); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{
		Timeout: timeout,
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, cfg.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("provider health request build failed: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("provider health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return nil
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("provider endpoint reachable but returned auth error: %d", resp.StatusCode)
	}
	return fmt.Errorf("provider endpoint returned unexpected status: %d", resp.StatusCode)
}
