package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultWebhookAPIBase is the provider webhook management endpoint.
const DefaultWebhookAPIBase = "https://api.helius.xyz/v0/webhooks"

// WebhookAdmin manages provider-side webhook registrations. The provider
// caps webhooks per account, so stale registrations from previous runs must
// be removed before a new one is created.
type WebhookAdmin struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// WebhookAdminOption configures WebhookAdmin.
type WebhookAdminOption func(*WebhookAdmin)

// WithWebhookAPIBase overrides the webhook management endpoint.
func WithWebhookAPIBase(base string) WebhookAdminOption {
	return func(a *WebhookAdmin) {
		a.baseURL = base
	}
}

// WithWebhookHTTPClient sets a custom http.Client.
func WithWebhookHTTPClient(client *http.Client) WebhookAdminOption {
	return func(a *WebhookAdmin) {
		a.client = client
	}
}

// NewWebhookAdmin creates a webhook admin client.
func NewWebhookAdmin(apiKey string, opts ...WebhookAdminOption) *WebhookAdmin {
	a := &WebhookAdmin{
		apiKey:  apiKey,
		baseURL: DefaultWebhookAPIBase,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// webhookInfo is one provider-side webhook registration.
type webhookInfo struct {
	WebhookID  string `json:"webhookID"`
	WebhookURL string `json:"webhookURL"`
}

// DeleteAll removes every existing webhook registration.
// Returns the number of webhooks deleted.
func (a *WebhookAdmin) DeleteAll(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.listURL(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("list webhooks: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("list webhooks: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var hooks []webhookInfo
	if err := json.Unmarshal(body, &hooks); err != nil {
		return 0, fmt.Errorf("unmarshal webhooks: %w", err)
	}

	deleted := 0
	for _, hook := range hooks {
		if err := a.delete(ctx, hook.WebhookID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// delete removes a single webhook by ID.
func (a *WebhookAdmin) delete(ctx context.Context, webhookID string) error {
	u := fmt.Sprintf("%s/%s?api-key=%s", a.baseURL, url.PathEscape(webhookID), url.QueryEscape(a.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete webhook %s: %w", webhookID, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("delete webhook %s: unexpected status %d", webhookID, resp.StatusCode)
	}
	return nil
}

// Register creates an enhanced-webhook registration for swap transactions
// touching the given mint. Returns the new webhook ID.
func (a *WebhookAdmin) Register(ctx context.Context, webhookURL, mint string) (string, error) {
	payload := map[string]interface{}{
		"webhookURL":       webhookURL,
		"transactionTypes": []string{"SWAP"},
		"accountAddresses": []string{mint},
		"webhookType":      "enhanced",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.listURL(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("register webhook: %w", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("register webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var info webhookInfo
	if err := json.Unmarshal(respBody, &info); err != nil {
		return "", fmt.Errorf("unmarshal webhook response: %w", err)
	}
	return info.WebhookID, nil
}

func (a *WebhookAdmin) listURL() string {
	return fmt.Sprintf("%s?api-key=%s", a.baseURL, url.QueryEscape(a.apiKey))
}
