package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
)

// Client delivers webhook payloads with bounded retry, grounded on the
// corpus's hashicorp/go-retryablehttp use for outbound HTTP calls. The
// destination URL is supplied per call (spec §6: `webhook`/`webhook_v2`
// are per-request fields, not fixed configuration) while the signing
// secret and retry policy are process-wide.
type Client struct {
	secret     string // empty disables v2 signing; v1 is never signed
	httpClient *retryablehttp.Client
}

// New builds a Client. retryMax bounds the number of retries, with a
// fixed 500ms wait between attempts (spec: webhook delivery retries,
// unlike Engine calls which don't).
func New(secret string, retryMax int, log *slog.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 500 * time.Millisecond // min == max: constant wait, not exponential
	if log != nil {
		rc.Logger = slogAdapter{log}
	} else {
		rc.Logger = nil
	}
	return &Client{secret: secret, httpClient: rc}
}

// DeliverV1 POSTs an unsigned v1 per-file payload to url.
func (c *Client) DeliverV1(ctx context.Context, url string, payload V1Payload) error {
	return c.post(ctx, url, payload, false)
}

// DeliverV2 POSTs a signed v2 lifecycle payload to url.
func (c *Client) DeliverV2(ctx context.Context, url string, payload V2Payload) error {
	return c.post(ctx, url, payload, true)
}

// DeliverEvent POSTs an arbitrary namespaced system event (spec §4.7's
// comfy.*/storage.* event bridge fan-out) to url, signed the same way as
// DeliverV2.
func (c *Client) DeliverEvent(ctx context.Context, url string, payload map[string]any) error {
	return c.post(ctx, url, payload, true)
}

func (c *Client) post(ctx context.Context, url string, payload any, signIt bool) error {
	if url == "" {
		return nil // webhook delivery is optional; no URL configured means no-op
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshaling payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if signIt && c.secret != "" {
		id, timestamp, signature := sign(c.secret, body)
		req.Header.Set("webhook-id", id)
		req.Header.Set("webhook-timestamp", timestamp)
		req.Header.Set("webhook-signature", signature)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: delivering payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// slogAdapter routes go-retryablehttp's internal logging through slog,
// matching the teacher's preference for a single structured logger
// rather than the library's default stdlib log.Logger.
type slogAdapter struct {
	log *slog.Logger
}

func (a slogAdapter) Printf(format string, args ...any) {
	a.log.Debug(fmt.Sprintf(format, args...))
}
