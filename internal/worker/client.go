package worker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
)

// SignatureHeader carries the hex HMAC-SHA256 digest of the exact JSON
// body, in both directions of the worker protocol.
const SignatureHeader = "x-webhook-signature"

// StartSyncRequest asks the scraper worker to begin a sync. The webhook
// fields tell the worker where and how to report progress back.
type StartSyncRequest struct {
	SessionID     string `json:"sessionId"`
	MFCUsername   string `json:"mfcUsername,omitempty"`
	IncludeLists  bool   `json:"includeLists"`
	SkipCached    bool   `json:"skipCached"`
	WebhookURL    string `json:"webhookUrl"`
	WebhookSecret string `json:"webhookSecret"`
}

type cancelSyncRequest struct {
	SessionID string `json:"sessionId"`
}

// Client is the outbound protocol to the external scraper worker
type Client interface {
	StartSync(ctx context.Context, req *StartSyncRequest) error
	CancelSync(ctx context.Context, sessionID string) error
}

// HTTPClient talks to the worker over signed HTTP POSTs with bounded
// exponential-backoff retries.
type HTTPClient struct {
	baseURL    string
	secret     string
	maxRetries uint64
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewHTTPClient creates a new worker client
func NewHTTPClient(baseURL, secret string, timeout time.Duration, maxRetries uint64, logger *logrus.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		secret:     secret,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// StartSync asks the worker to begin scraping for a session
func (c *HTTPClient) StartSync(ctx context.Context, req *StartSyncRequest) error {
	return c.post(ctx, "/sync/start", req)
}

// CancelSync asks the worker to stop queuing further items for a session.
// Cancellation is cooperative: in-flight items may still call back.
func (c *HTTPClient) CancelSync(ctx context.Context, sessionID string) error {
	return c.post(ctx, "/sync/cancel", &cancelSyncRequest{SessionID: sessionID})
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal worker request: %w", err)
	}

	op := func() error {
		return c.doPost(ctx, path, body)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("worker request %s failed: %w", path, err)
	}

	return nil
}

func (c *HTTPClient) doPost(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(c.secret, body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("worker returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return backoff.Permanent(fmt.Errorf("worker rejected request with status %d", resp.StatusCode))
	}

	return nil
}

// Sign computes the hex HMAC-SHA256 digest of body under the shared secret
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the body digest, using
// a constant-time comparison.
func VerifySignature(secret, signature string, body []byte) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(signature), []byte(expected))
}
