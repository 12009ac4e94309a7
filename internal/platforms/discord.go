package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"herald/internal/types"
)

const webhookUserAgent = "herald/1.0"

type DiscordErrorResponse struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

// WebhookClient posts JSON payloads to webhook endpoints. Each endpoint gets
// its own token bucket so one busy channel cannot starve another.
type WebhookClient struct {
	httpClient *http.Client
	limit      rate.Limit
	burst      int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewWebhookClient(timeout time.Duration, ratePerSec float64, burst int) *WebhookClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if burst <= 0 {
		burst = 1
	}

	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}

	return &WebhookClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *WebhookClient) Validate() error {
	if c.httpClient == nil {
		return fmt.Errorf("webhook client: http client is required")
	}
	return nil
}

func (c *WebhookClient) Initialize(ctx context.Context) error {
	return nil
}

func (c *WebhookClient) Close(ctx context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *WebhookClient) limiter(endpoint string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[endpoint]
	if !ok {
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[endpoint] = l
	}
	return l
}

// Post sends payload as a JSON body. Non-2xx responses are returned as
// *types.SendError; a 429 carries the retry_after the endpoint reported.
func (c *WebhookClient) Post(ctx context.Context, endpoint string, payload any) error {
	if err := c.limiter(endpoint).Wait(ctx); err != nil {
		return &types.SendError{Endpoint: Redact(endpoint), Err: fmt.Errorf("rate limiter: %w", err)}
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return &types.SendError{Endpoint: Redact(endpoint), Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &types.SendError{Endpoint: Redact(endpoint), Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		sendErr := &types.SendError{
			Endpoint:   Redact(endpoint),
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
		var errorResp DiscordErrorResponse
		if json.Unmarshal(body, &errorResp) == nil && errorResp.RetryAfter > 0 {
			sendErr.RetryAfter = errorResp.RetryAfter
		}
		return sendErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &types.SendError{
			Endpoint:   Redact(endpoint),
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}

// Redact hides the secret token of a webhook address so it can be logged.
// Only the last path segment is replaced.
func Redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "invalid-endpoint"
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) >= 2 {
		segments[len(segments)-1] = "***"
	}

	return u.Scheme + "://" + u.Host + "/" + strings.Join(segments, "/")
}
