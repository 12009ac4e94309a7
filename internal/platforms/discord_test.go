package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/types"
)

func TestPostSendsJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewWebhookClient(time.Second, 0, 1)
	err := client.Post(context.Background(), srv.URL+"/api/webhooks/1/token", map[string]string{"content": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", got["content"])
}

func TestPostRateLimitedReturnsRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"You are being rate limited.","retry_after":1.5,"global":false}`))
	}))
	defer srv.Close()

	client := NewWebhookClient(time.Second, 0, 1)
	err := client.Post(context.Background(), srv.URL+"/api/webhooks/1/secret", map[string]string{})

	var sendErr *types.SendError
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, http.StatusTooManyRequests, sendErr.StatusCode)
	assert.InDelta(t, 1.5, sendErr.RetryAfter, 0.001)
	assert.NotContains(t, sendErr.Endpoint, "secret")
}

func TestPostRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewWebhookClient(time.Second, 0, 1)
	err := client.Post(context.Background(), srv.URL+"/hook", map[string]string{})

	var sendErr *types.SendError
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, http.StatusNotFound, sendErr.StatusCode)
	assert.Contains(t, sendErr.Body, "unknown webhook")
}

func TestPostHonoursRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewWebhookClient(time.Second, 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, client.Post(ctx, srv.URL+"/a", struct{}{}))
	err := client.Post(ctx, srv.URL+"/a", struct{}{})
	require.Error(t, err, "second send must wait for the bucket and hit the deadline")

	require.NoError(t, client.Post(context.Background(), srv.URL+"/b", struct{}{}), "other endpoints have their own bucket")
	assert.Equal(t, int32(2), calls.Load())
}

func TestRedact(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://discord.com/api/webhooks/123/abcdef", "https://discord.com/api/webhooks/123/***"},
		{"https://example.com/hook", "https://example.com/hook"},
		{"not a url", "invalid-endpoint"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Redact(tt.in), tt.in)
	}
}
