package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *APIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewAPIClient(srv.URL, 2*time.Second)
	require.NoError(t, err)
	return c
}

func TestNormalizeServerURL(t *testing.T) {
	cases := map[string]string{
		"localhost:8080":              "http://localhost:8080",
		"https://chat.example.com/":   "https://chat.example.com",
		"http://127.0.0.1:9000/api/x": "http://127.0.0.1:9000",
		"  example.com  ":             "http://example.com",
	}
	for in, want := range cases {
		got, err := normalizeServerURL(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}

	_, err := normalizeServerURL("http://")
	require.Error(t, err)
}

func TestForwardSendsMessageAndTimestamp(t *testing.T) {
	var got map[string]any
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		io.WriteString(w, `{"response":"hi back"}`)
	})

	ts := time.Date(2025, 1, 2, 3, 4, 5, 600_000_000, time.FixedZone("X", 3600))
	reply, err := c.Forward(context.Background(), "hello", ts)
	require.NoError(t, err)
	require.Equal(t, "hi back", reply.Response)
	require.Equal(t, "hello", got["message"])
	require.Equal(t, "2025-01-02T02:04:05.600Z", got["timestamp"])
}

func TestForwardReadsMessageFieldAndIgnoresNonStrings(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":42,"message":"from message"}`)
	})

	reply, err := c.Forward(context.Background(), "x", time.Now())
	require.NoError(t, err)
	require.Empty(t, reply.Response)
	require.Equal(t, "from message", reply.Message)
}

func TestForwardNonObjectReplyHasNoFields(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `["a","b"]`)
	})

	reply, err := c.Forward(context.Background(), "x", time.Now())
	require.NoError(t, err)
	require.Empty(t, reply.Response)
	require.Empty(t, reply.Message)
}

func TestForwardStatusErrors(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":"Too many requests. Please try again later."}`)
	})

	_, err := c.Forward(context.Background(), "x", time.Now())
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	require.Equal(t, http.StatusTooManyRequests, serr.Status)
	require.Equal(t, "Too many requests. Please try again later.", err.Error())

	c = newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `<html>bad gateway</html>`)
	})
	_, err = c.Forward(context.Background(), "x", time.Now())
	require.EqualError(t, err, "Server error (502)")
}

func TestHealthDecodesUnhealthy(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"status":"unhealthy","environment":"production","services":{"webhook":"not configured"}}`)
	})

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	require.False(t, health.Healthy())
	require.Equal(t, "not configured", health.Services["webhook"])
}
