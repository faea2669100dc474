package chat

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/relaychat/internal/config"
	"github.com/zhouzirui/relaychat/internal/ratelimit"
	"github.com/zhouzirui/relaychat/internal/service/webhook"
)

func setupRouter(t *testing.T, webhookURL string, limit int) *chi.Mux {
	t.Helper()
	fwd := webhook.NewForwarder(
		config.WebhookConfig{URL: webhookURL, Timeout: 2 * time.Second},
		config.RateLimitConfig{Limit: limit, Window: time.Minute},
		ratelimit.New(),
		zerolog.Nop(),
	)
	handler := New(fwd, true)

	r := chi.NewRouter()
	r.Use(middleware.RequestSize(64 << 10))
	handler.RegisterRoutes(r)
	return r
}

func newWebhook(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func postChat(r http.Handler, body string, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, resp.Body.String())
	}
	return payload.Error
}

func TestChatReturnsWrappedPlainText(t *testing.T) {
	hook := newWebhook(t, http.StatusOK, "Hello there")
	r := setupRouter(t, hook.URL, 10)

	resp := postChat(r, `{"message":"hi","timestamp":"2025-01-01T00:00:00Z"}`, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["response"] != "Hello there" {
		t.Fatalf("expected wrapped text, got %v", payload)
	}
}

func TestChatPassesJSONThrough(t *testing.T) {
	hook := newWebhook(t, http.StatusOK, `{"message":"from workflow","meta":{"k":1}}`)
	r := setupRouter(t, hook.URL, 10)

	resp := postChat(r, `{"message":"hi"}`, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Body.String(); got != `{"message":"from workflow","meta":{"k":1}}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestChatValidationErrors(t *testing.T) {
	hook := newWebhook(t, http.StatusOK, "ok")
	r := setupRouter(t, hook.URL, 100)

	cases := []struct {
		body string
		want string
	}{
		{body: `{}`, want: webhook.MsgMessageRequired},
		{body: `{"message":5}`, want: webhook.MsgMessageRequired},
		{body: `garbage`, want: webhook.MsgMessageRequired},
		{body: `{"message":"` + strings.Repeat("a", 1001) + `"}`, want: webhook.MsgMessageTooLong},
	}
	for _, tc := range cases {
		resp := postChat(r, tc.body, "")
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %.20s, got %d", tc.body, resp.Code)
		}
		if got := decodeError(t, resp); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestChatOversizedBody(t *testing.T) {
	hook := newWebhook(t, http.StatusOK, "ok")
	r := setupRouter(t, hook.URL, 100)

	resp := postChat(r, `{"message":"`+strings.Repeat("a", 70<<10)+`"}`, "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if got := decodeError(t, resp); got != webhook.MsgMessageTooLong {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestChatOversizedBodyCountsAgainstRateLimit(t *testing.T) {
	hook := newWebhook(t, http.StatusOK, "ok")
	r := setupRouter(t, hook.URL, 1)
	huge := `{"message":"` + strings.Repeat("a", 70000) + `"}`

	resp := postChat(r, `{"message":"hi"}`, "10.0.0.9")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = postChat(r, huge, "10.0.0.9")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if got := decodeError(t, resp); got != webhook.MsgRateLimited {
		t.Fatalf("unexpected error %q", got)
	}

	// 超长请求也占用配额
	r = setupRouter(t, hook.URL, 1)
	if resp := postChat(r, huge, "10.0.0.10"); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if resp := postChat(r, `{"message":"hi"}`, "10.0.0.10"); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after oversized request, got %d", resp.Code)
	}
}

func TestChatUnconfiguredWebhook(t *testing.T) {
	r := setupRouter(t, "", 10)

	resp := postChat(r, `{"message":"hello"}`, "")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if got := decodeError(t, resp); got != "Server configuration error" {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestChatUpstreamStatusPassthrough(t *testing.T) {
	hook := newWebhook(t, http.StatusInternalServerError, "boom")
	r := setupRouter(t, hook.URL, 10)

	resp := postChat(r, `{"message":"hi"}`, "")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if got := decodeError(t, resp); got != "Failed to get response from AI" {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestChatRateLimitPerClient(t *testing.T) {
	hook := newWebhook(t, http.StatusOK, `{"response":"ok"}`)
	r := setupRouter(t, hook.URL, 10)

	for i := 0; i < 10; i++ {
		if resp := postChat(r, `{"message":"hi"}`, "203.0.113.7"); resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, resp.Code)
		}
	}

	resp := postChat(r, `{"message":"hi"}`, "203.0.113.7")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if got := decodeError(t, resp); got != "Too many requests. Please try again later." {
		t.Fatalf("unexpected error %q", got)
	}

	if resp := postChat(r, `{"message":"hi"}`, "198.51.100.1"); resp.Code != http.StatusOK {
		t.Fatalf("other client should pass, got %d", resp.Code)
	}
}

func TestWebSocketExchange(t *testing.T) {
	hook := newWebhook(t, http.StatusOK, `{"response":"pong"}`)
	srv := httptest.NewServer(setupRouter(t, hook.URL, 1))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readFrame := func() map[string]any {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return frame
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"ping"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readFrame()
	if frame["type"] != FrameReply {
		t.Fatalf("expected reply frame, got %v", frame)
	}
	data, _ := frame["data"].(map[string]any)
	if data["response"] != "pong" {
		t.Fatalf("unexpected data %v", frame["data"])
	}
	if _, ok := frame["timestamp"].(float64); !ok {
		t.Fatalf("missing timestamp in %v", frame)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"again"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame = readFrame()
	if frame["type"] != FrameError || frame["status"] != float64(http.StatusTooManyRequests) {
		t.Fatalf("expected rate limit error frame, got %v", frame)
	}
}

func TestErrorResponseFallsBackToInternal(t *testing.T) {
	status, message := errorResponse(io.ErrUnexpectedEOF)
	if status != http.StatusInternalServerError || message != webhook.MsgInternal {
		t.Fatalf("unexpected mapping %d %q", status, message)
	}

	status, message = errorResponse(&webhook.Error{Kind: webhook.KindUpstream, Status: http.StatusGatewayTimeout, Message: webhook.MsgUpstreamFailed})
	if status != http.StatusGatewayTimeout || message != webhook.MsgUpstreamFailed {
		t.Fatalf("unexpected mapping %d %q", status, message)
	}
}

