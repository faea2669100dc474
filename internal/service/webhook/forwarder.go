// Package webhook 将聊天消息转发到外部工作流 webhook，并规范化其回复。
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/relaychat/internal/config"
	"github.com/zhouzirui/relaychat/internal/model/chat"
)

// EmptyReplyText webhook 返回 2xx 但响应体为空时使用的回复
const EmptyReplyText = "I received your message but got an empty response. Please check your n8n workflow configuration."

const maxUpstreamBody = 1 << 20

// Limiter 按客户端标识限流
type Limiter interface {
	Allow(key string, limit int, window time.Duration) bool
}

// ReplyFormat 上游响应体的解析方式
type ReplyFormat string

const (
	ReplyJSON  ReplyFormat = "json"
	ReplyText  ReplyFormat = "text"
	ReplyEmpty ReplyFormat = "empty"
)

// Reply 规范化后的 webhook 回复，Payload 总是合法的 JSON。
type Reply struct {
	Payload json.RawMessage
	Format  ReplyFormat
}

// Forwarder 校验聊天请求并转发到配置的 webhook
type Forwarder struct {
	url     string
	limit   int
	window  time.Duration
	limiter Limiter
	client  *http.Client
	log     zerolog.Logger
}

// Option 转发器配置项
type Option func(*Forwarder)

// WithHTTPClient 替换出站 HTTP 客户端，保留其自身的 Timeout。
func WithHTTPClient(client *http.Client) Option {
	return func(f *Forwarder) {
		f.client = client
	}
}

// NewForwarder 根据 webhook 和限流配置创建转发器
func NewForwarder(hook config.WebhookConfig, rl config.RateLimitConfig, limiter Limiter, log zerolog.Logger, opts ...Option) *Forwarder {
	f := &Forwarder{
		url:     strings.TrimSpace(hook.URL),
		limit:   rl.Limit,
		window:  rl.Window,
		limiter: limiter,
		client:  &http.Client{Timeout: hook.Timeout},
		log:     log.With().Str("component", "webhook").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Configured 判断是否配置了转发地址
func (f *Forwarder) Configured() bool {
	return f.url != ""
}

// Forward 依次检查限流、校验请求体并转发。
// 返回的错误总是 *Error。
func (f *Forwarder) Forward(ctx context.Context, clientKey string, body []byte) (Reply, error) {
	if err := f.Admit(clientKey); err != nil {
		return Reply{}, err
	}

	req, verr := parseRequest(body)
	if verr != nil {
		f.log.Debug().Str("client", clientKey).Str("reason", verr.Message).Msg("rejected chat request")
		return Reply{}, verr
	}

	if !f.Configured() {
		f.log.Error().Msg("webhook url is not configured")
		return Reply{}, newMisconfiguredError()
	}

	f.log.Info().
		Str("client", clientKey).
		Int("length", utf8.RuneCountInString(req.Message)).
		Msg("forwarding chat message")

	reply, err := f.send(ctx, req)
	if err != nil {
		var werr *Error
		if errors.As(err, &werr) {
			f.log.Error().Err(werr.Err).Int("status", werr.HTTPStatus()).Msg("webhook request failed")
			return Reply{}, werr
		}
		f.log.Error().Err(err).Msg("unexpected forwarding error")
		return Reply{}, newInternalError(err)
	}
	f.log.Debug().Str("format", string(reply.Format)).Int("bytes", len(reply.Payload)).Msg("webhook reply normalized")
	return reply, nil
}

// Admit 为 clientKey 计数一次请求，超出窗口限制时返回 RateLimited 错误。
// 请求体无法读取完整时（例如超过大小上限）也要先经过这里。
func (f *Forwarder) Admit(clientKey string) error {
	if !f.limiter.Allow(clientKey, f.limit, f.window) {
		f.log.Warn().Str("client", clientKey).Msg("rate limit exceeded")
		return newRateLimitedError()
	}
	return nil
}

func parseRequest(body []byte) (chat.ChatRequest, *Error) {
	var fields map[string]json.RawMessage
	if err := sonic.Unmarshal(body, &fields); err != nil || fields == nil {
		return chat.ChatRequest{}, newInvalidInputError(MsgMessageRequired)
	}

	raw, ok := fields["message"]
	raw = bytes.TrimSpace(raw)
	if !ok || len(raw) == 0 || raw[0] != '"' {
		return chat.ChatRequest{}, newInvalidInputError(MsgMessageRequired)
	}

	var message string
	if err := sonic.Unmarshal(raw, &message); err != nil || message == "" {
		return chat.ChatRequest{}, newInvalidInputError(MsgMessageRequired)
	}
	if utf8.RuneCountInString(message) > chat.MaxMessageLength {
		return chat.ChatRequest{}, newInvalidInputError(MsgMessageTooLong)
	}

	return chat.ChatRequest{
		Message:   message,
		Timestamp: fields["timestamp"],
	}, nil
}

func (f *Forwarder) send(ctx context.Context, req chat.ChatRequest) (Reply, error) {
	payload, err := sonic.Marshal(req)
	if err != nil {
		return Reply{}, errors.Wrap(err, "encode webhook payload")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return Reply{}, errors.Wrap(err, "build webhook request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return Reply{}, newUpstreamError(http.StatusGatewayTimeout, err)
		}
		return Reply{}, newInternalError(errors.Wrap(err, "call webhook"))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		if isTimeout(err) {
			return Reply{}, newUpstreamError(http.StatusGatewayTimeout, err)
		}
		return Reply{}, newInternalError(errors.Wrap(err, "read webhook response"))
	}

	f.log.Debug().Int("status", resp.StatusCode).Int("bytes", len(data)).Msg("webhook responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		status := resp.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		return Reply{}, newUpstreamError(status, errors.Errorf("webhook returned status %d", resp.StatusCode))
	}

	return f.normalize(data)
}

func (f *Forwarder) normalize(data []byte) (Reply, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		f.log.Warn().Msg("webhook returned an empty body")
		return wrapText(EmptyReplyText, ReplyEmpty)
	}

	if sonic.Valid(trimmed) {
		return Reply{Payload: json.RawMessage(trimmed), Format: ReplyJSON}, nil
	}

	f.log.Debug().Msg("webhook reply is not JSON, wrapping as text")
	return wrapText(string(data), ReplyText)
}

func wrapText(text string, format ReplyFormat) (Reply, error) {
	payload, err := sonic.Marshal(chat.ChatReply{Response: text})
	if err != nil {
		return Reply{}, errors.Wrap(err, "encode text reply")
	}
	return Reply{Payload: payload, Format: format}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
