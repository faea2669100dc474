// Package client 代表聊天会话调用转发服务的 HTTP 接口。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"github.com/zhouzirui/relaychat/internal/model/chat"
)

const (
	endpointChat   = "/chat"
	endpointHealth = "/health"

	maxResponseBody = 1 << 20
)

// StatusError 表示接口返回了非 2xx 状态码
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Server error (%d)", e.Status)
}

// HealthStatus 是 /health 的响应体
type HealthStatus struct {
	Status      string            `json:"status"`
	Timestamp   string            `json:"timestamp"`
	Environment string            `json:"environment"`
	Services    map[string]string `json:"services"`
}

// Healthy 判断服务端是否报告健康
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy"
}

// APIClient 向转发服务发送聊天请求
type APIClient struct {
	server string
	http   *http.Client
}

// NewAPIClient 创建客户端，server 可以省略协议前缀。
func NewAPIClient(server string, timeout time.Duration) (*APIClient, error) {
	normalized, err := normalizeServerURL(server)
	if err != nil {
		return nil, errors.Wrap(err, "invalid server URL")
	}
	return &APIClient{
		server: normalized,
		http:   &http.Client{Timeout: timeout},
	}, nil
}

// Server 返回规范化后的服务地址
func (c *APIClient) Server() string {
	return c.server
}

// normalizeServerURL 补全协议并去掉路径和末尾斜杠
func normalizeServerURL(server string) (string, error) {
	server = strings.TrimSpace(server)
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}

	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return "", errors.Errorf("cannot parse %q", server)
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}

// Forward 发送一条聊天消息并返回回复字段
func (c *APIClient) Forward(ctx context.Context, text string, timestamp time.Time) (chat.ReplyFields, error) {
	ts, err := sonic.Marshal(timestamp.UTC().Format(chat.TimestampLayout))
	if err != nil {
		return chat.ReplyFields{}, errors.Wrap(err, "encode timestamp")
	}
	body, err := sonic.Marshal(chat.ChatRequest{Message: text, Timestamp: ts})
	if err != nil {
		return chat.ReplyFields{}, errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+endpointChat, bytes.NewReader(body))
	if err != nil {
		return chat.ReplyFields{}, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	data, status, err := c.do(req)
	if err != nil {
		return chat.ReplyFields{}, err
	}
	if status < 200 || status > 299 {
		return chat.ReplyFields{}, &StatusError{Status: status, Message: errorField(data)}
	}

	return parseReply(data), nil
}

// Health 获取服务健康状态。503 也会正常解码，不视为失败。
func (c *APIClient) Health(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.server+endpointHealth, nil)
	if err != nil {
		return HealthStatus{}, errors.Wrap(err, "build request")
	}

	data, status, err := c.do(req)
	if err != nil {
		return HealthStatus{}, err
	}

	var health HealthStatus
	if err := sonic.Unmarshal(data, &health); err != nil {
		return HealthStatus{}, &StatusError{Status: status}
	}
	return health, nil
}

func (c *APIClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, "read response")
	}
	return data, resp.StatusCode, nil
}

// errorField 从失败响应中提取 {"error": "..."}
func errorField(data []byte) string {
	fields := objectFields(data)
	return stringField(fields, "error")
}

func parseReply(data []byte) chat.ReplyFields {
	fields := objectFields(data)
	return chat.ReplyFields{
		Response: stringField(fields, "response"),
		Message:  stringField(fields, "message"),
	}
}

func objectFields(data []byte) map[string]json.RawMessage {
	var fields map[string]json.RawMessage
	if err := sonic.Unmarshal(data, &fields); err != nil {
		return nil
	}
	return fields
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
