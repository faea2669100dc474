package chat

import "encoding/json"

// MaxMessageLength 用户消息最大长度，按字符计
const MaxMessageLength = 1000

// ChatRequest POST /chat 接收并转发给 webhook 的请求体。
// Timestamp 原样透传，可以是任意 JSON 值。
type ChatRequest struct {
	Message   string          `json:"message"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// ChatReply webhook 返回非 JSON 时包装成的回复
type ChatReply struct {
	Response string `json:"response"`
}

// ErrorResponse 所有非 2xx 响应的响应体
type ErrorResponse struct {
	Error string `json:"error"`
}

// TimestampLayout 浏览器发送的毫秒级 ISO-8601 格式
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ReplyFields 客户端从成功回复中读取的字段，均可能为空
type ReplyFields struct {
	Response string
	Message  string
}
