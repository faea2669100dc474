package chat

import "time"

// Sender 消息发送方
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message 客户端保存的一条对话消息
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	// Error 标记代表失败请求的机器人消息
	Error     bool `json:"error,omitempty"`
	Retryable bool `json:"retryable,omitempty"`
	// ReplyTo 指向触发这条回复的用户消息
	ReplyTo string `json:"replyTo,omitempty"`
}

// IsUser 判断是否为用户消息
func (m Message) IsUser() bool {
	return m.Sender == SenderUser
}

// CanRetry 判断消息是否为可重试的失败回复
func (m Message) CanRetry() bool {
	return m.Sender == SenderBot && m.Error && m.Retryable
}
