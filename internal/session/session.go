// Package session 维护客户端的对话状态：有序的消息列表以及渲染所需的标记
// （等待回复、重试中、已复制）。同一时间只允许一个发送或重试请求，
// 其余请求会被拒绝。
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zhouzirui/relaychat/internal/model/chat"
)

const (
	// FallbackReply 成功回复中既无 response 也无 message 时显示
	FallbackReply = "I received your message."
	// DefaultWelcome 空对话的欢迎语
	DefaultWelcome = "Hello! How can I help you today?"
	// CopyResetDelay 复制后 CopiedID 保留的时长
	CopyResetDelay = 2 * time.Second
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrBusy            = errors.New("another message is in flight")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotRetryable    = errors.New("message is not retryable")
	ErrNoClipboard     = errors.New("clipboard unavailable")
)

// Transport 发送一条用户消息并返回回复字段
type Transport interface {
	Forward(ctx context.Context, text string, timestamp time.Time) (chat.ReplyFields, error)
}

// Clipboard 接收复制的文本
type Clipboard interface {
	WriteAll(text string) error
}

// Scheduler 在 d 之后执行一次 fn
type Scheduler func(d time.Duration, fn func())

// State 会话状态的快照
type State struct {
	Messages   []chat.Message
	Input      string
	Typing     bool
	RetryingID string
	CopiedID   string
}

// LastRetryable 返回最近一条可重试的消息
func (s State) LastRetryable() (chat.Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].CanRetry() {
			return s.Messages[i], true
		}
	}
	return chat.Message{}, false
}

// LastBot 返回最近一条机器人消息
func (s State) LastBot() (chat.Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if !s.Messages[i].IsUser() {
			return s.Messages[i], true
		}
	}
	return chat.Message{}, false
}

// Session 聊天会话，可并发使用
type Session struct {
	mu       sync.Mutex
	state    State
	welcomed bool

	transport Transport
	clipboard Clipboard
	schedule  Scheduler
	newID     func() string
	now       func() time.Time
	welcome   string

	listeners []func(State)
}

// Option 会话配置项
type Option func(*Session)

func WithClipboard(c Clipboard) Option {
	return func(s *Session) { s.clipboard = c }
}

func WithScheduler(fn Scheduler) Option {
	return func(s *Session) { s.schedule = fn }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Session) { s.newID = fn }
}

func WithClock(fn func() time.Time) Option {
	return func(s *Session) { s.now = fn }
}

func WithWelcome(text string) Option {
	return func(s *Session) { s.welcome = text }
}

// WithListener 注册监听器，每次状态变化后收到快照
func WithListener(fn func(State)) Option {
	return func(s *Session) { s.listeners = append(s.listeners, fn) }
}

// New 创建空会话
func New(transport Transport, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
		newID:   func() string { return uuid.NewString() },
		now:     time.Now,
		welcome: DefaultWelcome,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot 返回当前状态的深拷贝
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	st := s.state
	st.Messages = append([]chat.Message(nil), s.state.Messages...)
	return st
}

// update 在锁内执行 fn，解锁后通知监听器
func (s *Session) update(fn func(st *State)) {
	snap := func() State {
		s.mu.Lock()
		defer s.mu.Unlock()
		fn(&s.state)
		return s.snapshotLocked()
	}()

	for _, l := range s.listeners {
		l(snap)
	}
}

// SetInput 更新输入框草稿
func (s *Session) SetInput(text string) {
	s.update(func(st *State) { st.Input = text })
}

// EnsureWelcome 在对话为空时添加欢迎消息，每个会话最多一次。
// 返回是否添加了消息。
func (s *Session) EnsureWelcome() bool {
	s.mu.Lock()
	if s.welcomed || len(s.state.Messages) > 0 {
		s.mu.Unlock()
		return false
	}
	s.welcomed = true
	s.mu.Unlock()

	msg := chat.Message{
		ID:        s.newID(),
		Text:      s.welcome,
		Sender:    chat.SenderBot,
		Timestamp: s.now(),
	}
	s.update(func(st *State) { st.Messages = append(st.Messages, msg) })
	return true
}

// Send 追加用户消息并发送到服务端。请求失败会记录为可重试的机器人消息，
// 返回的错误只表示请求被拒绝。
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	user := chat.Message{
		ID:        s.newID(),
		Text:      text,
		Sender:    chat.SenderUser,
		Timestamp: s.now(),
	}

	s.mu.Lock()
	if s.state.Typing {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state.Typing = true
	s.state.Messages = append(s.state.Messages, user)
	s.state.Input = ""
	s.mu.Unlock()
	s.notify()

	defer s.update(func(st *State) { st.Typing = false })

	reply, err := s.call(ctx, user)
	if err != nil {
		failed := chat.Message{
			ID:        s.newID(),
			Text:      "Sorry, I encountered an error: " + reason(err) + ". Click retry to try again.",
			Sender:    chat.SenderBot,
			Timestamp: s.now(),
			Error:     true,
			Retryable: true,
			ReplyTo:   user.ID,
		}
		s.update(func(st *State) { st.Messages = append(st.Messages, failed) })
		return nil
	}

	bot := s.botReply(reply, user.ID)
	s.update(func(st *State) { st.Messages = append(st.Messages, bot) })
	return nil
}

// Retry 重新发送失败消息 id 对应的用户消息。成功时移除失败消息并把新回复追加到末尾，
// 失败时原地更新其文本。
func (s *Session) Retry(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrMessageNotFound
	}
	if !s.state.Messages[idx].CanRetry() {
		s.mu.Unlock()
		return ErrNotRetryable
	}
	if s.state.Typing {
		s.mu.Unlock()
		return ErrBusy
	}
	orig := s.indexLocked(s.state.Messages[idx].ReplyTo)
	if orig < 0 {
		s.mu.Unlock()
		return ErrNotRetryable
	}
	user := s.state.Messages[orig]
	s.state.Typing = true
	s.state.RetryingID = id
	s.mu.Unlock()
	s.notify()

	defer s.update(func(st *State) {
		st.Typing = false
		st.RetryingID = ""
	})

	reply, err := s.call(ctx, user)
	if err != nil {
		text := "Retry failed: " + reason(err)
		s.update(func(st *State) {
			for i := range st.Messages {
				if st.Messages[i].ID == id {
					st.Messages[i].Text = text
					break
				}
			}
		})
		return nil
	}

	bot := s.botReply(reply, user.ID)
	s.update(func(st *State) {
		kept := st.Messages[:0]
		for _, m := range st.Messages {
			if m.ID != id {
				kept = append(kept, m)
			}
		}
		st.Messages = append(kept, bot)
	})
	return nil
}

// Copy 复制文本到剪贴板，并在 CopyResetDelay 内标记 id 为已复制
func (s *Session) Copy(text, id string) error {
	if s.clipboard == nil {
		return ErrNoClipboard
	}
	if err := s.clipboard.WriteAll(text); err != nil {
		return errors.Wrap(err, "copy to clipboard")
	}

	s.update(func(st *State) { st.CopiedID = id })
	s.schedule(CopyResetDelay, func() {
		s.update(func(st *State) { st.CopiedID = "" })
	})
	return nil
}

// call 调用 transport，并把 panic 转为普通错误
func (s *Session) call(ctx context.Context, user chat.Message) (reply chat.ReplyFields, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("unexpected error: %v", r)
		}
	}()
	return s.transport.Forward(ctx, user.Text, user.Timestamp)
}

func (s *Session) botReply(reply chat.ReplyFields, replyTo string) chat.Message {
	text := reply.Response
	if text == "" {
		text = reply.Message
	}
	if text == "" {
		text = FallbackReply
	}
	return chat.Message{
		ID:        s.newID(),
		Text:      text,
		Sender:    chat.SenderBot,
		Timestamp: s.now(),
		ReplyTo:   replyTo,
	}
}

func (s *Session) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, m := range s.state.Messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) notify() {
	snap := s.Snapshot()
	for _, l := range s.listeners {
		l(snap)
	}
}

// reason 生成可嵌入句子的错误描述
func reason(err error) string {
	text := strings.TrimRight(strings.TrimSpace(err.Error()), ".")
	if text == "" {
		return "Unknown error"
	}
	return text
}
