package webhook

import (
	"fmt"
	"net/http"
)

// Kind 转发失败的类别
type Kind string

const (
	KindInvalidInput  Kind = "INVALID_INPUT"
	KindRateLimited   Kind = "RATE_LIMITED"
	KindMisconfigured Kind = "MISCONFIGURED"
	KindUpstream      Kind = "UPSTREAM_ERROR"
	KindInternal      Kind = "INTERNAL_ERROR"
)

// 对外展示的错误文案
const (
	MsgRateLimited     = "Too many requests. Please try again later."
	MsgMessageRequired = "Message is required and must be a string"
	MsgMessageTooLong  = "Message too long. Maximum 1000 characters allowed."
	MsgMisconfigured   = "Server configuration error"
	MsgUpstreamFailed  = "Failed to get response from AI"
	MsgInternal        = "Internal server error"
)

// Error 由 Forward 返回。Message 可直接展示给调用方，Err 只用于日志。
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// UserMessage 返回不包含内部细节的错误文本
func (e *Error) UserMessage() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus 返回对应的 HTTP 状态码
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newRateLimitedError() *Error {
	return &Error{Kind: KindRateLimited, Status: http.StatusTooManyRequests, Message: MsgRateLimited}
}

func newInvalidInputError(message string) *Error {
	return &Error{Kind: KindInvalidInput, Status: http.StatusBadRequest, Message: message}
}

func newMisconfiguredError() *Error {
	return &Error{Kind: KindMisconfigured, Status: http.StatusInternalServerError, Message: MsgMisconfigured}
}

func newUpstreamError(status int, err error) *Error {
	return &Error{Kind: KindUpstream, Status: status, Message: MsgUpstreamFailed, Err: err}
}

func newInternalError(err error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: MsgInternal, Err: err}
}
