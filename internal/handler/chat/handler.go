package chat

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/relaychat/internal/service/webhook"
	"github.com/zhouzirui/relaychat/pkg/utils"
)

// Forwarder 代表客户端转发原始聊天请求体
type Forwarder interface {
	Forward(ctx context.Context, clientKey string, body []byte) (webhook.Reply, error)
	Admit(clientKey string) error
}

// Handler 聊天转发的HTTP处理器
type Handler struct {
	forwarder         Forwarder
	trustProxyHeaders bool
	upgrader          websocket.Upgrader
}

// New 创建聊天处理器
func New(forwarder Forwarder, trustProxyHeaders bool) *Handler {
	return &Handler{
		forwarder:         forwarder,
		trustProxyHeaders: trustProxyHeaders,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/chat/ws", h.handleWebSocket)
}

// handleChat 转发单条聊天消息
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	clientKey := webhook.ClientKey(r, h.trustProxyHeaders)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		// 读不完的请求体同样先计入限流，再按超长消息拒绝
		if err := h.forwarder.Admit(clientKey); err != nil {
			status, message := errorResponse(err)
			utils.RespondError(w, r, status, message)
			return
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, r, http.StatusBadRequest, webhook.MsgMessageTooLong)
			return
		}
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("failed to read request body")
		utils.RespondError(w, r, http.StatusBadRequest, webhook.MsgMessageRequired)
		return
	}

	reply, err := h.forwarder.Forward(r.Context(), clientKey, body)
	if err != nil {
		status, message := errorResponse(err)
		utils.RespondError(w, r, status, message)
		return
	}

	utils.RespondRaw(w, r, http.StatusOK, reply.Payload)
}

// errorResponse 将转发错误映射为状态码和对外文案
func errorResponse(err error) (int, string) {
	var werr *webhook.Error
	if errors.As(err, &werr) {
		return werr.HTTPStatus(), werr.UserMessage()
	}
	return http.StatusInternalServerError, webhook.MsgInternal
}
