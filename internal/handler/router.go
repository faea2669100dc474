package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/relaychat/internal/config"
	"github.com/zhouzirui/relaychat/internal/handler/chat"
	"github.com/zhouzirui/relaychat/internal/handler/health"
	middlewarePkg "github.com/zhouzirui/relaychat/internal/middleware"
	"github.com/zhouzirui/relaychat/internal/service/webhook"
	"github.com/zhouzirui/relaychat/pkg/utils"
)

// maxRequestBody 请求体上限，远大于最长的合法消息
const maxRequestBody = 64 << 10

// NewRouter 创建并配置路由
func NewRouter(cfg *config.Config, forwarder *webhook.Forwarder, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middlewarePkg.Recoverer)
	r.Use(middleware.RequestSize(maxRequestBody))
	r.Use(middlewarePkg.CORS(cfg.Server))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	health.New(cfg.Environment, forwarder).RegisterRoutes(r)
	chat.New(forwarder, cfg.Server.TrustProxyHeaders).RegisterRoutes(r)

	return r
}
