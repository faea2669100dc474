package health

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/relaychat/pkg/utils"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	ServiceConfigured    = "configured"
	ServiceNotConfigured = "not configured"
)

// Checker 报告转发地址是否已配置
type Checker interface {
	Configured() bool
}

// Response 健康检查响应体
type Response struct {
	Status      string            `json:"status"`
	Timestamp   string            `json:"timestamp"`
	Environment string            `json:"environment"`
	Services    map[string]string `json:"services"`
}

// Handler 健康检查处理器
type Handler struct {
	environment string
	webhook     Checker
	now         func() time.Time
}

// New 创建健康检查处理器
func New(environment string, webhook Checker) *Handler {
	return &Handler{
		environment: environment,
		webhook:     webhook,
		now:         time.Now,
	}
}

// RegisterRoutes 注册健康检查路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := Response{
		Status:      StatusHealthy,
		Timestamp:   h.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Environment: h.environment,
		Services:    map[string]string{"webhook": ServiceConfigured},
	}
	status := http.StatusOK

	if h.webhook == nil || !h.webhook.Configured() {
		resp.Status = StatusUnhealthy
		resp.Services["webhook"] = ServiceNotConfigured
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	utils.RespondJSON(w, r, status, resp)
}
