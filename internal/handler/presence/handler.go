package presence

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	presencesvc "github.com/zhouzirui/moment-map/backend/internal/service/presence"
	"github.com/zhouzirui/moment-map/backend/pkg/utils"
)

// Handler 在线用户查询的HTTP处理器
type Handler struct {
	registry *presencesvc.Registry
}

// New 创建在线用户处理器
func New(registry *presencesvc.Registry) *Handler {
	return &Handler{registry: registry}
}

// RegisterRoutes 注册在线用户相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/users", h.handleListUsers)
}

// handleListUsers 返回当前在线用户快照
func (h *Handler) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.registry.Snapshot())
}
