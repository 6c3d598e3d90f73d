package bubble

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	bubblesvc "github.com/zhouzirui/moment-map/backend/internal/service/bubble"
	"github.com/zhouzirui/moment-map/backend/pkg/utils"
)

// Handler 气泡查询的HTTP处理器
type Handler struct {
	store *bubblesvc.Store
}

// New 创建气泡处理器
func New(store *bubblesvc.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册气泡相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/bubbles", h.handleListBubbles)
}

// handleListBubbles 按发布顺序返回当前气泡，内容与发布者发送的一致
func (h *Handler) handleListBubbles(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.List())
}
