package relay

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/moment-map/backend/internal/config"
	relaysvc "github.com/zhouzirui/moment-map/backend/internal/service/relay"
)

// Handler 将 WebSocket 连接接入中继
type Handler struct {
	hub      *relaysvc.Hub
	opts     relaysvc.ClientOptions
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// New 创建中继处理器，Origin 校验遵循 cfg.AllowedOrigins
func New(hub *relaysvc.Hub, cfg config.RelayConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub: hub,
		opts: relaysvc.ClientOptions{
			HeartbeatInterval: cfg.HeartbeatInterval,
			WriteTimeout:      cfg.WriteTimeout,
			ReadTimeout:       cfg.InactivityTimeout,
			MaxMessageBytes:   cfg.MaxMessageBytes,
			SendBuffer:        cfg.SendBuffer,
		},
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin(cfg),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// IsUpgrade 判断请求是否为 WebSocket 握手
func IsUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// ServeHTTP 完成握手后阻塞直到连接结束
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		h.logger.Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	client := relaysvc.NewClient(h.hub, conn, h.opts, h.logger)
	h.logger.Info("websocket connected", zap.String("conn_id", client.ID()), zap.String("remote", r.RemoteAddr))
	client.Serve()
	h.logger.Info("websocket disconnected", zap.String("conn_id", client.ID()))
}

func checkOrigin(cfg config.RelayConfig) func(*http.Request) bool {
	if cfg.AllowAllOrigins() {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// 非浏览器客户端不带 Origin
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
