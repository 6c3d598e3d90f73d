package status

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/moment-map/backend/pkg/utils"
)

// Counter 提供在线人数
type Counter interface {
	Size() int
}

// BubbleCounter 提供当前气泡数量
type BubbleCounter interface {
	Len() int
}

// Stats 是健康检查与统计推送共享的数据
type Stats struct {
	Online  int    `json:"online"`
	Bubbles int    `json:"bubbles"`
	Time    string `json:"time"`
}

type healthResponse struct {
	Status  string  `json:"status"`
	Online  int     `json:"online"`
	Bubbles int     `json:"bubbles"`
	Time    string  `json:"time"`
	Uptime  float64 `json:"uptime"`
}

// Handler 负责健康检查、状态页与统计流
type Handler struct {
	users    Counter
	bubbles  BubbleCounter
	interval time.Duration
	started  time.Time
	logger   *zap.Logger
	now      func() time.Time
}

// New 创建状态处理器，interval 为统计流推送周期
func New(users Counter, bubbles BubbleCounter, interval time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Handler{
		users:    users,
		bubbles:  bubbles,
		interval: interval,
		started:  time.Now(),
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterRoutes 注册 /api 下的统计流
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stats/stream", h.HandleStatsStream)
}

func (h *Handler) snapshot() Stats {
	return Stats{
		Online:  h.users.Size(),
		Bubbles: h.bubbles.Len(),
		Time:    h.now().UTC().Format(time.RFC3339),
	}
}

// HandleHealth 返回服务存活状态
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	s := h.snapshot()
	utils.RespondJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Online:  s.Online,
		Bubbles: s.Bubbles,
		Time:    s.Time,
		Uptime:  h.now().Sub(h.started).Seconds(),
	})
}

// HandleDashboard 渲染状态页
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{
		Online:     h.users.Size(),
		Bubbles:    h.bubbles.Len(),
		Host:       r.Host,
		ServerTime: h.now().In(shanghai).Format("2006/01/02 15:04:05"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, data); err != nil {
		h.logger.Warn("render dashboard failed", zap.Error(err))
	}
}

// HandleStatsStream 以 SSE 周期推送在线人数与气泡数量，直到客户端断开
func (h *Handler) HandleStatsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, r, h.logger, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	h.stream(r.Context(), w, flusher)
}

func (h *Handler) stream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Debug("stats stream opened")
	defer h.logger.Debug("stats stream closed")

	if err := utils.SendSSEEvent(w, flusher, "stats", h.snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := utils.SendSSEEvent(w, flusher, "stats", h.snapshot()); err != nil {
				h.logger.Debug("stats stream write failed", zap.Error(err))
				return
			}
		}
	}
}

var shanghai = time.FixedZone("CST", 8*60*60)

type dashboardData struct {
	Online     int
	Bubbles    int
	Host       string
	ServerTime string
}

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>此刻地图服务器</title>
  <style>
    * { margin: 0; padding: 0; box-sizing: border-box; }
    body {
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Arial, sans-serif;
      display: flex; justify-content: center; align-items: center;
      min-height: 100vh; padding: 20px; color: white;
      background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
    }
    .container {
      text-align: center; padding: 40px; max-width: 500px; width: 100%;
      background: rgba(255,255,255,0.15); border-radius: 20px;
      box-shadow: 0 8px 32px rgba(0,0,0,0.1);
    }
    h1 { font-size: 36px; margin-bottom: 10px; }
    .subtitle { font-size: 16px; opacity: 0.9; margin-bottom: 30px; }
    .status { font-size: 20px; color: #4ade80; margin-bottom: 30px; }
    .stats { display: grid; grid-template-columns: 1fr 1fr; gap: 20px; margin: 30px 0; }
    .stat-box { background: rgba(255,255,255,0.1); padding: 20px; border-radius: 15px; }
    .stat-number { font-size: 48px; font-weight: bold; margin-bottom: 5px; }
    .stat-label { font-size: 14px; opacity: 0.8; }
    .info {
      margin-top: 30px; padding: 20px; background: rgba(0,0,0,0.2);
      border-radius: 15px; font-size: 13px; line-height: 1.8; text-align: left;
    }
    .info-item { margin-bottom: 10px; word-break: break-all; }
    .label { color: #fbbf24; font-weight: bold; }
  </style>
</head>
<body>
  <div class="container">
    <h1>此刻地图</h1>
    <div class="subtitle">MomentMap Server</div>
    <div class="status">服务器运行中</div>
    <div class="stats">
      <div class="stat-box">
        <div class="stat-number" id="online">{{.Online}}</div>
        <div class="stat-label">在线用户</div>
      </div>
      <div class="stat-box">
        <div class="stat-number" id="bubbles">{{.Bubbles}}</div>
        <div class="stat-label">活跃气泡</div>
      </div>
    </div>
    <div class="info">
      <div class="info-item"><span class="label">WebSocket:</span><br>wss://{{.Host}}</div>
      <div class="info-item"><span class="label">HTTP API:</span><br>https://{{.Host}}</div>
      <div class="info-item"><span class="label">服务器时间:</span><br><span id="time">{{.ServerTime}}</span></div>
    </div>
  </div>
  <script>
    const source = new EventSource("/api/stats/stream");
    source.addEventListener("stats", (e) => {
      const s = JSON.parse(e.data);
      document.getElementById("online").textContent = s.online;
      document.getElementById("bubbles").textContent = s.bubbles;
      document.getElementById("time").textContent = new Date(s.time).toLocaleString("zh-CN", { timeZone: "Asia/Shanghai" });
    });
  </script>
</body>
</html>
`))
