// Package relay routes client events between sessions, fans broadcasts out,
// and runs the timers that expire bubbles and evict idle sessions.
package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/moment-map/backend/internal/events"
	bubblesvc "github.com/zhouzirui/moment-map/backend/internal/service/bubble"
	presencesvc "github.com/zhouzirui/moment-map/backend/internal/service/presence"
	"github.com/zhouzirui/moment-map/backend/internal/telemetry"
)

// Options configures a Hub. Zero values fall back to defaults.
type Options struct {
	Logger            *zap.Logger
	Metrics           *telemetry.Metrics
	Events            events.Publisher
	InactivityTimeout time.Duration
}

// connState tracks one attached connection. userID is empty while the
// connection is anonymous.
type connState struct {
	userID string
}

// Hub owns the session registry and the bubble store. Every inbound event and
// every timer callback runs under mu, so handlers never interleave.
type Hub struct {
	mu       sync.Mutex
	registry *presencesvc.Registry
	bubbles  *bubblesvc.Store
	conns    map[presencesvc.Conn]*connState
	timers   map[string]*time.Timer
	closed   bool

	inactivity time.Duration
	logger     *zap.Logger
	metrics    *telemetry.Metrics
	events     events.Publisher
	now        func() time.Time
}

// NewHub builds a hub around an empty registry and store.
func NewHub(opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.InactivityTimeout <= 0 {
		opts.InactivityTimeout = 5 * time.Minute
	}

	return &Hub{
		registry:   presencesvc.NewRegistry(),
		bubbles:    bubblesvc.NewStore(),
		conns:      make(map[presencesvc.Conn]*connState),
		timers:     make(map[string]*time.Timer),
		inactivity: opts.InactivityTimeout,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		events:     opts.Events,
		now:        time.Now,
	}
}

// Registry exposes the session registry for read-only consumers.
func (h *Hub) Registry() *presencesvc.Registry {
	return h.registry
}

// Bubbles exposes the bubble store for read-only consumers.
func (h *Hub) Bubbles() *bubblesvc.Store {
	return h.bubbles
}

// Attach starts tracking a freshly opened connection and greets it.
func (h *Hub) Attach(conn presencesvc.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		_ = conn.Close()
		return
	}

	h.conns[conn] = &connState{}
	h.logger.Info("connection opened", zap.String("conn_id", conn.ID()), zap.Int("connections", len(h.conns)))

	_ = h.sendLocked(conn, connectedEvent{
		Type:       TypeConnected,
		Message:    WelcomeMessage,
		ServerTime: h.now().UTC().Format(time.RFC3339Nano),
	})
}

// Detach forgets a closed connection. If it still owned a session, the
// session is removed and the departure announced.
func (h *Hub) Detach(conn presencesvc.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.conns[conn]
	if !ok {
		return
	}
	delete(h.conns, conn)

	if st.userID == "" {
		h.logger.Debug("anonymous connection closed", zap.String("conn_id", conn.ID()))
		return
	}

	session, removed := h.registry.RemoveIf(st.userID, conn)
	if !removed {
		return
	}

	h.logger.Info("user left",
		zap.String("user_id", st.userID),
		zap.String("nickname", session.Profile.DisplayName()),
		zap.Int("online", h.registry.Size()),
	)
	if h.closed {
		return
	}
	h.announceDepartureLocked(st.userID)
}

// Touch records liveness for the session owned by conn, if any.
func (h *Hub) Touch(conn presencesvc.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.touchLocked(conn)
}

func (h *Hub) touchLocked(conn presencesvc.Conn) {
	st, ok := h.conns[conn]
	if !ok || st.userID == "" {
		return
	}
	if h.registry.Owns(st.userID, conn) {
		h.registry.Touch(st.userID)
	}
}

// Broadcast fans ev out to every open session except excludeID and returns
// the number of successful deliveries.
func (h *Hub) Broadcast(ev Event, excludeID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.broadcastLocked(ev, excludeID)
}

func (h *Hub) broadcastLocked(ev Event, excludeID string) int {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode broadcast failed", zap.String("type", ev.EventType()), zap.Error(err))
		return 0
	}

	sent, failed := 0, 0
	for _, s := range h.registry.Sessions() {
		if s.Profile.ID == excludeID || !s.Conn.Open() {
			continue
		}
		if err := s.Conn.Send(payload); err != nil {
			failed++
			h.logger.Warn("broadcast delivery failed",
				zap.String("type", ev.EventType()),
				zap.String("user_id", s.Profile.ID),
				zap.String("conn_id", s.Conn.ID()),
				zap.Error(err),
			)
			continue
		}
		sent++
	}

	h.metrics.Broadcast(context.Background(), ev.EventType(), sent, failed)
	if err := h.events.Publish(ev.EventType(), payload); err != nil {
		h.logger.Warn("event mirror publish failed", zap.String("type", ev.EventType()), zap.Error(err))
	}
	if sent > 0 {
		h.logger.Debug("broadcast", zap.String("type", ev.EventType()), zap.Int("recipients", sent))
	}
	return sent
}

// sendLocked delivers ev to a single connection.
func (h *Hub) sendLocked(conn presencesvc.Conn, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode message failed", zap.String("type", ev.EventType()), zap.Error(err))
		return err
	}
	if err := conn.Send(payload); err != nil {
		h.metrics.DeliveryFailed(context.Background(), ev.EventType())
		h.logger.Warn("send failed",
			zap.String("type", ev.EventType()),
			zap.String("conn_id", conn.ID()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (h *Hub) announceDepartureLocked(userID string) {
	h.broadcastLocked(onlineCountEvent{Type: TypeOnlineCount, Count: h.registry.Size()}, "")
	h.broadcastLocked(userLeftEvent{Type: TypeUserLeft, UserID: userID}, "")
}

// Shutdown announces the shutdown to every session, stops pending expiry
// timers and closes every connection. Later events are ignored.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, t := range h.timers {
		t.Stop()
		delete(h.timers, id)
	}

	delivered := h.broadcastLocked(serverShutdownEvent{Type: TypeServerShutdown, Message: ShutdownMessage}, "")
	h.logger.Info("shutdown announced", zap.Int("recipients", delivered), zap.Int("connections", len(h.conns)))

	for conn := range h.conns {
		if err := conn.Close(); err != nil {
			h.logger.Debug("close connection failed", zap.String("conn_id", conn.ID()), zap.Error(err))
		}
	}
}
