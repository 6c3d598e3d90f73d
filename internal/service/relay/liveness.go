package relay

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EvictStale closes and removes every session idle for longer than the
// inactivity timeout at now, announcing each departure like a voluntary
// disconnect. It returns the evicted ids.
func (h *Hub) EvictStale(now time.Time) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	var evicted []string
	for _, s := range h.registry.Stale(now, h.inactivity) {
		if _, ok := h.registry.RemoveIf(s.Profile.ID, s.Conn); !ok {
			continue
		}
		if st, ok := h.conns[s.Conn]; ok {
			st.userID = ""
		}
		if err := s.Conn.Close(); err != nil {
			h.logger.Debug("close stale connection failed", zap.String("conn_id", s.Conn.ID()), zap.Error(err))
		}

		h.metrics.SessionEvicted(context.Background())
		h.logger.Info("evicted inactive user",
			zap.String("user_id", s.Profile.ID),
			zap.Duration("idle", now.Sub(s.LastActive)),
		)
		h.announceDepartureLocked(s.Profile.ID)
		evicted = append(evicted, s.Profile.ID)
	}
	return evicted
}

// Monitor periodically evicts idle sessions and sweeps expired bubbles.
type Monitor struct {
	hub      *Hub
	interval time.Duration
	logger   *zap.Logger
}

// NewMonitor returns a monitor ticking every interval.
func NewMonitor(hub *Hub, interval time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{hub: hub, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("liveness monitor started", zap.Duration("interval", m.interval))
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			m.Sweep(t)
		}
	}
}

// Sweep runs one pass at now.
func (m *Monitor) Sweep(now time.Time) {
	evicted := m.hub.EvictStale(now)
	expired := m.hub.SweepBubbles(now)
	if len(evicted) > 0 || len(expired) > 0 {
		m.logger.Debug("sweep finished", zap.Int("evicted", len(evicted)), zap.Int("expired", len(expired)))
	}
}
