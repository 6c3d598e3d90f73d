package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/moment-map/backend/internal/model/bubble"
	bubblesvc "github.com/zhouzirui/moment-map/backend/internal/service/bubble"
	"github.com/zhouzirui/moment-map/backend/internal/telemetry"
)

// PublishBubble stores b, announces it to everyone and, for public bubbles
// with a duration, schedules its expiry.
func (h *Hub) PublishBubble(b bubble.Bubble) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.publishBubbleLocked(b)
}

func (h *Hub) publishBubbleLocked(b bubble.Bubble) {
	entry, replaced := h.bubbles.Put(b)
	if old, ok := h.timers[b.ID]; ok {
		old.Stop()
		delete(h.timers, b.ID)
	}

	h.logger.Info("bubble published",
		zap.String("bubble_id", b.ID),
		zap.String("title", b.Title),
		zap.Bool("private", b.IsPrivate),
		zap.Bool("replaced", replaced),
		zap.Int("bubbles", h.bubbles.Len()),
	)
	h.broadcastLocked(newBubbleEvent{Type: TypeNewBubble, Bubble: b}, "")

	if !b.Expires() {
		return
	}
	id := b.ID
	h.timers[id] = time.AfterFunc(b.TTL(), func() {
		h.expireBubble(id, entry)
	})
}

// expireBubble is the one-shot timer path.
func (h *Hub) expireBubble(id string, entry *bubblesvc.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.expireLocked(id, entry, telemetry.MechanismTimer)
}

// expireLocked removes entry if it is still stored and announces the expiry.
// Whichever of the timer and the sweep gets here first does the work; the
// other finds nothing to remove.
func (h *Hub) expireLocked(id string, entry *bubblesvc.Entry, mechanism string) bool {
	if !h.bubbles.RemoveIf(id, entry) {
		return false
	}
	if t, ok := h.timers[id]; ok {
		t.Stop()
		delete(h.timers, id)
	}

	h.metrics.BubbleExpired(context.Background(), mechanism)
	h.logger.Info("bubble expired",
		zap.String("bubble_id", id),
		zap.String("title", entry.Bubble.Title),
		zap.String("mechanism", mechanism),
	)
	h.broadcastLocked(bubbleExpiredEvent{Type: TypeBubbleExpired, BubbleID: id}, "")
	return true
}

// SweepBubbles removes every public bubble whose age exceeds its duration at
// now and returns the removed ids. It covers timers that never fired, for
// example after the process was suspended.
func (h *Hub) SweepBubbles(now time.Time) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	var removed []string
	for _, e := range h.bubbles.Expired(now) {
		if h.expireLocked(e.Bubble.ID, e, telemetry.MechanismSweep) {
			removed = append(removed, e.Bubble.ID)
		}
	}
	if len(removed) > 0 {
		h.logger.Info("swept expired bubbles", zap.Int("count", len(removed)))
	}
	return removed
}
