package relay

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/zhouzirui/moment-map/backend/internal/model/bubble"
)

func mustBubble(t *testing.T, raw string) bubble.Bubble {
	t.Helper()
	b, err := bubble.Parse(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("parse bubble %s: %v", raw, err)
	}
	return b
}

func TestNewBubbleBroadcastsToEveryone(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "A")
	b := connect(t, h, "B")
	a.reset()
	b.reset()

	h.HandleMessage(a, []byte(`{"type":"newBubble","bubble":{"id":"b1","title":"hi","color":"#fff"}}`))

	for _, conn := range []*fakeConn{a, b} {
		got := ofType(conn.received(t), TypeNewBubble)
		if len(got) != 1 {
			t.Fatalf("%s should see the bubble once, got %v", conn.id, types(conn.received(t)))
		}
		var body map[string]any
		_ = json.Unmarshal(got[0].Bubble, &body)
		if body["color"] != "#fff" {
			t.Fatalf("extra bubble fields should pass through, got %v", body)
		}
	}
	if _, ok := h.Bubbles().Get("b1"); !ok {
		t.Fatal("bubble should be stored")
	}
}

func TestBubbleExpiresByTimer(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "A")
	a.reset()

	h.PublishBubble(mustBubble(t, `{"id":"b1","duration":0.05}`))
	if _, ok := h.Bubbles().Get("b1"); !ok {
		t.Fatal("bubble should be present before its duration elapses")
	}

	waitFor(t, time.Second, func() bool { return h.Bubbles().Len() == 0 })
	waitFor(t, time.Second, func() bool { return len(ofType(a.received(t), TypeBubbleExpired)) == 1 })

	expired := ofType(a.received(t), TypeBubbleExpired)
	if expired[0].BubbleID != "b1" {
		t.Fatalf("unexpected expiry %+v", expired[0])
	}
}

func TestSweepExpiresOverdueBubblesOnce(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "A")
	a.reset()

	h.PublishBubble(mustBubble(t, `{"id":"b1","duration":60}`))
	h.PublishBubble(mustBubble(t, `{"id":"b2","duration":600}`))

	later := time.Now().Add(2 * time.Minute)
	if got := h.SweepBubbles(later); fmt.Sprint(got) != "[b1]" {
		t.Fatalf("expected b1 swept, got %v", got)
	}
	if got := h.SweepBubbles(later); len(got) != 0 {
		t.Fatalf("second sweep removed %v", got)
	}
	if _, ok := h.Bubbles().Get("b2"); !ok {
		t.Fatal("b2 is not due yet")
	}

	h.mu.Lock()
	_, pending := h.timers["b1"]
	h.mu.Unlock()
	if pending {
		t.Fatal("sweep should cancel the pending timer")
	}
	if n := len(ofType(a.received(t), TypeBubbleExpired)); n != 1 {
		t.Fatalf("expected one bubbleExpired, got %d", n)
	}
}

func TestSweepUsesCreatedAt(t *testing.T) {
	h := newTestHub(t)
	created := time.Now().Add(-time.Hour).UnixMilli()
	h.PublishBubble(mustBubble(t, fmt.Sprintf(`{"id":"old","duration":60,"createdAt":%d}`, created)))

	if got := h.SweepBubbles(time.Now()); fmt.Sprint(got) != "[old]" {
		t.Fatalf("bubble created an hour ago should be swept, got %v", got)
	}
}

func TestPrivateAndOpenEndedBubblesNeverExpire(t *testing.T) {
	h := newTestHub(t)
	h.PublishBubble(mustBubble(t, `{"id":"secret","isPrivate":true,"duration":0.01}`))
	h.PublishBubble(mustBubble(t, `{"id":"forever"}`))
	h.PublishBubble(mustBubble(t, `{"id":"zero","duration":0}`))

	time.Sleep(30 * time.Millisecond)
	if got := h.SweepBubbles(time.Now().Add(24 * time.Hour)); len(got) != 0 {
		t.Fatalf("nothing should expire, got %v", got)
	}
	if h.Bubbles().Len() != 3 {
		t.Fatalf("expected 3 bubbles, got %d", h.Bubbles().Len())
	}
}

func TestRepublishReplacesAndReschedules(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "A")

	h.PublishBubble(mustBubble(t, `{"id":"b1","title":"v1","duration":0.03}`))
	h.PublishBubble(mustBubble(t, `{"id":"b1","title":"v2","duration":60}`))

	time.Sleep(80 * time.Millisecond)
	got, ok := h.Bubbles().Get("b1")
	if !ok || got.Title != "v2" {
		t.Fatalf("republished bubble should survive the first timer, got %+v ok=%v", got, ok)
	}
	if h.Bubbles().Len() != 1 {
		t.Fatalf("republish must not duplicate, got %d", h.Bubbles().Len())
	}
	if n := len(ofType(a.received(t), TypeBubbleExpired)); n != 0 {
		t.Fatalf("stale timer announced %d expiries", n)
	}
}

// u1 publishes a two-unit bubble; it is listed after one unit and gone,
// with the expiry announced, after three.
func TestBubbleLifetimeScenario(t *testing.T) {
	const unit = 50 * time.Millisecond
	h := newTestHub(t)
	u1 := connect(t, h, "u1")
	other := connect(t, h, "u2")
	other.reset()

	h.HandleMessage(u1, []byte(fmt.Sprintf(`{"type":"newBubble","bubble":{"id":"b1","isPrivate":false,"duration":%g}}`, (2 * unit).Seconds())))

	time.Sleep(unit)
	if list := h.Bubbles().List(); len(list) != 1 || list[0].ID != "b1" {
		t.Fatalf("b1 should still be listed, got %+v", list)
	}

	time.Sleep(2 * unit)
	waitFor(t, time.Second, func() bool { return h.Bubbles().Len() == 0 })

	expired := ofType(other.received(t), TypeBubbleExpired)
	if len(expired) != 1 || expired[0].BubbleID != "b1" {
		t.Fatalf("u2 should see bubbleExpired for b1, got %+v", expired)
	}
}

func TestHugeDurationDoesNotExpireImmediately(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "A")
	a.reset()

	h.HandleMessage(a, []byte(`{"type":"newBubble","bubble":{"id":"b1","isPrivate":false,"duration":1e10}}`))
	time.Sleep(50 * time.Millisecond)

	if h.Bubbles().Len() != 1 {
		t.Fatal("bubble with a huge duration should still be stored")
	}
	if got := h.SweepBubbles(time.Now().Add(365 * 24 * time.Hour)); len(got) != 0 {
		t.Fatalf("sweep removed %v", got)
	}
	if n := len(ofType(a.received(t), TypeBubbleExpired)); n != 0 {
		t.Fatalf("expected no expiry, got %d", n)
	}
}
