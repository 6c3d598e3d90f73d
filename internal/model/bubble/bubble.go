package bubble

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/zhouzirui/moment-map/backend/internal/model/opaque"
)

// ErrMissingID is returned when a published bubble carries no id.
var ErrMissingID = errors.New("bubble id is required")

// Bubble is a short-lived post pinned to a location. Only the fields the relay
// needs for expiry are decoded; the publisher's original JSON is kept and is
// what gets rebroadcast and listed.
type Bubble struct {
	ID        string
	Title     string
	IsPrivate bool
	// Duration is the lifetime in seconds; nil means the bubble never expires.
	Duration *float64
	// CreatedAt is the publisher's timestamp in milliseconds since epoch, 0 when absent.
	CreatedAt int64

	raw json.RawMessage
}

// inboundBubble tolerates numeric ids and non-string titles.
type inboundBubble struct {
	ID        json.RawMessage `json:"id"`
	Title     json.RawMessage `json:"title"`
	IsPrivate bool            `json:"isPrivate"`
	Duration  json.RawMessage `json:"duration"`
	CreatedAt json.RawMessage `json:"createdAt"`
}

type wireBubble struct {
	ID        string          `json:"id"`
	Title     string          `json:"title,omitempty"`
	IsPrivate bool            `json:"isPrivate"`
	Duration  json.RawMessage `json:"duration,omitempty"`
	CreatedAt json.RawMessage `json:"createdAt,omitempty"`
}

// Parse decodes a newBubble payload.
func Parse(raw json.RawMessage) (Bubble, error) {
	var b Bubble
	if err := json.Unmarshal(raw, &b); err != nil {
		return Bubble{}, err
	}
	if b.ID == "" {
		return Bubble{}, ErrMissingID
	}
	return b, nil
}

// UnmarshalJSON keeps a copy of the input so the bubble can be re-sent verbatim.
func (b *Bubble) UnmarshalJSON(data []byte) error {
	var w inboundBubble
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode bubble: %w", err)
	}

	duration, ok := parseNumber(w.Duration)
	if ok {
		b.Duration = &duration
	} else {
		b.Duration = nil
	}

	// Out-of-range timestamps are treated as absent.
	b.CreatedAt = 0
	if createdAt, ok := parseNumber(w.CreatedAt); ok && createdAt > 0 && createdAt < maxMillis {
		b.CreatedAt = int64(createdAt)
	}

	b.ID, _ = opaque.Text(w.ID)
	b.Title, _ = opaque.Text(w.Title)
	b.IsPrivate = w.IsPrivate
	b.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the publisher's original payload when there is one.
func (b Bubble) MarshalJSON() ([]byte, error) {
	if len(b.raw) > 0 {
		return b.raw, nil
	}

	w := wireBubble{ID: b.ID, Title: b.Title, IsPrivate: b.IsPrivate}
	if b.Duration != nil {
		w.Duration = json.RawMessage(strconv.FormatFloat(*b.Duration, 'f', -1, 64))
	}
	if b.CreatedAt > 0 {
		w.CreatedAt = json.RawMessage(strconv.FormatInt(b.CreatedAt, 10))
	}
	return json.Marshal(w)
}

// Bounds of the int64 conversions; larger values saturate.
const (
	maxNanos  = float64(math.MaxInt64)
	maxMillis = maxNanos / float64(time.Millisecond)
)

// Expires reports whether the bubble is subject to automatic expiry.
func (b Bubble) Expires() bool {
	return !b.IsPrivate && b.Duration != nil && *b.Duration > 0
}

// TTL is the bubble lifetime, zero when it never expires.
func (b Bubble) TTL() time.Duration {
	if !b.Expires() {
		return 0
	}
	ns := *b.Duration * float64(time.Second)
	if ns >= maxNanos {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}

// ExpiredAt reports whether the bubble's age exceeds its duration at now. Age
// is measured from CreatedAt, or from receivedAt when the publisher sent none.
func (b Bubble) ExpiredAt(now, receivedAt time.Time) bool {
	if !b.Expires() {
		return false
	}
	born := receivedAt
	if b.CreatedAt > 0 {
		born = time.UnixMilli(b.CreatedAt)
	}
	return now.Sub(born) > b.TTL()
}

// parseNumber accepts JSON numbers and numeric strings.
func parseNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
