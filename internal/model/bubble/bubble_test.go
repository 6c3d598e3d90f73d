package bubble

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseKeepsOriginalPayload(t *testing.T) {
	raw := json.RawMessage(`{"id":"b1","title":"咖啡","isPrivate":false,"duration":60,"createdAt":1700000000000,"lat":31.2,"emoji":"☕"}`)

	b, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if b.ID != "b1" || b.Title != "咖啡" {
		t.Fatalf("unexpected bubble: %+v", b)
	}
	if b.Duration == nil || *b.Duration != 60 {
		t.Fatalf("unexpected duration: %v", b.Duration)
	}

	out, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal err: %v", err)
	}
	if string(out) != string(raw) {
		t.Fatalf("expected payload passthrough, got %s", out)
	}
}

func TestParseRequiresID(t *testing.T) {
	if _, err := Parse(json.RawMessage(`{"title":"x"}`)); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
}

func TestParseAcceptsNumericStringDuration(t *testing.T) {
	b, err := Parse(json.RawMessage(`{"id":"b1","duration":"30"}`))
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if b.TTL() != 30*time.Second {
		t.Fatalf("expected 30s ttl, got %s", b.TTL())
	}
}

func TestExpires(t *testing.T) {
	d := 10.0
	zero := 0.0
	cases := []struct {
		name string
		b    Bubble
		want bool
	}{
		{"public with duration", Bubble{ID: "a", Duration: &d}, true},
		{"private with duration", Bubble{ID: "b", IsPrivate: true, Duration: &d}, false},
		{"no duration", Bubble{ID: "c"}, false},
		{"zero duration", Bubble{ID: "d", Duration: &zero}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.b.Expires(); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestExpiredAtUsesCreatedAtThenReceipt(t *testing.T) {
	d := 2.0
	received := time.UnixMilli(1_700_000_010_000)

	withCreated := Bubble{ID: "a", Duration: &d, CreatedAt: 1_700_000_000_000}
	if !withCreated.ExpiredAt(received, received) {
		t.Fatal("expected bubble aged from createdAt to be expired")
	}

	withoutCreated := Bubble{ID: "b", Duration: &d}
	if withoutCreated.ExpiredAt(received.Add(1900*time.Millisecond), received) {
		t.Fatal("expected bubble to be alive before its duration")
	}
	if !withoutCreated.ExpiredAt(received.Add(2100*time.Millisecond), received) {
		t.Fatal("expected bubble to be expired after its duration")
	}
}

func TestPrivateNeverExpires(t *testing.T) {
	d := 1.0
	b := Bubble{ID: "p", IsPrivate: true, Duration: &d, CreatedAt: 1}
	if b.ExpiredAt(time.Now().Add(24*time.Hour), time.Now()) {
		t.Fatal("private bubble must never expire")
	}
}

func TestHugeDurationSaturates(t *testing.T) {
	b, err := Parse(json.RawMessage(`{"id":"b1","isPrivate":false,"duration":1e10}`))
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if b.TTL() != time.Duration(math.MaxInt64) {
		t.Fatalf("expected saturated ttl, got %s", b.TTL())
	}

	now := time.Now()
	if b.ExpiredAt(now.Add(24*time.Hour), now) {
		t.Fatal("a bubble with a huge duration must not expire")
	}
}

func TestOutOfRangeCreatedAtIsIgnored(t *testing.T) {
	b, err := Parse(json.RawMessage(`{"id":"b1","duration":60,"createdAt":1e30}`))
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if b.CreatedAt != 0 {
		t.Fatalf("expected createdAt dropped, got %d", b.CreatedAt)
	}

	now := time.Now()
	if b.ExpiredAt(now.Add(30*time.Second), now) {
		t.Fatal("age should fall back to receipt time")
	}
}

func TestParseRejectsNonFiniteDuration(t *testing.T) {
	b, err := Parse(json.RawMessage(`{"id":"b1","duration":"NaN"}`))
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if b.Duration != nil || b.Expires() {
		t.Fatalf("NaN duration should read as absent, got %v", b.Duration)
	}
}

func TestParseAcceptsNumericIDAndTitle(t *testing.T) {
	raw := json.RawMessage(`{"id":77,"title":2024}`)
	b, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if b.ID != "77" || b.Title != "2024" {
		t.Fatalf("unexpected bubble %+v", b)
	}

	out, _ := json.Marshal(b)
	if string(out) != string(raw) {
		t.Fatalf("numeric id should be re-sent as published, got %s", out)
	}
}
