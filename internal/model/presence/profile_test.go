package presence

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseProfileKeepsOpaqueFields(t *testing.T) {
	raw := json.RawMessage(`{"id":"u1","nickname":"阿离","avatar":"🐱","status":{"mood":"happy"},"position":[121.47,31.23]}`)

	p, err := ParseProfile(raw)
	if err != nil {
		t.Fatalf("ParseProfile err: %v", err)
	}
	if p.ID != "u1" || p.DisplayName() != "阿离" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if string(p.Status) != `{"mood":"happy"}` {
		t.Fatalf("status not preserved: %s", p.Status)
	}
	if string(p.Position) != `[121.47,31.23]` {
		t.Fatalf("position not preserved: %s", p.Position)
	}
}

func TestParseProfileRequiresID(t *testing.T) {
	if _, err := ParseProfile(json.RawMessage(`{"nickname":"nobody"}`)); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
	if _, err := ParseProfile(nil); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID for empty payload, got %v", err)
	}
}

func TestParseProfileAcceptsNumericIDAndNickname(t *testing.T) {
	p, err := ParseProfile(json.RawMessage(`{"id":1024,"nickname":7}`))
	if err != nil {
		t.Fatalf("ParseProfile err: %v", err)
	}
	if p.ID != "1024" {
		t.Fatalf("expected id 1024, got %q", p.ID)
	}
	if string(p.Nickname) != "7" {
		t.Fatalf("nickname should pass through, got %s", p.Nickname)
	}

	out, err := json.Marshal(p.Roster())
	if err != nil {
		t.Fatalf("Marshal err: %v", err)
	}
	if string(out) != `{"id":"1024","nickname":7}` {
		t.Fatalf("unexpected roster entry %s", out)
	}
}

func TestParseProfileRejectsNonScalarID(t *testing.T) {
	if _, err := ParseProfile(json.RawMessage(`{"id":{"v":1}}`)); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
}

func TestParseProfileRejectsWrongShape(t *testing.T) {
	if _, err := ParseProfile(json.RawMessage(`"u1"`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSummaryUsesMillis(t *testing.T) {
	joined := time.UnixMilli(1700000000123)
	s := Profile{ID: "u1"}.Summary(joined)
	if s.JoinTime != 1700000000123 {
		t.Fatalf("unexpected join time: %d", s.JoinTime)
	}
}
