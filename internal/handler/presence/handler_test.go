package presence

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	model "github.com/zhouzirui/moment-map/backend/internal/model/presence"
	presencesvc "github.com/zhouzirui/moment-map/backend/internal/service/presence"
)

type nopConn struct{ id string }

func (c nopConn) ID() string        { return c.id }
func (c nopConn) Send([]byte) error { return nil }
func (c nopConn) Open() bool        { return true }
func (c nopConn) Close() error      { return nil }

func TestListUsers(t *testing.T) {
	registry := presencesvc.NewRegistry()
	registry.Admit(model.Profile{ID: "u1", Nickname: json.RawMessage(`"Alice"`), Status: json.RawMessage(`"coding"`)}, nopConn{id: "c1"})

	r := chi.NewRouter()
	New(registry).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var users []struct {
		ID       string `json:"id"`
		Nickname string `json:"nickname"`
		Status   string `json:"status"`
		JoinTime int64  `json:"joinTime"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(users) != 1 || users[0].ID != "u1" || users[0].Nickname != "Alice" || users[0].Status != "coding" {
		t.Fatalf("unexpected users %+v", users)
	}
	if users[0].JoinTime == 0 {
		t.Fatal("joinTime should be set")
	}
}

func TestListUsersEmpty(t *testing.T) {
	r := chi.NewRouter()
	New(presencesvc.NewRegistry()).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))

	if body := rec.Body.String(); body != "[]\n" {
		t.Fatalf("expected empty array, got %q", body)
	}
}
