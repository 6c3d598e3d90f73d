package presence

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zhouzirui/moment-map/backend/internal/model/opaque"
)

// ErrMissingID is returned when a profile arrives without an identity.
var ErrMissingID = errors.New("profile id is required")

// Profile is what a client announces in userJoin. Everything except the id is
// passed through untouched. Numeric ids are keyed by their decimal text, so
// 42 and "42" name the same user.
type Profile struct {
	ID       string          `json:"id"`
	Nickname json.RawMessage `json:"nickname,omitempty"`
	Avatar   json.RawMessage `json:"avatar,omitempty"`
	Status   json.RawMessage `json:"status,omitempty"`
	Position json.RawMessage `json:"position,omitempty"`
}

type wireProfile struct {
	ID       json.RawMessage `json:"id"`
	Nickname json.RawMessage `json:"nickname"`
	Avatar   json.RawMessage `json:"avatar"`
	Status   json.RawMessage `json:"status"`
	Position json.RawMessage `json:"position"`
}

// UnmarshalJSON accepts string or numeric ids.
func (p *Profile) UnmarshalJSON(data []byte) error {
	var w wireProfile
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id, _ := opaque.Text(w.ID)
	*p = Profile{
		ID:       id,
		Nickname: w.Nickname,
		Avatar:   w.Avatar,
		Status:   w.Status,
		Position: w.Position,
	}
	return nil
}

// ParseProfile decodes a userJoin user object.
func ParseProfile(raw json.RawMessage) (Profile, error) {
	var p Profile
	if len(raw) == 0 {
		return Profile{}, ErrMissingID
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if p.ID == "" {
		return Profile{}, ErrMissingID
	}
	return p, nil
}

// DisplayName is the nickname as a plain string for logs.
func (p Profile) DisplayName() string {
	return opaque.Display(p.Nickname)
}

// RosterEntry is one element of the onlineUsers list sent to a joining client.
type RosterEntry struct {
	ID       string          `json:"id"`
	Nickname json.RawMessage `json:"nickname,omitempty"`
	Avatar   json.RawMessage `json:"avatar,omitempty"`
	Status   json.RawMessage `json:"status,omitempty"`
}

// UserSummary is the read-only view served by /api/users.
type UserSummary struct {
	ID       string          `json:"id"`
	Nickname json.RawMessage `json:"nickname,omitempty"`
	Status   json.RawMessage `json:"status,omitempty"`
	JoinTime int64           `json:"joinTime"`
}

// Roster projects the profile into its roster entry.
func (p Profile) Roster() RosterEntry {
	return RosterEntry{ID: p.ID, Nickname: p.Nickname, Avatar: p.Avatar, Status: p.Status}
}

// Summary projects the profile into its /api/users entry.
func (p Profile) Summary(joinedAt time.Time) UserSummary {
	return UserSummary{ID: p.ID, Nickname: p.Nickname, Status: p.Status, JoinTime: joinedAt.UnixMilli()}
}
