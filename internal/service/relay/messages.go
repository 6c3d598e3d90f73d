package relay

import (
	"encoding/json"
	"errors"

	"github.com/zhouzirui/moment-map/backend/internal/model/bubble"
	"github.com/zhouzirui/moment-map/backend/internal/model/presence"
)

// Event types on the wire.
const (
	TypeConnected          = "connected"
	TypeUserJoin           = "userJoin"
	TypeOnlineCount        = "onlineCount"
	TypeOnlineUsers        = "onlineUsers"
	TypeExistingBubbles    = "existingBubbles"
	TypePrivateMessage     = "privateMessage"
	TypeMessageSent        = "messageSent"
	TypeMessageError       = "messageError"
	TypeNewBubble          = "newBubble"
	TypeBubbleExpired      = "bubbleExpired"
	TypeUpdatePosition     = "updatePosition"
	TypeUserPositionUpdate = "userPositionUpdate"
	TypePing               = "ping"
	TypePong               = "pong"
	TypeUserLeft           = "userLeft"
	TypeServerShutdown     = "serverShutdown"
)

// Fixed texts sent to clients.
const (
	WelcomeMessage    = "已连接到此刻地图服务器"
	ReasonPeerOffline = "对方不在线"
	ShutdownMessage   = "服务器即将重启"
)

var (
	// ErrMalformed marks an inbound message that could not be decoded.
	ErrMalformed = errors.New("malformed message")
	// ErrMissingField marks an inbound message without a required field.
	ErrMissingField = errors.New("missing required field")
)

// inbound is the union of every client→server message.
type inbound struct {
	Type     string          `json:"type"`
	User     json.RawMessage `json:"user,omitempty"`
	Message  json.RawMessage `json:"message,omitempty"`
	Bubble   json.RawMessage `json:"bubble,omitempty"`
	Position json.RawMessage `json:"position,omitempty"`
}

// privateEnvelope holds the routing fields of a private message; the message
// itself is forwarded untouched.
type privateEnvelope struct {
	ID       json.RawMessage `json:"id"`
	FromName json.RawMessage `json:"fromName"`
	ToID     json.RawMessage `json:"toId"`
	ToName   json.RawMessage `json:"toName"`
}

// Event is anything the hub can put on the wire.
type Event interface {
	EventType() string
}

type connectedEvent struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	ServerTime string `json:"serverTime"`
}

func (connectedEvent) EventType() string { return TypeConnected }

type onlineCountEvent struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func (onlineCountEvent) EventType() string { return TypeOnlineCount }

type onlineUsersEvent struct {
	Type  string                 `json:"type"`
	Users []presence.RosterEntry `json:"users"`
}

func (onlineUsersEvent) EventType() string { return TypeOnlineUsers }

type existingBubblesEvent struct {
	Type    string          `json:"type"`
	Bubbles []bubble.Bubble `json:"bubbles"`
}

func (existingBubblesEvent) EventType() string { return TypeExistingBubbles }

type privateMessageEvent struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

func (privateMessageEvent) EventType() string { return TypePrivateMessage }

type messageSentEvent struct {
	Type      string          `json:"type"`
	MessageID json.RawMessage `json:"messageId"`
}

func (messageSentEvent) EventType() string { return TypeMessageSent }

type messageErrorEvent struct {
	Type      string          `json:"type"`
	Error     string          `json:"error"`
	MessageID json.RawMessage `json:"messageId"`
}

func (messageErrorEvent) EventType() string { return TypeMessageError }

type newBubbleEvent struct {
	Type   string        `json:"type"`
	Bubble bubble.Bubble `json:"bubble"`
}

func (newBubbleEvent) EventType() string { return TypeNewBubble }

type bubbleExpiredEvent struct {
	Type     string `json:"type"`
	BubbleID string `json:"bubbleId"`
}

func (bubbleExpiredEvent) EventType() string { return TypeBubbleExpired }

type userPositionUpdateEvent struct {
	Type     string          `json:"type"`
	UserID   string          `json:"userId"`
	Position json.RawMessage `json:"position"`
}

func (userPositionUpdateEvent) EventType() string { return TypeUserPositionUpdate }

type pongEvent struct {
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
}

func (pongEvent) EventType() string { return TypePong }

type userLeftEvent struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

func (userLeftEvent) EventType() string { return TypeUserLeft }

type serverShutdownEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (serverShutdownEvent) EventType() string { return TypeServerShutdown }
