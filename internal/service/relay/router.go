package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/moment-map/backend/internal/model/bubble"
	"github.com/zhouzirui/moment-map/backend/internal/model/opaque"
	"github.com/zhouzirui/moment-map/backend/internal/model/presence"
	presencesvc "github.com/zhouzirui/moment-map/backend/internal/service/presence"
)

// HandleMessage decodes one inbound frame from conn and dispatches it.
// Malformed frames are logged and dropped; the connection stays open and the
// sender gets no reply.
func (h *Hub) HandleMessage(conn presencesvc.Conn, raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.dropMalformed(conn, fmt.Errorf("%w: %v", ErrMalformed, err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	st, ok := h.conns[conn]
	if !ok {
		return
	}

	var err error
	switch msg.Type {
	case TypeUserJoin:
		err = h.handleUserJoin(conn, st, msg.User)
	case TypePrivateMessage:
		err = h.handlePrivateMessage(conn, msg.Message)
	case TypeNewBubble:
		err = h.handleNewBubble(msg.Bubble)
	case TypeUpdatePosition:
		err = h.handleUpdatePosition(conn, st, msg.Position)
	case TypePing:
		_ = h.sendLocked(conn, pongEvent{Type: TypePong, ServerTime: h.now().UnixMilli()})
	default:
		h.logger.Debug("ignoring unknown message type", zap.String("conn_id", conn.ID()), zap.String("type", msg.Type))
	}
	if err != nil {
		h.dropMalformed(conn, err)
		return
	}

	h.touchLocked(conn)
}

func (h *Hub) dropMalformed(conn presencesvc.Conn, err error) {
	h.metrics.Malformed(context.Background())
	h.logger.Warn("dropping malformed message", zap.String("conn_id", conn.ID()), zap.Error(err))
}

func (h *Hub) handleUserJoin(conn presencesvc.Conn, st *connState, raw json.RawMessage) error {
	profile, err := presence.ParseProfile(raw)
	if err != nil {
		return fmt.Errorf("%w: userJoin: %v", ErrMalformed, err)
	}

	// A connection re-announcing under another id gives up its old identity.
	if st.userID != "" && st.userID != profile.ID {
		if _, ok := h.registry.RemoveIf(st.userID, conn); ok {
			h.broadcastLocked(userLeftEvent{Type: TypeUserLeft, UserID: st.userID}, "")
		}
	}

	prev, replaced := h.registry.Admit(profile, conn)
	st.userID = profile.ID

	if replaced && prev.Conn != conn {
		if prevState, ok := h.conns[prev.Conn]; ok {
			prevState.userID = ""
		}
		if err := prev.Conn.Close(); err != nil {
			h.logger.Debug("close superseded connection failed", zap.String("conn_id", prev.Conn.ID()), zap.Error(err))
		}
		h.logger.Info("superseded connection closed",
			zap.String("user_id", profile.ID),
			zap.String("old_conn_id", prev.Conn.ID()),
			zap.String("conn_id", conn.ID()),
		)
	}

	online := h.registry.Size()
	h.logger.Info("user joined",
		zap.String("user_id", profile.ID),
		zap.String("nickname", profile.DisplayName()),
		zap.String("conn_id", conn.ID()),
		zap.Int("online", online),
	)

	h.broadcastLocked(onlineCountEvent{Type: TypeOnlineCount, Count: online}, "")
	_ = h.sendLocked(conn, onlineUsersEvent{Type: TypeOnlineUsers, Users: h.registry.Roster()})
	_ = h.sendLocked(conn, existingBubblesEvent{Type: TypeExistingBubbles, Bubbles: h.bubbles.List()})
	return nil
}

func (h *Hub) handlePrivateMessage(conn presencesvc.Conn, raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: privateMessage.message", ErrMissingField)
	}
	var env privateEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: privateMessage: %v", ErrMalformed, err)
	}
	toID, ok := opaque.Text(env.ToID)
	if !ok || toID == "" {
		return fmt.Errorf("%w: privateMessage.message.toId", ErrMissingField)
	}

	h.logger.Debug("private message",
		zap.String("from", opaque.Display(env.FromName)),
		zap.String("to", opaque.Display(env.ToName)),
		zap.String("to_id", toID),
	)

	target, ok := h.registry.Lookup(toID)
	if ok && target.Conn.Open() {
		if err := h.sendLocked(target.Conn, privateMessageEvent{Type: TypePrivateMessage, Message: raw}); err == nil {
			h.metrics.PrivateMessage(context.Background(), "delivered")
			_ = h.sendLocked(conn, messageSentEvent{Type: TypeMessageSent, MessageID: env.ID})
			return nil
		}
	}

	h.metrics.PrivateMessage(context.Background(), "offline")
	_ = h.sendLocked(conn, messageErrorEvent{Type: TypeMessageError, Error: ReasonPeerOffline, MessageID: env.ID})
	return nil
}

func (h *Hub) handleNewBubble(raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: newBubble.bubble", ErrMissingField)
	}
	b, err := bubble.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: newBubble: %v", ErrMalformed, err)
	}
	h.publishBubbleLocked(b)
	return nil
}

func (h *Hub) handleUpdatePosition(conn presencesvc.Conn, st *connState, position json.RawMessage) error {
	if st.userID == "" || !h.registry.Owns(st.userID, conn) {
		return nil
	}
	if len(position) == 0 {
		return fmt.Errorf("%w: updatePosition.position", ErrMissingField)
	}

	h.registry.UpdatePosition(st.userID, position)
	h.broadcastLocked(userPositionUpdateEvent{
		Type:     TypeUserPositionUpdate,
		UserID:   st.userID,
		Position: position,
	}, st.userID)
	return nil
}
