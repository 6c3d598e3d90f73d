// Package events mirrors relay broadcasts to NATS so other services can follow
// presence and bubble lifecycle without holding a WebSocket.
package events

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/zhouzirui/moment-map/backend/internal/config"
)

// Publisher receives every broadcast the hub fans out.
type Publisher interface {
	Publish(eventType string, payload []byte) error
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(string, []byte) error { return nil }

// NATSPublisher publishes each event to "<prefix>.<type>".
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials NATS using cfg.
func Connect(cfg config.EventsConfig, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("momentmap-relay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.NATSURL, err)
	}
	return &NATSPublisher{nc: nc, prefix: cfg.SubjectPrefix}, nil
}

// Subject returns the subject an event type is published on.
func Subject(prefix, eventType string) string {
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(eventType string, payload []byte) error {
	return p.nc.Publish(Subject(p.prefix, eventType), payload)
}

// Close flushes pending publishes and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
