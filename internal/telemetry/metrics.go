package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/zhouzirui/moment-map/backend/relay"

// Expiry mechanisms reported on relay_bubble_expirations_total.
const (
	MechanismTimer = "timer"
	MechanismSweep = "sweep"
)

// Metrics groups the relay instruments. A nil *Metrics records nothing.
type Metrics struct {
	broadcasts       metric.Int64Counter
	deliveries       metric.Int64Counter
	deliveryFailures metric.Int64Counter
	privateMessages  metric.Int64Counter
	expirations      metric.Int64Counter
	evictions        metric.Int64Counter
	malformed        metric.Int64Counter
	meter            metric.Meter
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider())
}

// NewMetricsWithProvider creates the instruments on mp.
func NewMetricsWithProvider(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{meter: meter}
	var err error

	if m.broadcasts, err = meter.Int64Counter("relay_broadcasts_total",
		metric.WithDescription("Broadcasts fanned out, by event type")); err != nil {
		return nil, err
	}
	if m.deliveries, err = meter.Int64Counter("relay_deliveries_total",
		metric.WithDescription("Messages handed to a connection")); err != nil {
		return nil, err
	}
	if m.deliveryFailures, err = meter.Int64Counter("relay_delivery_failures_total",
		metric.WithDescription("Messages a connection refused")); err != nil {
		return nil, err
	}
	if m.privateMessages, err = meter.Int64Counter("relay_private_messages_total",
		metric.WithDescription("Private messages by outcome")); err != nil {
		return nil, err
	}
	if m.expirations, err = meter.Int64Counter("relay_bubble_expirations_total",
		metric.WithDescription("Bubbles expired, by mechanism")); err != nil {
		return nil, err
	}
	if m.evictions, err = meter.Int64Counter("relay_sessions_evicted_total",
		metric.WithDescription("Sessions removed by the inactivity sweep")); err != nil {
		return nil, err
	}
	if m.malformed, err = meter.Int64Counter("relay_malformed_messages_total",
		metric.WithDescription("Inbound messages dropped as malformed")); err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveState registers gauges reading the presence count and bubble count.
func (m *Metrics) ObserveState(online, bubbles func() int) error {
	if m == nil {
		return nil
	}
	onlineGauge, err := m.meter.Int64ObservableGauge("relay_sessions_online",
		metric.WithDescription("Currently admitted sessions"))
	if err != nil {
		return err
	}
	bubbleGauge, err := m.meter.Int64ObservableGauge("relay_bubbles_active",
		metric.WithDescription("Currently stored bubbles"))
	if err != nil {
		return err
	}
	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(onlineGauge, int64(online()))
		o.ObserveInt64(bubbleGauge, int64(bubbles()))
		return nil
	}, onlineGauge, bubbleGauge)
	return err
}

// Broadcast records one fan-out of eventType.
func (m *Metrics) Broadcast(ctx context.Context, eventType string, delivered, failed int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("type", eventType))
	m.broadcasts.Add(ctx, 1, attrs)
	m.deliveries.Add(ctx, int64(delivered), attrs)
	if failed > 0 {
		m.deliveryFailures.Add(ctx, int64(failed), attrs)
	}
}

// DeliveryFailed records a failed unicast.
func (m *Metrics) DeliveryFailed(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.deliveryFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

// PrivateMessage records a private message outcome ("delivered" or "offline").
func (m *Metrics) PrivateMessage(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.privateMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// BubbleExpired records an expiry by mechanism.
func (m *Metrics) BubbleExpired(ctx context.Context, mechanism string) {
	if m == nil {
		return
	}
	m.expirations.Add(ctx, 1, metric.WithAttributes(attribute.String("mechanism", mechanism)))
}

// SessionEvicted records an inactivity eviction.
func (m *Metrics) SessionEvicted(ctx context.Context) {
	if m == nil {
		return
	}
	m.evictions.Add(ctx, 1)
}

// Malformed records a dropped inbound message.
func (m *Metrics) Malformed(ctx context.Context) {
	if m == nil {
		return
	}
	m.malformed.Add(ctx, 1)
}
