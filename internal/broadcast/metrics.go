package broadcast

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records fan-out activity.  A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	published metric.Int64Counter
	delivered metric.Int64Counter
	dropped   metric.Int64Counter
	sessions  metric.Int64UpDownCounter
}

// NewMetrics creates the broadcast instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	published, err := meter.Int64Counter("owleye.broadcast.published",
		metric.WithDescription("Events published to a topic"),
	)
	if err != nil {
		return nil, err
	}
	delivered, err := meter.Int64Counter("owleye.broadcast.delivered",
		metric.WithDescription("Events enqueued on a session"),
	)
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("owleye.broadcast.dropped",
		metric.WithDescription("Queued events discarded because a session queue was full"),
	)
	if err != nil {
		return nil, err
	}
	sessions, err := meter.Int64UpDownCounter("owleye.sessions.active",
		metric.WithDescription("Connection sessions in the active state"),
	)
	if err != nil {
		return nil, err
	}
	return &Metrics{published: published, delivered: delivered, dropped: dropped, sessions: sessions}, nil
}

func kindAttr(k Kind) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("kind", string(k)))
}

func (m *Metrics) recordPublish(k Kind, delivered int) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.published.Add(ctx, 1, kindAttr(k))
	if delivered > 0 {
		m.delivered.Add(ctx, int64(delivered), kindAttr(k))
	}
}

func (m *Metrics) recordDrop() {
	if m == nil {
		return
	}
	m.dropped.Add(context.Background(), 1)
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Add(context.Background(), 1)
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Add(context.Background(), -1)
}
