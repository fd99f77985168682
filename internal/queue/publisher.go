package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Publisher queues audit events in memory and publishes them to a durable
// RabbitMQ queue from a single background worker.  Record never blocks:
// when the buffer is full the event is dropped and logged.
type Publisher struct {
	url   string
	queue string
	buf   chan AuditEvent
	log   zerolog.Logger
}

// NewPublisher returns a Publisher for the given broker URL and queue.
// Call Run to start delivering.
func NewPublisher(url, queue string, buffer int) *Publisher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Publisher{
		url:   url,
		queue: queue,
		buf:   make(chan AuditEvent, buffer),
		log:   log.With().Str("component", "audit-publisher").Logger(),
	}
}

// Record queues ev for publishing.
func (p *Publisher) Record(ev AuditEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case p.buf <- ev:
	default:
		p.log.Warn().Str("type", ev.Type).Uint64("subject_id", ev.SubjectID).Msg("audit buffer full, event dropped")
	}
}

// Run publishes queued events until ctx is cancelled, reconnecting with
// exponential backoff when the broker goes away.
func (p *Publisher) Run(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			p.log.Warn().Err(err).Dur("retry_in", backoff).Msg("dial broker failed")
			if !sleepCtx(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := p.publishLoop(ctx, conn); err != nil {
			p.log.Warn().Err(err).Msg("publish loop ended, reconnecting")
		}
		_ = conn.Close()
	}
}

func (p *Publisher) publishLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return err
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-closed:
			return err
		case ev := <-p.buf:
			body, err := json.Marshal(ev)
			if err != nil {
				p.log.Error().Err(err).Msg("marshal audit event")
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = ch.PublishWithContext(pctx, "", p.queue, false, false, amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Timestamp:    ev.OccurredAt,
				Type:         ev.Type,
				Body:         body,
			})
			cancel()
			if err != nil {
				// the event is lost; the channel is likely unusable
				p.log.Warn().Err(err).Str("type", ev.Type).Msg("publish audit event failed")
				return err
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
