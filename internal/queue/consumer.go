package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AuditLogFile is the file the consumer appends to inside its directory.
const AuditLogFile = "audit.log"

// Consumer drains the audit queue into <Dir>/audit.log, one line per
// event.
type Consumer struct {
	URL   string
	Queue string
	Dir   string

	log zerolog.Logger
}

// NewConsumer returns a consumer for queue on the broker at url.
func NewConsumer(url, queue, dir string) *Consumer {
	return &Consumer{URL: url, Queue: queue, Dir: dir, log: log.With().Str("component", "audit-consumer").Logger()}
}

// Run consumes until ctx is cancelled, reconnecting with backoff.
// Messages that cannot be handled are rejected without requeue.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("dial broker failed")
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if err != nil {
			c.log.Warn().Err(err).Msg("consume loop ended, reconnecting")
			if !sleepCtx(ctx, 2*time.Second) {
				return ctx.Err()
			}
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn().Err(err).Msg("set qos failed")
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.Body); err != nil {
				c.log.Error().Err(err).Msg("handle audit message")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message body and appends it to the audit log.
func (c *Consumer) Handle(body []byte) error {
	var ev AuditEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("audit event without type")
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.Dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.Dir, AuditLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single human readable log line.
func FormatLine(ev AuditEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | venue_id=%d | actor_id=%d | subject_id=%d",
		ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.VenueID, ev.ActorID, ev.SubjectID)
	if ev.Status != "" {
		fmt.Fprintf(&b, " | status=%s", ev.Status)
	}
	if ev.Detail != "" {
		fmt.Fprintf(&b, " | detail=%q", ev.Detail)
	}
	b.WriteByte('\n')
	return b.String()
}
