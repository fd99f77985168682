package broadcast

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// envelope is the frame mirrored through redis.
type envelope struct {
	Origin  string          `json:"origin"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// RedisRelay publishes into the local registry and mirrors every event to
// redis pub/sub so registries in other processes can fan it out to their
// own sessions.  Delivery across processes is best effort: when the
// outbound buffer is full the mirror copy is dropped.
type RedisRelay struct {
	reg    *Registry
	rdb    *redis.Client
	prefix string
	origin string
	out    chan envelope
	log    zerolog.Logger
}

// NewRedisRelay wraps reg.  prefix is prepended to topic names to form
// channel names.
func NewRedisRelay(reg *Registry, rdb *redis.Client, prefix string, buffer int) *RedisRelay {
	if buffer <= 0 {
		buffer = 1024
	}
	return &RedisRelay{
		reg:    reg,
		rdb:    rdb,
		prefix: prefix,
		origin: uuid.NewString(),
		out:    make(chan envelope, buffer),
		log:    log.With().Str("component", "relay").Logger(),
	}
}

// Publish fans payload out locally and queues it for the peers.
func (r *RedisRelay) Publish(t Topic, payload any) int {
	msg, err := json.Marshal(payload)
	if err != nil {
		r.log.Error().Err(err).Str("topic", t.String()).Msg("encode event")
		return 0
	}
	n := r.reg.PublishRaw(t, msg)
	select {
	case r.out <- envelope{Origin: r.origin, Topic: t.String(), Payload: msg}:
	default:
		r.log.Warn().Str("topic", t.String()).Msg("relay buffer full, event not mirrored")
	}
	return n
}

// Run mirrors queued events to redis and applies events from peers until
// ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.rdb.PSubscribe(ctx, r.prefix+"*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.log.Info().Str("pattern", r.prefix+"*").Str("origin", r.origin).Msg("relay subscribed")

	go r.forward(ctx)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.apply(strings.TrimPrefix(m.Channel, r.prefix), []byte(m.Payload))
		}
	}
}

func (r *RedisRelay) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-r.out:
			body, err := json.Marshal(env)
			if err != nil {
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = r.rdb.Publish(pctx, r.prefix+env.Topic, body).Err()
			cancel()
			if err != nil {
				r.log.Warn().Err(err).Str("topic", env.Topic).Msg("relay publish failed")
			}
		}
	}
}

// apply re-publishes a peer's event locally.  Events that originated here
// were already delivered by Publish and are skipped.
func (r *RedisRelay) apply(channel string, body []byte) int {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		r.log.Warn().Err(err).Str("channel", channel).Msg("relay: bad envelope")
		return 0
	}
	if env.Origin == r.origin {
		return 0
	}
	t, err := ParseTopic(env.Topic)
	if err != nil {
		r.log.Warn().Err(err).Msg("relay: bad topic")
		return 0
	}
	return r.reg.PublishRaw(t, env.Payload)
}
