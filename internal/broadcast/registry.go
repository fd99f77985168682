package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Registry is the process-wide topic table.  Topics exist only while they
// have subscribers.
//
// Locks are taken in the order Registry.mu, topicState.mu, Session.mu.
// Publishers share Registry.mu and serialize per topic on topicState.mu,
// so every subscriber of a topic observes publishes in the same order.
type Registry struct {
	mu      sync.RWMutex
	topics  map[Topic]*topicState
	metrics *Metrics
	log     zerolog.Logger
}

type topicState struct {
	mu   sync.Mutex
	subs map[*Session]struct{}
}

// NewRegistry returns an empty registry.  m may be nil.
func NewRegistry(m *Metrics) *Registry {
	return &Registry{
		topics:  make(map[Topic]*topicState),
		metrics: m,
		log:     log.With().Str("component", "broadcast").Logger(),
	}
}

// Subscribe adds s to t.  It is idempotent.  ErrSessionClosed is returned
// when s is not active.
func (r *Registry) Subscribe(t Topic, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.topics[t]
	if ts == nil {
		ts = &topicState{subs: make(map[*Session]struct{})}
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if err := s.addTopic(t); err != nil {
		return err
	}
	ts.subs[s] = struct{}{}
	r.topics[t] = ts
	return nil
}

// Unsubscribe removes s from t if present.  Empty topics are discarded.
func (r *Registry) Unsubscribe(t Topic, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.removeTopic(t)
	r.detach(t, s)
}

// detach removes s from the topic table.  r.mu must be held for writing.
func (r *Registry) detach(t Topic, s *Session) {
	ts := r.topics[t]
	if ts == nil {
		return
	}
	ts.mu.Lock()
	delete(ts.subs, s)
	empty := len(ts.subs) == 0
	ts.mu.Unlock()
	if empty {
		delete(r.topics, t)
	}
}

// release drops every membership of a closing session.
func (r *Registry) release(s *Session, topics []Topic) {
	if len(topics) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range topics {
		r.detach(t, s)
	}
}

// Publish encodes payload once and enqueues it on every session
// subscribed to t.  It never blocks on a slow subscriber and returns the
// number of sessions the event was enqueued on.  Publishing to a topic
// with no subscribers is a no-op.
func (r *Registry) Publish(t Topic, payload any) int {
	msg, err := json.Marshal(payload)
	if err != nil {
		r.log.Error().Err(err).Str("topic", t.String()).Msg("encode event")
		return 0
	}
	return r.PublishRaw(t, msg)
}

// PublishRaw fans out an already encoded event.  msg must not be modified
// afterwards; it is shared by every queue it lands in.
func (r *Registry) PublishRaw(t Topic, msg []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	if ts := r.topics[t]; ts != nil {
		ts.mu.Lock()
		for s := range ts.subs {
			if s.deliver(msg) {
				n++
			}
		}
		ts.mu.Unlock()
	}
	r.metrics.recordPublish(t.Kind, n)
	return n
}

// SubscriberCount returns the number of sessions subscribed to t.
func (r *Registry) SubscriberCount(t Topic) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ts := r.topics[t]
	if ts == nil {
		return 0
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.subs)
}

// VenueSubscribers sums the subscribers over every topic of a venue.  A
// session joined to several of them is counted once per topic.
func (r *Registry) VenueSubscribers(venueID uint64) int {
	total := 0
	for _, k := range Kinds {
		total += r.SubscriberCount(Topic{Kind: k, VenueID: venueID})
	}
	return total
}

// TopicCount returns the number of topics that currently have subscribers.
func (r *Registry) TopicCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}
