package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/iliyamo/owleye/internal/model"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var (
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("broadcast: session closed")
	// ErrSessionNotActive is returned when joining before Activate.
	ErrSessionNotActive = errors.New("broadcast: session not active")
)

// DefaultQueueSize is used when NewSession is given a non-positive size.
const DefaultQueueSize = 64

// Session is one live client connection.  It owns its topic memberships
// and a bounded FIFO of encoded events.  When the queue is full the
// oldest event is discarded so publishers never wait on a slow client.
type Session struct {
	ID       string
	Identity model.Identity
	VenueID  uint64

	registry *Registry

	mu     sync.Mutex
	state  State
	topics map[Topic]struct{}
	buf    [][]byte
	head   int
	n      int

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewSession creates a session in the connecting state.
func (r *Registry) NewSession(id model.Identity, venueID uint64, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Session{
		ID:       uuid.NewString(),
		Identity: id,
		VenueID:  venueID,
		registry: r,
		state:    StateConnecting,
		topics:   make(map[Topic]struct{}),
		buf:      make([][]byte, queueSize),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Activate moves a connecting session to active.
func (s *Session) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateActive:
		return nil
	case StateClosed:
		return ErrSessionClosed
	}
	s.state = StateActive
	s.registry.metrics.sessionOpened()
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Join subscribes the session to t.
func (s *Session) Join(t Topic) error { return s.registry.Subscribe(t, s) }

// Leave unsubscribes the session from t.
func (s *Session) Leave(t Topic) { s.registry.Unsubscribe(t, s) }

// Topics returns a snapshot of the session's memberships.
func (s *Session) Topics() []Topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Topic, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

func (s *Session) addTopic(t Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return ErrSessionClosed
	case StateConnecting:
		return ErrSessionNotActive
	}
	s.topics[t] = struct{}{}
	return nil
}

func (s *Session) removeTopic(t Topic) {
	s.mu.Lock()
	delete(s.topics, t)
	s.mu.Unlock()
}

// deliver enqueues msg, discarding the oldest queued event when full.  It
// reports false when the session is not active.
func (s *Session) deliver(msg []byte) bool {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return false
	}
	size := len(s.buf)
	if s.n == size {
		s.buf[s.head] = nil
		s.head = (s.head + 1) % size
		s.n--
		s.dropped.Add(1)
		s.registry.metrics.recordDrop()
	}
	s.buf[(s.head+s.n)%size] = msg
	s.n++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

// Reply sends v to this session only.
func (s *Session) Reply(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !s.deliver(msg) {
		return ErrSessionClosed
	}
	return nil
}

// Pop removes the oldest queued event.
func (s *Session) Pop() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n == 0 {
		return nil, false
	}
	msg := s.buf[s.head]
	s.buf[s.head] = nil
	s.head = (s.head + 1) % len(s.buf)
	s.n--
	return msg, true
}

// Len returns the number of queued events.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Next blocks until an event is queued, the session closes or ctx ends.
func (s *Session) Next(ctx context.Context) ([]byte, error) {
	for {
		if msg, ok := s.Pop(); ok {
			return msg, nil
		}
		select {
		case <-s.notify:
		case <-s.done:
			return nil, ErrSessionClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Ready is signalled after events are enqueued.  A single signal may
// cover several events; drain with Pop.
func (s *Session) Ready() <-chan struct{} { return s.notify }

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.done }

// Dropped returns how many queued events were discarded on overflow.
func (s *Session) Dropped() uint64 { return s.dropped.Load() }

// Close releases every topic membership and discards the queue.  It is
// safe to call more than once and concurrently with Publish.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		wasActive := s.state == StateActive
		s.state = StateClosed
		topics := make([]Topic, 0, len(s.topics))
		for t := range s.topics {
			topics = append(topics, t)
		}
		s.topics = nil
		for i := range s.buf {
			s.buf[i] = nil
		}
		s.head, s.n = 0, 0
		close(s.done)
		s.mu.Unlock()

		s.registry.release(s, topics)
		if wasActive {
			s.registry.metrics.sessionClosed()
		}
	})
}
