package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/owleye/internal/model"
)

// CommandKind discriminates inbound client frames.
type CommandKind string

const (
	CmdSubscribe   CommandKind = "subscribe"
	CmdUnsubscribe CommandKind = "unsubscribe"
	CmdLocation    CommandKind = "location_update"
	CmdPing        CommandKind = "ping"
)

// CommandKinds lists every inbound command kind.
var CommandKinds = []CommandKind{CmdSubscribe, CmdUnsubscribe, CmdLocation, CmdPing}

// Command is the decoded form of an inbound frame.  A frame without a type
// that carries lat and lng is a location update.
type Command struct {
	Type   CommandKind `json:"type"`
	Topic  string      `json:"topic,omitempty"`
	Lat    *float64    `json:"lat,omitempty"`
	Lng    *float64    `json:"lng,omitempty"`
	Source string      `json:"source,omitempty"`
	Status string      `json:"status,omitempty"`
}

// LocationReport is a position sample submitted over a session.
type LocationReport struct {
	VenueID  uint64
	Identity model.Identity
	Lat      float64
	Lng      float64
	Source   model.PositionSource
	Status   string
}

// LocationReporter ingests position samples received from sessions.
type LocationReporter interface {
	ReportLocation(ctx context.Context, r LocationReport) error
}

type commandHandler func(ctx context.Context, s *Session, cmd Command) error

// Dispatcher routes inbound commands to one handler per kind.  Handler
// errors are sent back to the client as error frames; they never close
// the session.
type Dispatcher struct {
	reporter LocationReporter
	handlers map[CommandKind]commandHandler
}

// NewDispatcher returns a dispatcher that forwards location updates to
// reporter.  reporter may be nil, in which case location updates are
// rejected.
func NewDispatcher(reporter LocationReporter) *Dispatcher {
	d := &Dispatcher{reporter: reporter}
	d.handlers = map[CommandKind]commandHandler{
		CmdSubscribe:   d.subscribe,
		CmdUnsubscribe: d.unsubscribe,
		CmdLocation:    d.location,
		CmdPing:        d.ping,
	}
	return d
}

var errUnknownCommand = errors.New("unknown command")

// Decode parses a raw frame into a Command.
func Decode(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("invalid json: %w", err)
	}
	if cmd.Type == "" && cmd.Lat != nil && cmd.Lng != nil {
		cmd.Type = CmdLocation
	}
	return cmd, nil
}

// Handle decodes and executes one inbound frame.  It returns an error only
// when the session can no longer be written to.
func (d *Dispatcher) Handle(ctx context.Context, s *Session, raw []byte) error {
	cmd, err := Decode(raw)
	if err == nil {
		h, ok := d.handlers[cmd.Type]
		if !ok {
			err = fmt.Errorf("%w %q", errUnknownCommand, cmd.Type)
		} else {
			err = h(ctx, s, cmd)
		}
	}
	if err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return err
		}
		return s.Reply(Reply{Type: "error", Topic: cmd.Topic, Message: err.Error()})
	}
	return nil
}

// sessionTopic resolves a topic name and restricts it to the session's
// venue.
func sessionTopic(s *Session, name string) (Topic, error) {
	t, err := ParseTopic(name)
	if err != nil {
		return Topic{}, err
	}
	if t.VenueID != s.VenueID {
		return Topic{}, fmt.Errorf("topic %s is outside venue %d", name, s.VenueID)
	}
	return t, nil
}

func (d *Dispatcher) subscribe(_ context.Context, s *Session, cmd Command) error {
	t, err := sessionTopic(s, cmd.Topic)
	if err != nil {
		return err
	}
	if err := s.Join(t); err != nil {
		return err
	}
	return s.Reply(Reply{Type: "subscribed", Topic: t.String()})
}

func (d *Dispatcher) unsubscribe(_ context.Context, s *Session, cmd Command) error {
	t, err := sessionTopic(s, cmd.Topic)
	if err != nil {
		return err
	}
	s.Leave(t)
	return s.Reply(Reply{Type: "unsubscribed", Topic: t.String()})
}

func (d *Dispatcher) location(ctx context.Context, s *Session, cmd Command) error {
	if d.reporter == nil {
		return errors.New("location updates are not accepted on this connection")
	}
	if cmd.Lat == nil || cmd.Lng == nil {
		return errors.New("lat and lng are required")
	}
	src := model.PositionSource(cmd.Source)
	if src == "" {
		src = model.SourceLive
	}
	return d.reporter.ReportLocation(ctx, LocationReport{
		VenueID:  s.VenueID,
		Identity: s.Identity,
		Lat:      *cmd.Lat,
		Lng:      *cmd.Lng,
		Source:   src,
		Status:   cmd.Status,
	})
}

func (d *Dispatcher) ping(_ context.Context, s *Session, _ Command) error {
	return s.Reply(Reply{Type: "pong"})
}
