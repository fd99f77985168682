package service

import (
	"database/sql"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/owleye/internal/broadcast"
	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/queue"
	"github.com/iliyamo/owleye/internal/repository"
	"github.com/iliyamo/owleye/internal/testutil"
)

var (
	organizer = model.Identity{ID: 1, Role: model.RoleOrganizer, Name: "Olga"}
	staff     = model.Identity{ID: 2, Role: model.RoleStaff}
	volunteer = model.Identity{ID: 3, Role: model.RoleVolunteer}
	authority = model.Identity{ID: 4, Role: model.RoleAuthority}
	attendee  = model.Identity{ID: 100, Role: model.RoleAttendee}
	stranger  = model.Identity{ID: 50, Role: model.RoleOrganizer}
)

type published struct {
	Topic   broadcast.Topic
	Payload any
}

// capturePublisher records every publish and forwards it to a registry.
type capturePublisher struct {
	reg *broadcast.Registry

	mu     sync.Mutex
	events []published
}

func (c *capturePublisher) Publish(t broadcast.Topic, payload any) int {
	c.mu.Lock()
	c.events = append(c.events, published{t, payload})
	c.mu.Unlock()
	return c.reg.Publish(t, payload)
}

func (c *capturePublisher) on(t broadcast.Topic) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []any
	for _, e := range c.events {
		if e.Topic == t {
			out = append(out, e.Payload)
		}
	}
	return out
}

type captureAudit struct {
	mu     sync.Mutex
	events []queue.AuditEvent
}

func (c *captureAudit) Record(ev queue.AuditEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureAudit) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

type harness struct {
	db        *sql.DB
	reg       *broadcast.Registry
	pub       *capturePublisher
	audit     *captureAudit
	venues    *repository.VenueRepo
	tickets   *repository.TicketRepo
	location  *LocationService
	admission *AdmissionService
	venueSvc  *VenueService
	incidents *IncidentService
	sos       *SOSService
	alerts    *AlertService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	reg := broadcast.NewRegistry(nil)
	h := &harness{
		db:      db,
		reg:     reg,
		pub:     &capturePublisher{reg: reg},
		audit:   &captureAudit{},
		venues:  repository.NewVenueRepo(db),
		tickets: repository.NewTicketRepo(db),
	}
	incidents := repository.NewIncidentRepo(db)
	sosRepo := repository.NewSOSRepo(db)
	h.location = NewLocationService(repository.NewPositionRepo(db), h.venues, h.pub)
	h.admission = NewAdmissionService(db, h.venues, h.tickets, h.location, h.pub, h.audit)
	h.venueSvc = NewVenueService(h.venues, h.tickets, incidents, sosRepo, reg)
	h.incidents = NewIncidentService(incidents, h.venues, h.pub, h.audit)
	h.sos = NewSOSService(sosRepo, h.venues, h.pub, h.audit)
	h.alerts = NewAlertService(repository.NewAlertRepo(db), h.venues, h.pub, h.audit)
	return h
}

// listen opens an active session joined to t.
func (h *harness) listen(t *testing.T, topic broadcast.Topic) *broadcast.Session {
	t.Helper()
	s := h.reg.NewSession(model.Anonymous, topic.VenueID, 256)
	require.NoError(t, s.Activate())
	require.NoError(t, s.Join(topic))
	t.Cleanup(s.Close)
	return s
}

func frames[T any](t *testing.T, s *broadcast.Session) []T {
	t.Helper()
	var out []T
	for {
		raw, ok := s.Pop()
		if !ok {
			return out
		}
		var v T
		require.NoError(t, json.Unmarshal(raw, &v))
		out = append(out, v)
	}
}

func holder(i int) model.Identity {
	return model.Identity{ID: uint64(1000 + i), Role: model.RoleAttendee}
}
