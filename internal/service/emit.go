package service

import (
	"github.com/iliyamo/owleye/internal/broadcast"
	"github.com/iliyamo/owleye/internal/queue"
)

// Publisher is the emit half of commit-then-emit.  Implementations must
// not block on subscribers; *broadcast.Registry and *broadcast.RedisRelay
// both qualify.
type Publisher interface {
	Publish(topic broadcast.Topic, payload any) int
}

// AuditSink receives audit events after a mutation commits.
// *queue.Publisher implements it.
type AuditSink interface {
	Record(ev queue.AuditEvent)
}

type discardAudit struct{}

func (discardAudit) Record(queue.AuditEvent) {}

// DiscardAudit drops every audit event.
var DiscardAudit AuditSink = discardAudit{}
