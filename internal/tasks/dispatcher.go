package tasks

import (
	"log"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"botforge-backend/internal/models"
)

// Dispatcher publishes background work onto the task stream. Publishes are
// fire-and-forget from the request path's point of view: failures are logged,
// never surfaced to the caller. A nil Dispatcher drops everything, which
// keeps the bus optional in development.
type Dispatcher struct {
	js nats.JetStreamContext
}

func NewDispatcher(js nats.JetStreamContext) *Dispatcher {
	return &Dispatcher{js: js}
}

func (d *Dispatcher) EmailVerification(job models.EmailJob) {
	d.publish(SubjectEmail, &job)
}

func (d *Dispatcher) AuditEvent(ev models.AuthEvent) {
	d.publish(SubjectAudit, &ev)
}

func (d *Dispatcher) publish(subject string, payload interface{}) {
	if d == nil || d.js == nil {
		return
	}

	data, err := msgpack.Marshal(payload)
	if err != nil {
		log.Printf("ERROR Task marshal for %s: %v", subject, err)
		return
	}

	if _, err := d.js.PublishAsync(subject, data); err != nil {
		log.Printf("WARN Task publish to %s: %v", subject, err)
	}
}
