package workers

import (
	"context"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"botforge-backend/internal/models"
	"botforge-backend/internal/storage"
	"botforge-backend/internal/tasks"
)

// AuditWriter drains auth events off the task stream into the auth_events
// table, keeping audit writes off the request path entirely.
type AuditWriter struct {
	js      nats.JetStreamContext
	storage *storage.Storage
	sub     *nats.Subscription
}

func NewAuditWriter(js nats.JetStreamContext, storage *storage.Storage) *AuditWriter {
	return &AuditWriter{js: js, storage: storage}
}

func (w *AuditWriter) Start(ctx context.Context) error {
	sub, err := w.js.PullSubscribe(
		tasks.SubjectAudit,
		"audit-writer",
		nats.ManualAck(),
		nats.AckWait(30*time.Second),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	w.sub = sub

	go w.consumeLoop(ctx)
	log.Println("INFO Audit writer started")
	return nil
}

func (w *AuditWriter) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := w.sub.Fetch(64, nats.MaxWait(5*time.Second))
		if err != nil {
			if err != nats.ErrTimeout {
				log.Printf("WARN Audit writer fetch: %v", err)
			}
			continue
		}

		for _, msg := range msgs {
			if err := w.processMessage(ctx, msg); err != nil {
				log.Printf("WARN Audit write failed: %v", err)
				msg.NakWithDelay(5 * time.Second)
				continue
			}
			msg.Ack()
		}
	}
}

func (w *AuditWriter) processMessage(ctx context.Context, msg *nats.Msg) error {
	var ev models.AuthEvent
	if err := msgpack.Unmarshal(msg.Data, &ev); err != nil {
		log.Printf("ERROR Auth event unmarshal (terminating): %v", err)
		msg.Term()
		return nil
	}
	return w.storage.InsertAuthEvent(ctx, ev)
}

func (w *AuditWriter) Stop() error {
	if w.sub != nil {
		return w.sub.Drain()
	}
	return nil
}
