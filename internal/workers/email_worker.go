package workers

import (
	"context"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"botforge-backend/internal/models"
	"botforge-backend/internal/services"
	"botforge-backend/internal/tasks"
)

// EmailWorker consumes queued email jobs and hands them to the mailer.
// Delivery is at-least-once; the mailer is idempotent per verification token.
type EmailWorker struct {
	js     nats.JetStreamContext
	mailer *services.Mailer
	sub    *nats.Subscription
}

func NewEmailWorker(js nats.JetStreamContext, mailer *services.Mailer) *EmailWorker {
	return &EmailWorker{js: js, mailer: mailer}
}

func (w *EmailWorker) Start(ctx context.Context) error {
	sub, err := w.js.PullSubscribe(
		tasks.SubjectEmail,
		"email-worker",
		nats.ManualAck(),
		nats.AckWait(30*time.Second),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	w.sub = sub

	go w.consumeLoop(ctx)
	log.Println("INFO Email worker started")
	return nil
}

func (w *EmailWorker) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := w.sub.Fetch(16, nats.MaxWait(5*time.Second))
		if err != nil {
			if err != nats.ErrTimeout {
				log.Printf("WARN Email worker fetch: %v", err)
			}
			continue
		}

		for _, msg := range msgs {
			if err := w.processMessage(msg); err != nil {
				log.Printf("WARN Email job failed: %v", err)
				msg.NakWithDelay(10 * time.Second)
				continue
			}
			msg.Ack()
		}
	}
}

func (w *EmailWorker) processMessage(msg *nats.Msg) error {
	var job models.EmailJob
	if err := msgpack.Unmarshal(msg.Data, &job); err != nil {
		log.Printf("ERROR Email job unmarshal (terminating): %v", err)
		msg.Term()
		return nil
	}
	return w.mailer.Send(job)
}

func (w *EmailWorker) Stop() error {
	if w.sub != nil {
		return w.sub.Drain()
	}
	return nil
}
