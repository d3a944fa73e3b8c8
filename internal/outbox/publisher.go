package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/voyago/booking-flow/internal/adapters/crdb"
	"github.com/voyago/booking-flow/internal/adapters/rabbit"
	"github.com/voyago/booking-flow/internal/observability"
)

// Publisher drains NEW outbox records into the broker. Records that fail to
// publish stay NEW and are retried on the next tick.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	records, err := p.repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		p.logger.WithError(err).Error("failed to read outbox")
		return
	}
	for _, rec := range records {
		observability.OutboxLag.Set(time.Since(rec.CreatedAt).Seconds())
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			p.logger.WithError(err).WithFields(map[string]interface{}{
				"outbox_id":  rec.ID.String(),
				"event_type": rec.EventType,
			}).Error("failed to publish outbox record")
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now().UTC()); err != nil {
			p.logger.WithError(err).WithField("outbox_id", rec.ID.String()).Error("failed to mark outbox record published")
		}
	}
	if len(records) == 0 {
		observability.OutboxLag.Set(0)
	}
}
