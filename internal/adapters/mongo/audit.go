package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/voyago/booking-flow/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditTrail records flow lifecycle events. Writes are best effort: a failed
// insert is logged and never fails the booking attempt.
type AuditTrail struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditTrail(db *mongo.Database, logger observability.Logger) *AuditTrail {
	return &AuditTrail{
		coll:   db.Collection("flow_audit"),
		logger: logger,
	}
}

type auditEntry struct {
	ID         string    `bson:"_id"`
	Action     string    `bson:"action"`
	CustomerID string    `bson:"customer_id"`
	Timestamp  time.Time `bson:"timestamp"`
	Data       bson.M    `bson:"data"`
}

func (a *AuditTrail) Record(ctx context.Context, action, customerID string, data map[string]any) {
	entry := auditEntry{
		ID:         uuid.New().String(),
		Action:     action,
		CustomerID: customerID,
		Timestamp:  time.Now().UTC(),
		Data:       bson.M(data),
	}
	if _, err := a.coll.InsertOne(ctx, entry); err != nil {
		a.logger.WithError(err).WithField("action", action).Error("failed to insert audit entry")
	}
}

// History returns the recorded actions for one customer, newest first.
func (a *AuditTrail) History(ctx context.Context, customerID string, limit int64) ([]bson.M, error) {
	opts := options.Find().SetSort(bson.M{"timestamp": -1}).SetLimit(limit)
	cur, err := a.coll.Find(ctx, bson.M{"customer_id": customerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var entries []bson.M
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
