package mongo

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	tokenward "github.com/tokenward/tokenward"
)

type eventDoc struct {
	Timestamp time.Time         `bson:"timestamp"`
	Kind      string            `bson:"kind"`
	SubjectID string            `bson:"subject_id,omitempty"`
	TenantID  string            `bson:"tenant_id,omitempty"`
	FamilyID  string            `bson:"family_id,omitempty"`
	IP        string            `bson:"ip,omitempty"`
	Count     int64             `bson:"count,omitempty"`
	Success   bool              `bson:"success"`
	Error     string            `bson:"error,omitempty"`
	Metadata  map[string]string `bson:"metadata,omitempty"`
}

// Sink writes audit events to a MongoDB collection, one document per event.
// Writes are best-effort: a failed insert is logged and dropped, it never
// propagates back into the engine.
type Sink struct {
	collection *mongo.Collection
	timeout    time.Duration
}

// NewSink creates a Mongo audit sink. retention > 0 installs a TTL index on
// the timestamp field so old events age out server-side.
func NewSink(ctx context.Context, collection *mongo.Collection, timeout, retention time.Duration) (*Sink, error) {
	const op = "audit.mongo.NewSink"

	if collection == nil {
		return nil, fmt.Errorf("%s: nil collection", op)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "kind", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: kind index: %w", op, err)
	}

	if retention > 0 {
		_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention / time.Second)),
		})
		if err != nil {
			return nil, fmt.Errorf("%s: ttl index: %w", op, err)
		}
	}

	return &Sink{collection: collection, timeout: timeout}, nil
}

// Emit describes the emit operation and its observable behavior.
//
// Emit may return an error when input validation, dependency calls, or security checks fail.
// Emit does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Sink) Emit(ctx context.Context, event tokenward.AuditEvent) {
	if s == nil || s.collection == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.collection.InsertOne(ctx, eventDoc{
		Timestamp: event.Timestamp,
		Kind:      event.Kind,
		SubjectID: event.SubjectID,
		TenantID:  event.TenantID,
		FamilyID:  event.FamilyID,
		IP:        event.IP,
		Count:     event.Count,
		Success:   event.Success,
		Error:     event.Error,
		Metadata:  event.Metadata,
	})
	if err != nil {
		log.Print("tokenward: mongo audit insert failed")
	}
}
