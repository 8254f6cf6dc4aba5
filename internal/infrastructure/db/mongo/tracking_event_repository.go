package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
)

const collectionTrackingEvents = "tracking_events"

// TrackingEventRepository implements ports.TrackingEventRepository on a
// MongoDB collection. Rows are append-only; the only in-place mutation ever
// performed is clearing the previous is_latest flag.
type TrackingEventRepository struct {
	col *mongo.Collection
}

func NewTrackingEventRepository(db *mongo.Database) *TrackingEventRepository {
	return &TrackingEventRepository{col: db.Collection(collectionTrackingEvents)}
}

// Append inserts new event rows. When any incoming row carries IsLatest, the
// stored latest flag for its (tracking_number, carrier_code) pair is cleared
// first so at most one row per pair stays flagged.
func (r *TrackingEventRepository) Append(ctx context.Context, events []*domain.PersistedTrackingEvent) error {
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	for _, e := range events {
		if !e.IsLatest {
			continue
		}
		filter := bson.M{
			"tracking_number": e.TrackingNumber,
			"carrier_code":    e.CarrierCode,
			"is_latest":       true,
		}
		if _, err := r.col.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"is_latest": false}}); err != nil {
			return err
		}
	}

	docs := make([]any, 0, len(events))
	now := time.Now().UTC()
	for _, e := range events {
		if e.RecordedAt.IsZero() {
			e.RecordedAt = now
		}
		docs = append(docs, toEventDoc(e))
	}

	_, err := r.col.InsertMany(ctx, docs)
	return err
}

// FindLatest returns the row currently flagged latest for the pair.
func (r *TrackingEventRepository) FindLatest(ctx context.Context, trackingNumber, carrierCode string) (*domain.PersistedTrackingEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"tracking_number": trackingNumber, "is_latest": true}
	if carrierCode != "" {
		filter["carrier_code"] = strings.ToUpper(carrierCode)
	}

	var e domain.PersistedTrackingEvent
	err := r.col.FindOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "event_timestamp", Value: -1}})).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTrackingNotFound
		}
		return nil, err
	}
	return &e, nil
}

// FindHistory returns every row for the tracking number, newest first.
func (r *TrackingEventRepository) FindHistory(ctx context.Context, trackingNumber, carrierCode string) ([]*domain.PersistedTrackingEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"tracking_number": trackingNumber}
	if carrierCode != "" {
		filter["carrier_code"] = strings.ToUpper(carrierCode)
	}

	cursor, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "event_timestamp", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []*domain.PersistedTrackingEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, domain.ErrTrackingNotFound
	}
	return events, nil
}

// EnsureIndexes creates the indexes the read paths depend on.
func (r *TrackingEventRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "tracking_number", Value: 1},
			{Key: "carrier_code", Value: 1},
			{Key: "event_timestamp", Value: -1},
		}},
		{
			Keys: bson.D{
				{Key: "tracking_number", Value: 1},
				{Key: "carrier_code", Value: 1},
			},
			Options: options.Index().SetPartialFilterExpression(bson.M{"is_latest": true}),
		},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func toEventDoc(e *domain.PersistedTrackingEvent) bson.M {
	doc := bson.M{
		"tracking_number": e.TrackingNumber,
		"carrier_code":    e.CarrierCode,
		"status":          string(e.Status),
		"description":     e.Description,
		"event_timestamp": e.EventTimestamp.UTC(),
		"is_latest":       e.IsLatest,
		"recorded_at":     e.RecordedAt.UTC(),
	}
	if e.ExternalEventID != "" {
		doc["external_event_id"] = e.ExternalEventID
	}
	if e.Location != nil {
		doc["location"] = e.Location
	}
	return doc
}
