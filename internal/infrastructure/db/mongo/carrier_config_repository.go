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

const collectionCarrierConfigs = "carrier_configs"

// CarrierConfigRepository implements ports.CarrierConfigRepository using
// MongoDB. Configs are administered externally; this layer only reads them.
type CarrierConfigRepository struct {
	col *mongo.Collection
}

func NewCarrierConfigRepository(db *mongo.Database) *CarrierConfigRepository {
	return &CarrierConfigRepository{col: db.Collection(collectionCarrierConfigs)}
}

// FindActive returns all active, non-expired carrier configs in stored order.
func (r *CarrierConfigRepository) FindActive(ctx context.Context) ([]*domain.CarrierConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"active": true,
		"$or": bson.A{
			bson.M{"expires_at": bson.M{"$exists": false}},
			bson.M{"expires_at": nil},
			bson.M{"expires_at": bson.M{"$gt": time.Now().UTC()}},
		},
	}

	cursor, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var configs []*domain.CarrierConfig
	if err := cursor.All(ctx, &configs); err != nil {
		return nil, err
	}
	return configs, nil
}

// FindByCode returns the config for one carrier code, case-insensitive.
func (r *CarrierConfigRepository) FindByCode(ctx context.Context, carrierCode string) (*domain.CarrierConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var cfg domain.CarrierConfig
	err := r.col.FindOne(ctx, bson.M{"carrier_code": strings.ToUpper(strings.TrimSpace(carrierCode))}).Decode(&cfg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCarrierNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// EnsureIndexes creates the unique carrier_code index.
func (r *CarrierConfigRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "carrier_code", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
