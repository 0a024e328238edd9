package deviceflow

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gogotex/gogotex/backend/device-auth/internal/models"
)

// MongoStore implements Store with two collections: pending flows, unique
// on deviceCode, and completions, expired by a TTL index on expiresAt.
type MongoStore struct {
	pending     *mongo.Collection
	completions *mongo.Collection
}

// NewMongoStore ensures the indexes and returns the store.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{
		pending:     db.Collection("device_flows"),
		completions: db.Collection("device_flow_completions"),
	}
	if _, err := s.pending.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "deviceCode", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	if _, err := s.completions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "deviceCode", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) Create(ctx context.Context, f *models.PendingDeviceFlow) error {
	if _, err := s.pending.InsertOne(ctx, f); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrFlowExists
		}
		return err
	}
	return nil
}

func (s *MongoStore) ListAll(ctx context.Context) ([]models.PendingDeviceFlow, error) {
	cur, err := s.pending.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []models.PendingDeviceFlow{}
	for cur.Next(ctx) {
		var f models.PendingDeviceFlow
		if err := cur.Decode(&f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, cur.Err()
}

func (s *MongoStore) Delete(ctx context.Context, deviceCode string) error {
	_, err := s.pending.DeleteOne(ctx, bson.M{"deviceCode": deviceCode})
	return err
}

func (s *MongoStore) Exists(ctx context.Context, deviceCode string) (bool, error) {
	n, err := s.pending.CountDocuments(ctx, bson.M{"deviceCode": deviceCode}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *MongoStore) SaveCompletion(ctx context.Context, c *models.DeviceFlowCompletion) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.completions.ReplaceOne(ctx, bson.M{"deviceCode": c.DeviceCode}, c, opts)
	return err
}

func (s *MongoStore) ConsumeCompletion(ctx context.Context, deviceCode string) (*models.DeviceFlowCompletion, error) {
	// the TTL monitor runs about once a minute, so filter on expiry too
	filter := bson.M{"deviceCode": deviceCode, "expiresAt": bson.M{"$gt": time.Now().UTC()}}
	var c models.DeviceFlowCompletion
	if err := s.completions.FindOneAndDelete(ctx, filter).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.pending.Database().Client().Ping(ctx, nil)
}
