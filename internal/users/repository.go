package users

import (
	"context"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/device-auth/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserRepository defines persistence operations for users
type UserRepository interface {
	// FindOrCreate atomically inserts u or refreshes the stored user with the
	// same ID. CreationTime is only ever set on insert.
	FindOrCreate(ctx context.Context, u *models.User, now time.Time) (*models.User, error)
	Get(ctx context.Context, id string) (*models.User, error)
	Ping(ctx context.Context) error
}

// MongoUserRepository implements UserRepository using MongoDB
type MongoUserRepository struct {
	col *mongo.Collection
}

// NewMongoUserRepository creates a new repository for the given collection
func NewMongoUserRepository(col *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{col: col}
}

func (r *MongoUserRepository) FindOrCreate(ctx context.Context, u *models.User, now time.Time) (*models.User, error) {
	filter := bson.M{"_id": u.ID}
	update := bson.M{
		"$setOnInsert": bson.M{"creationTime": now},
		"$set": bson.M{
			"displayName":    u.DisplayName,
			"avatarUrl":      u.AvatarURL,
			"provider":       u.Provider,
			"lastSignInTime": now,
			"lastUpdated":    now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var updated models.User
		err = r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
		if err == nil {
			return &updated, nil
		}
		// two concurrent upserts can both try to insert; the loser sees a
		// duplicate key and the retry matches the winner's document
		if !mongo.IsDuplicateKeyError(err) {
			return nil, err
		}
	}
	return nil, err
}

func (r *MongoUserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoUserRepository) Ping(ctx context.Context) error {
	return r.col.Database().Client().Ping(ctx, nil)
}

// MemoryUserRepository keeps users in process memory
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]models.User)}
}

func (r *MemoryUserRepository) FindOrCreate(_ context.Context, u *models.User, now time.Time) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[u.ID]
	if !ok {
		stored = models.User{ID: u.ID, CreationTime: now}
	}
	stored.DisplayName = u.DisplayName
	stored.AvatarURL = u.AvatarURL
	stored.Provider = u.Provider
	stored.LastSignInTime = now
	stored.LastUpdated = now
	r.users[u.ID] = stored
	out := stored
	return &out, nil
}

func (r *MemoryUserRepository) Get(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *MemoryUserRepository) Ping(context.Context) error { return nil }
