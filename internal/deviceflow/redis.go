package deviceflow

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gogotex/gogotex/backend/device-auth/internal/models"
	"github.com/gogotex/gogotex/backend/device-auth/pkg/logger"
)

// RedisStore implements Store using Redis as the backing store.
// Pending flows live as JSON in a single hash "<prefix>pending" keyed by
// device code; completions are stored as "<prefix>completion:<deviceCode>"
// with TTL = expiresAt - now.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a Redis-based store. Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "deviceflow:"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisStore) pendingKey() string { return r.prefix + "pending" }

func (r *RedisStore) completionKey(deviceCode string) string {
	return r.prefix + "completion:" + deviceCode
}

func (r *RedisStore) Create(ctx context.Context, f *models.PendingDeviceFlow) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ok, err := r.client.HSetNX(ctx, r.pendingKey(), f.DeviceCode, b).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrFlowExists
	}
	return nil
}

func (r *RedisStore) ListAll(ctx context.Context) ([]models.PendingDeviceFlow, error) {
	raw, err := r.client.HGetAll(ctx, r.pendingKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.PendingDeviceFlow, 0, len(raw))
	for code, v := range raw {
		var f models.PendingDeviceFlow
		if err := json.Unmarshal([]byte(v), &f); err != nil {
			// keep the sweep going; a bad entry must not hide the others
			logger.Warnf("deviceflow: skipping undecodable pending flow %q: %v", code, err)
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *RedisStore) Delete(ctx context.Context, deviceCode string) error {
	return r.client.HDel(ctx, r.pendingKey(), deviceCode).Err()
}

func (r *RedisStore) Exists(ctx context.Context, deviceCode string) (bool, error) {
	return r.client.HExists(ctx, r.pendingKey(), deviceCode).Result()
}

func (r *RedisStore) SaveCompletion(ctx context.Context, c *models.DeviceFlowCompletion) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	exp := c.ExpiresAt.Sub(r.now())
	if exp <= 0 {
		// ensure a minimal TTL so Redis won't store expired completions forever
		exp = time.Second
	}
	return r.client.Set(ctx, r.completionKey(c.DeviceCode), b, exp).Err()
}

func (r *RedisStore) ConsumeCompletion(ctx context.Context, deviceCode string) (*models.DeviceFlowCompletion, error) {
	b, err := r.client.GetDel(ctx, r.completionKey(deviceCode)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var c models.DeviceFlowCompletion
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if !c.ExpiresAt.IsZero() && r.now().After(c.ExpiresAt) {
		return nil, nil
	}
	return &c, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
