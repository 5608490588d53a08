package workspace

import (
	"context"

	"github.com/BaSui01/renderflow/internal/cache"
	"go.uber.org/zap"
)

// KeyPrefix namespaces workspace keys in Redis.
const KeyPrefix = "renderflow:workspace:"

// RedisStore keeps the snapshot as one JSON string value without expiry.
type RedisStore struct {
	mgr    *cache.Manager
	key    string
	logger *zap.Logger
}

// NewRedisStore creates a store on top of an open manager.
func NewRedisStore(mgr *cache.Manager, key string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		mgr:    mgr,
		key:    KeyPrefix + key,
		logger: logger.With(zap.String("component", "workspace_redis_store")),
	}
}

// Key returns the full Redis key.
func (r *RedisStore) Key() string { return r.key }

func (r *RedisStore) Load(ctx context.Context) (*Settings, error) {
	raw, err := r.mgr.Get(ctx, r.key)
	if cache.IsCacheMiss(err) {
		return Defaults(), nil
	}
	if err != nil {
		return nil, persistenceError("load", err)
	}
	return decodeOrDefault(raw, r.logger), nil
}

func (r *RedisStore) Save(ctx context.Context, s *Settings) error {
	raw, err := encode(s)
	if err != nil {
		return err
	}
	if err := r.mgr.Set(ctx, r.key, raw, 0); err != nil {
		return persistenceError("save", err)
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error { return r.mgr.Ping(ctx) }
func (r *RedisStore) Close() error                   { return r.mgr.Close() }
