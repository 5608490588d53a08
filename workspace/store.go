package workspace

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/renderflow/config"
	"github.com/BaSui01/renderflow/internal/cache"
	"github.com/BaSui01/renderflow/internal/database"
	"github.com/BaSui01/renderflow/types"
	"go.uber.org/zap"
)

// Store persists one workspace snapshot. Load never fails on a missing or
// unreadable snapshot; it falls back to Defaults.
type Store interface {
	Load(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
	Ping(ctx context.Context) error
	Close() error
}

// Recorder receives store timings. *metrics.Collector implements it.
type Recorder interface {
	RecordWorkspaceOp(driver, operation string, duration time.Duration)
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.WorkspaceConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	key := cfg.Key
	if key == "" {
		key = "default"
	}

	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.Path, logger), nil
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		mgr, err := cache.NewManager(cache.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, logger)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(mgr, key, logger), nil
	case "sql":
		pool, err := database.Open(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		store, err := NewSQLStore(ctx, pool, key, logger)
		if err != nil {
			_ = pool.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported workspace driver %q", cfg.Driver)
	}
}

// decodeOrDefault turns stored bytes into a snapshot. A corrupt snapshot is
// logged and replaced by the defaults.
func decodeOrDefault(raw []byte, logger *zap.Logger) *Settings {
	s, err := Decode(raw)
	if err != nil {
		logger.Warn("stored workspace snapshot is unreadable, using defaults", zap.Error(err))
	}
	return s
}

func encode(s *Settings) ([]byte, error) {
	if s == nil {
		return nil, types.NewInvalidRequestError("workspace snapshot is required")
	}
	raw, err := s.Encode()
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to encode workspace snapshot").WithCause(err)
	}
	return raw, nil
}

func persistenceError(op string, err error) error {
	return types.NewError(types.ErrPersistenceError, fmt.Sprintf("workspace %s failed: %v", op, err)).WithCause(err)
}

// =============================================================================
// 📊 计时装饰器
// =============================================================================

type instrumented struct {
	Store
	driver   string
	recorder Recorder
}

// Instrument reports the duration of every Load and Save to recorder.
func Instrument(store Store, driver string, recorder Recorder) Store {
	if recorder == nil {
		return store
	}
	return &instrumented{Store: store, driver: driver, recorder: recorder}
}

func (s *instrumented) Load(ctx context.Context) (*Settings, error) {
	start := time.Now()
	defer func() { s.recorder.RecordWorkspaceOp(s.driver, "load", time.Since(start)) }()
	return s.Store.Load(ctx)
}

func (s *instrumented) Save(ctx context.Context, settings *Settings) error {
	start := time.Now()
	defer func() { s.recorder.RecordWorkspaceOp(s.driver, "save", time.Since(start)) }()
	return s.Store.Save(ctx, settings)
}
