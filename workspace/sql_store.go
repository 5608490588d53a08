package workspace

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/renderflow/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// snapshotRecord is one stored snapshot row.
type snapshotRecord struct {
	SnapshotKey string `gorm:"primaryKey;size:128"`
	Data        string `gorm:"type:text;not null"`
	UpdatedAt   time.Time
}

func (snapshotRecord) TableName() string { return "workspace_snapshots" }

const saveRetries = 3

// SQLStore keeps snapshots in a relational table keyed by snapshot key.
type SQLStore struct {
	pool   *database.PoolManager
	key    string
	logger *zap.Logger
}

// NewSQLStore migrates the snapshot table and returns the store.
func NewSQLStore(ctx context.Context, pool *database.PoolManager, key string, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().WithContext(ctx).AutoMigrate(&snapshotRecord{}); err != nil {
		return nil, persistenceError("migrate", err)
	}
	return &SQLStore{
		pool:   pool,
		key:    key,
		logger: logger.With(zap.String("component", "workspace_sql_store")),
	}, nil
}

func (s *SQLStore) Load(ctx context.Context) (*Settings, error) {
	var rec snapshotRecord
	err := s.pool.DB().WithContext(ctx).Where("snapshot_key = ?", s.key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return nil, persistenceError("load", err)
	}
	return decodeOrDefault([]byte(rec.Data), s.logger), nil
}

func (s *SQLStore) Save(ctx context.Context, settings *Settings) error {
	raw, err := encode(settings)
	if err != nil {
		return err
	}
	rec := snapshotRecord{SnapshotKey: s.key, Data: string(raw), UpdatedAt: time.Now().UTC()}

	err = s.pool.WithTransactionRetry(ctx, saveRetries, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "snapshot_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).Create(&rec).Error
	})
	if err != nil {
		return persistenceError("save", err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
func (s *SQLStore) Close() error                   { return s.pool.Close() }
