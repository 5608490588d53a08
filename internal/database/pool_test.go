package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/BaSui01/renderflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openTestPool(t *testing.T) *PoolManager {
	t.Helper()
	pm, err := Open(config.DatabaseConfig{
		Driver: "sqlite",
		Name:   filepath.Join(t.TempDir(), "test.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })
	return pm
}

func TestDialector(t *testing.T) {
	tests := []struct {
		driver  string
		name    string
		wantErr bool
	}{
		{driver: "postgres", name: "postgres"},
		{driver: "mysql", name: "mysql"},
		{driver: "sqlite", name: "sqlite"},
		{driver: "", wantErr: true},
		{driver: "oracle", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := Dialector(config.DatabaseConfig{Driver: tt.driver, Name: "x"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, d.Name())
		})
	}
}

func TestOpen_SQLite(t *testing.T) {
	pm := openTestPool(t)

	assert.NoError(t, pm.Ping(context.Background()))
	assert.Equal(t, 1, pm.config.MaxOpenConns)
	assert.NotNil(t, pm.DB())
}

func TestNewPoolManager_NilDB(t *testing.T) {
	_, err := NewPoolManager(nil, DefaultPoolConfig(), nil)
	assert.Error(t, err)
}

func TestPoolManager_WithTransaction(t *testing.T) {
	pm := openTestPool(t)
	ctx := context.Background()

	type row struct {
		ID   uint
		Name string
	}
	require.NoError(t, pm.DB().AutoMigrate(&row{}))

	err := pm.WithTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(&row{Name: "kept"}).Error
	})
	require.NoError(t, err)

	err = pm.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&row{Name: "rolled back"}).Error; err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, pm.DB().Model(&row{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	pm := openTestPool(t)

	attempts := 0
	err := pm.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		if attempts < 2 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	attempts = 0
	err = pm.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		return errors.New("constraint failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestPoolManager_Closed(t *testing.T) {
	pm := openTestPool(t)
	require.NoError(t, pm.Close())
	require.NoError(t, pm.Close())

	assert.Error(t, pm.Ping(context.Background()))
	assert.Error(t, pm.WithTransaction(context.Background(), func(tx *gorm.DB) error { return nil }))
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.True(t, isRetryableError(errors.New("Deadlock found when trying to get lock")))
	assert.True(t, isRetryableError(errors.New("pq: could not serialize access (SQLSTATE 40001)")))
	assert.False(t, isRetryableError(errors.New("duplicate key")))
}
