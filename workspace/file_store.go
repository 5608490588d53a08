package workspace

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// FileStore keeps the snapshot in one JSON file, replaced atomically.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileStore creates a file backed store.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		path:   path,
		logger: logger.With(zap.String("component", "workspace_file_store")),
	}
}

// Path returns the snapshot file path.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Load(ctx context.Context) (*Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return nil, persistenceError("load", err)
	}
	return decodeOrDefault(raw, f.logger), nil
}

func (f *FileStore) Save(ctx context.Context, s *Settings) error {
	raw, err := encode(s)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return persistenceError("save", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return persistenceError("save", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return persistenceError("save", err)
	}
	if err := tmp.Close(); err != nil {
		return persistenceError("save", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return persistenceError("save", err)
	}
	return nil
}

// Ping checks that the snapshot directory exists or can be created.
func (f *FileStore) Ping(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return persistenceError("ping", err)
	}
	return nil
}

func (f *FileStore) Close() error { return nil }
