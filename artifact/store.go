package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BaSui01/renderflow/types"
	"go.uber.org/zap"
)

// Artifact describes one persisted result image.
type Artifact struct {
	Label     string    `json:"label"`
	Index     int       `json:"labelIndex"`
	Timestamp time.Time `json:"timestamp"`
	ModelID   string    `json:"model"`
	Seed      *int64    `json:"seed,omitempty"`
	Ext       string    `json:"ext"`
	FileName  string    `json:"fileName"`
	Path      string    `json:"savedPath"`
	Size      int       `json:"size"`
}

// SaveInput is what the pipeline hands over after a successful download.
type SaveInput struct {
	Label       string
	ModelID     string
	Seed        *int64
	ContentType string
	SourceURL   string
	Data        []byte
}

// Mirror receives a copy of every persisted artifact.
type Mirror interface {
	Mirror(ctx context.Context, name, contentType string, data []byte, metadata map[string]string) error
}

// Store writes artifacts into a single output directory.
type Store struct {
	dir    string
	mirror Mirror
	logger *zap.Logger
	now    func() time.Time

	// mu 只串行化本进程内的写入，多进程并发写同一目录仍可能撞号.
	mu sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMirror attaches a mirror target.
func WithMirror(m Mirror) StoreOption {
	return func(s *Store) { s.mirror = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates an artifact store rooted at dir.
func NewStore(dir string, logger *zap.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		dir:    dir,
		logger: logger.With(zap.String("component", "artifact_store")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the output directory.
func (s *Store) Dir() string { return s.dir }

// Save names and writes the artifact. Once called the write is not
// interrupted; callers check cancellation before calling it.
func (s *Store) Save(ctx context.Context, in SaveInput) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, types.NewError(types.ErrPersistenceError, "failed to create output directory").WithCause(err)
	}

	ts := s.now()
	a := &Artifact{
		Label:     in.Label,
		Index:     NextIndex(s.dir, in.Label),
		Timestamp: ts,
		ModelID:   in.ModelID,
		Seed:      in.Seed,
		Ext:       InferExt(in.ContentType, in.SourceURL),
		Size:      len(in.Data),
	}
	a.FileName = FileName(a.Label, a.Index, ts, a.ModelID, a.Seed, a.Ext)
	a.Path = filepath.Join(s.dir, a.FileName)

	// 先写临时文件再重命名，点前缀保证不会被索引扫描命中.
	tmp := filepath.Join(s.dir, "."+a.FileName+".tmp")
	if err := os.WriteFile(tmp, in.Data, 0o644); err != nil {
		return nil, types.NewError(types.ErrPersistenceError, "failed to write artifact").WithCause(err)
	}
	if err := os.Rename(tmp, a.Path); err != nil {
		_ = os.Remove(tmp)
		return nil, types.NewError(types.ErrPersistenceError, "failed to finalize artifact").WithCause(err)
	}

	s.logger.Info("artifact saved",
		zap.String("file", a.FileName),
		zap.String("label", a.Label),
		zap.Int("index", a.Index),
		zap.Int("bytes", a.Size),
	)

	if s.mirror != nil {
		meta := map[string]string{
			"label": a.Label,
			"model": a.ModelID,
			"seed":  SeedPart(a.Seed),
		}
		if err := s.mirror.Mirror(context.WithoutCancel(ctx), a.FileName, contentTypeFor(a.Ext), in.Data, meta); err != nil {
			// 镜像失败不影响本地结果.
			s.logger.Warn("artifact mirror failed", zap.String("file", a.FileName), zap.Error(err))
		}
	}

	return a, nil
}

// CheckWritable verifies the output directory can be created and written.
func (s *Store) CheckWritable(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	f, err := os.CreateTemp(s.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("output directory not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func contentTypeFor(ext string) string {
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
