package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/renderflow/types"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingMirror struct {
	names    []string
	metadata []map[string]string
	err      error
}

func (m *recordingMirror) Mirror(ctx context.Context, name, contentType string, data []byte, metadata map[string]string) error {
	m.names = append(m.names, name)
	m.metadata = append(m.metadata, metadata)
	return m.err
}

func fixedClock() time.Time {
	return time.Date(2025, 3, 9, 7, 5, 2, 0, time.Local)
}

func TestStore_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	mirror := &recordingMirror{}
	store := NewStore(dir, zap.NewNop(), WithMirror(mirror), WithClock(fixedClock))

	seed := int64(7)
	a, err := store.Save(context.Background(), SaveInput{
		Label:       "qwen",
		ModelID:     "qwen",
		Seed:        &seed,
		ContentType: "image/jpeg",
		SourceURL:   "https://cdn/out.png",
		Data:        []byte("jpeg-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Index)
	assert.Equal(t, "qwen1__2025-03-09__07-05-02__qwen__seed-7.jpeg", a.FileName)
	assert.Equal(t, filepath.Join(dir, a.FileName), a.Path)

	data, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	b, err := store.Save(context.Background(), SaveInput{Label: "qwen", ModelID: "qwen", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Index)
	assert.Equal(t, "png", b.Ext)

	assert.Equal(t, []string{a.FileName, b.FileName}, mirror.names)
	assert.Equal(t, "seed-7", mirror.metadata[0]["seed"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStore_Save_MirrorFailureIsNotFatal(t *testing.T) {
	store := NewStore(t.TempDir(), nil, WithMirror(&recordingMirror{err: errors.New("bucket gone")}))
	a, err := store.Save(context.Background(), SaveInput{Label: "flux", ModelID: "flux", Data: []byte("x")})
	require.NoError(t, err)
	assert.FileExists(t, a.Path)
}

func TestStore_Save_PersistenceError(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	store := NewStore(filepath.Join(blocker, "out"), nil)
	_, err := store.Save(context.Background(), SaveInput{Label: "flux", ModelID: "flux", Data: []byte("x")})
	require.Error(t, err)
	assert.Equal(t, types.ErrPersistenceError, types.GetErrorCode(err))
	assert.Equal(t, types.KindPersistence, types.KindOf(err))
}

func TestStore_CheckWritable(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "new"), nil)
	require.NoError(t, store.CheckWritable(context.Background()))
}

type fakePutObject struct {
	input *s3.PutObjectInput
	err   error
}

func (f *fakePutObject) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Mirror(t *testing.T) {
	client := &fakePutObject{}
	m := &S3Mirror{Client: client, Bucket: "renders", Prefix: "/edits/"}

	err := m.Mirror(context.Background(), "flux1.png", "image/png", []byte("x"), map[string]string{"model": "flux"})
	require.NoError(t, err)
	assert.Equal(t, "renders", aws.ToString(client.input.Bucket))
	assert.Equal(t, "edits/flux1.png", aws.ToString(client.input.Key))
	assert.Equal(t, "image/png", aws.ToString(client.input.ContentType))
	assert.Equal(t, "flux", client.input.Metadata["model"])

	client.err = errors.New("denied")
	err = m.Mirror(context.Background(), "flux2.png", "image/png", []byte("x"), nil)
	assert.ErrorContains(t, err, "s3://renders/edits/flux2.png")
}
