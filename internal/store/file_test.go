package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dc2kook/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	values, err := s.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = s.Get(context.Background(), "enabled")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileStoreSetSave(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "enabled", false))
	require.NoError(t, s.Set(ctx, "forward_channels", config.Mapping{"A": "B", "C": "D"}))

	// 未保存前磁盘上没有文件，但读取能看到暂存值
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	v, err := s.Get(ctx, "forward_channels")
	require.NoError(t, err)
	assert.Equal(t, "A B\nC D", v)

	require.NoError(t, s.Save(ctx))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	values, err := reopened.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, false, values["enabled"])
	assert.Equal(t, "A B\nC D", values["forward_channels"])

	opts := config.Decode(values)
	assert.Equal(t, config.Mapping{"A": "B", "C": "D"}, opts.ForwardChannels)
}

func TestFileStoreSeesExternalEdits(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"message_prefix": "[A] "}`), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)

	v, err := s.Get(ctx, "message_prefix")
	require.NoError(t, err)
	assert.Equal(t, "[A] ", v)

	require.NoError(t, os.WriteFile(path, []byte(`{"message_prefix": "[B] ", "image_cleanup_hours": 3}`), 0o600))

	values, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, "[B] ", values["message_prefix"])

	opts := config.Decode(values)
	assert.Equal(t, 3, opts.ImageCleanupHours)
}

func TestFileStoreSaveKeepsUnknownKeys(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"custom": "x"}`), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "enabled", true))
	require.NoError(t, s.Save(ctx))

	values, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x", values["custom"])
	assert.Equal(t, true, values["enabled"])
}

func TestFileStoreInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, err := NewFileStore(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLayeredOverlay(t *testing.T) {
	ctx := context.Background()
	base := NewMemory(map[string]any{"enabled": true, "message_prefix": "[base] "})
	external := NewMemory(map[string]any{"message_prefix": "[ext] "})
	l := NewLayered(base, external)

	values, err := l.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, values["enabled"])
	assert.Equal(t, "[ext] ", values["message_prefix"])

	v, err := l.Get(ctx, "enabled")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	require.NoError(t, l.Set(ctx, "enabled", false))
	require.NoError(t, l.Save(ctx))

	bv, _ := base.Get(ctx, "enabled")
	ev, _ := external.Get(ctx, "enabled")
	assert.Equal(t, false, bv)
	assert.Equal(t, false, ev)
	assert.Equal(t, 1, base.Saves())
	assert.Equal(t, 1, external.Saves())
}

type failingStore struct{ *Memory }

func (f *failingStore) All(context.Context) (map[string]any, error) {
	return nil, errors.New("connection refused")
}

func TestLayeredExternalUnavailable(t *testing.T) {
	base := NewMemory(map[string]any{"enabled": true})
	l := NewLayered(base, &failingStore{Memory: NewMemory(nil)})

	values, err := l.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, true, values["enabled"])
}
