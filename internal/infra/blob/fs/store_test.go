package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbtlineage/internal/blob/core"
)

func TestStorePutGetListDelete(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	assert.Equal(t, root, s.Root())
	assert.Equal(t, core.DriverFilesystem, s.Driver())

	info, err := s.Put(ctx, "reports/2024/b1.json", strings.NewReader(`{"ok":true}`), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"rows": "3"}})
	require.NoError(t, err)
	assert.Equal(t, int64(11), info.Size)
	assert.Len(t, info.ETag, 64)
	assert.FileExists(t, filepath.Join(root, "reports", "2024", "b1.json"))

	_, err = s.Put(ctx, "reports/2024/b1.json", strings.NewReader("dup"), core.PutOptions{})
	require.ErrorIs(t, err, core.ErrExists)

	got, rc, err := s.Get(ctx, "reports/2024/b1.json")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, `{"ok":true}`, string(body))
	assert.Equal(t, "3", got.Metadata["rows"])
	assert.Equal(t, info.ETag, got.ETag)

	_, err = s.Put(ctx, "misc.txt", strings.NewReader("m"), core.PutOptions{})
	require.NoError(t, err)
	list, err := s.List(ctx, "reports/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "reports/2024/b1.json", list[0].Key)
	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	deleted, err := s.Delete(ctx, "reports/2024/b1.json")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.Delete(ctx, "reports/2024/b1.json")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.Head(ctx, "reports/2024/b1.json")
	require.ErrorIs(t, err, core.ErrNotFound)
	_, _, err = s.Get(ctx, "reports/2024/b1.json")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestStoreRejectsBadKeys(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "/abs", "../escape", "a/../../b", "x.meta"} {
		_, err := s.Put(context.Background(), key, strings.NewReader("x"), core.PutOptions{})
		assert.ErrorIs(t, err, core.ErrInvalidKey, key)
	}
}

func TestStoreCorruptSidecar(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.meta"), []byte("{"), 0o600))

	_, err = s.Head(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrNotFound)
	_, err = s.List(context.Background(), "")
	require.Error(t, err)
}
