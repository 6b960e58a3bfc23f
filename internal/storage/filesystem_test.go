package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystem_WriteAndDelete(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	stored, err := fs.Write(ctx, []byte("hello"), "../../Report.PDF")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(stored.Name, ".pdf"))
	assert.Equal(t, stored.Name, filepath.Base(stored.Path))

	data, err := os.ReadFile(stored.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, fs.Delete(ctx, stored.Path))
	_, err = os.Stat(stored.Path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, fs.Delete(ctx, stored.Path))
}

func TestFilesystem_GeneratedNamesDiffer(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	a, err := fs.Write(context.Background(), []byte("a"), "same.txt")
	require.NoError(t, err)
	b, err := fs.Write(context.Background(), []byte("b"), "same.txt")
	require.NoError(t, err)
	assert.NotEqual(t, a.Path, b.Path)
}
