package mmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenReadClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	require.NoError(t, os.WriteFile(path, []byte("mapped contents"), 0o644))

	m, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("mapped contents"), m.Data)

	buf := make([]byte, 6)
	n, err := m.ReadAt(buf, 7)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte("conten"), buf)

	require.NoError(t, m.Close())
	assert.Nil(t, m.Data)
	require.NoError(t, m.Close(), "double close is safe")
}

func TestOpenEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	m, err := Open(path)
	require.NoError(t, err)
	assert.Nil(t, m.Data)
	require.NoError(t, m.Close())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.db"))
	assert.Error(t, err)
}
