package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFileGeneratesThenReuses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.key")

	k1, err := LoadFromFile(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(KeySize), info.Size())

	k2, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestLoadFromFileRejectsWrongSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.key")
	require.NoError(t, os.WriteFile(path, []byte("too short"), 0o600))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestDeriveRouterIDDeterministic(t *testing.T) {
	a, err := DeriveRouterID([]byte("pub-key-bytes"))
	require.NoError(t, err)
	b, err := DeriveRouterID([]byte("pub-key-bytes"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
