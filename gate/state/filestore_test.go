package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "nested", "state.json"))

	st := Default(1)
	st.Users[42] = NewUserRecord()
	st.PendingRequests[43] = true
	require.NoError(t, fs.Save(st))

	got, found, err := fs.Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), got.AdminID)
	assert.True(t, got.Users[42].Active)
	assert.True(t, got.PendingRequests[43])
}

func TestFileStoreMissingFileIsFirstRun(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	st, found, err := fs.Load()
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, st)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o600))

	_, _, err := NewFileStore(path).Load()
	require.Error(t, err)
}

func TestFileStoreSaveLeavesNoTempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	fs := NewFileStore(path)
	require.NoError(t, fs.Save(Default(1)))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")
}
