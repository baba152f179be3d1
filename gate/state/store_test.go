package state

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyPersister fails Save after a configurable number of successes.
type flakyPersister struct {
	inner     Persister
	saves     int
	failAfter int
}

func (f *flakyPersister) Load() (*State, bool, error) { return f.inner.Load() }

func (f *flakyPersister) Save(st *State) error {
	f.saves++
	if f.failAfter >= 0 && f.saves > f.failAfter {
		return errors.New("disk full")
	}
	return f.inner.Save(st)
}

func tempFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "state.json"))
}

func TestOpenFirstRunPersistsDefaults(t *testing.T) {
	fs := tempFileStore(t)
	store, err := Open(fs, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), store.AdminID())

	// Reopen from disk and confirm the document survived.
	again, err := Open(fs, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.AdminID())
	again.View(func(st *State) {
		assert.True(t, st.ActiveUser(1))
	})
}

func TestOpenAdminOverride(t *testing.T) {
	fs := tempFileStore(t)
	_, err := Open(fs, 1)
	require.NoError(t, err)

	store, err := Open(fs, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), store.AdminID())
	store.View(func(st *State) {
		assert.True(t, st.ActiveUser(2))
	})
}

func TestDoPersistsDirtyTransactions(t *testing.T) {
	fs := tempFileStore(t)
	store, err := Open(fs, 1)
	require.NoError(t, err)

	err = store.Do(func(tx *Txn) error {
		tx.State().PendingRequests[42] = true
		tx.Dirty()
		return nil
	})
	require.NoError(t, err)

	reloaded, err := Open(fs, 0)
	require.NoError(t, err)
	reloaded.View(func(st *State) {
		assert.True(t, st.PendingRequests[42])
	})
}

func TestDoSkipsSaveWhenClean(t *testing.T) {
	fp := &flakyPersister{inner: tempFileStore(t), failAfter: 1}
	store, err := Open(fp, 1)
	require.NoError(t, err)
	require.Equal(t, 1, fp.saves)

	// Not marked dirty, so the poisoned Save is never reached.
	err = store.Do(func(tx *Txn) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, fp.saves)
}

func TestDoRollsBackOnFnError(t *testing.T) {
	fs := tempFileStore(t)
	store, err := Open(fs, 1)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.Do(func(tx *Txn) error {
		tx.State().PendingRequests[42] = true
		tx.Dirty()
		return boom
	})
	require.ErrorIs(t, err, boom)
	store.View(func(st *State) {
		assert.NotContains(t, st.PendingRequests, int64(42))
	})
}

func TestDoRollsBackOnSaveFailure(t *testing.T) {
	fp := &flakyPersister{inner: tempFileStore(t), failAfter: 1}
	store, err := Open(fp, 1)
	require.NoError(t, err)

	err = store.Do(func(tx *Txn) error {
		tx.State().PendingRequests[42] = true
		tx.Dirty()
		return nil
	})
	require.Error(t, err)
	store.View(func(st *State) {
		assert.NotContains(t, st.PendingRequests, int64(42), "memory must not diverge from disk")
	})
}

func TestSetBotTokenIdempotent(t *testing.T) {
	fp := &flakyPersister{inner: tempFileStore(t), failAfter: 2}
	store, err := Open(fp, 1)
	require.NoError(t, err)

	require.NoError(t, store.SetBotToken("123:abc"))
	require.Equal(t, 2, fp.saves)

	// Same token again: no write.
	require.NoError(t, store.SetBotToken("123:abc"))
	assert.Equal(t, 2, fp.saves)
	assert.Equal(t, "123:abc", store.BotToken())
}
