package passkey

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatebot/gate/state"
)

func testManager(t *testing.T) (*Manager, *state.Store) {
	t.Helper()
	store, err := state.Open(state.NewFileStore(filepath.Join(t.TempDir(), "state.json")), 1)
	require.NoError(t, err)
	return NewManager(store), store
}

// fixedRand yields the given values in order, then falls back to zero.
func fixedRand(values ...int64) func(max *big.Int) (*big.Int, error) {
	i := 0
	return func(max *big.Int) (*big.Int, error) {
		if i >= len(values) {
			return big.NewInt(0), nil
		}
		v := values[i]
		i++
		return big.NewInt(v), nil
	}
}

func TestIssueProducesZeroPaddedKey(t *testing.T) {
	m, store := testManager(t)
	m.randInt = fixedRand(7)

	base := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return base }

	rec, err := m.Issue(42)
	require.NoError(t, err)
	assert.Equal(t, "000007", rec.Key)
	assert.Equal(t, base.Add(30*time.Minute).UnixMilli(), rec.ExpiresAt)

	store.View(func(st *state.State) {
		require.Contains(t, st.ActivePasskeys, int64(42))
		assert.Equal(t, rec, *st.ActivePasskeys[42])
	})
}

func TestIssueRetriesOnCollision(t *testing.T) {
	m, store := testManager(t)
	require.NoError(t, store.Do(func(tx *state.Txn) error {
		tx.State().ActivePasskeys[7] = &state.PasskeyRecord{Key: "000007", ExpiresAt: 1 << 60}
		tx.Dirty()
		return nil
	}))

	// First draw collides with user 7's outstanding key.
	m.randInt = fixedRand(7, 8)
	rec, err := m.Issue(42)
	require.NoError(t, err)
	assert.Equal(t, "000008", rec.Key)
}

func TestIssueOverwritesPriorRecord(t *testing.T) {
	m, store := testManager(t)
	m.randInt = fixedRand(1, 2)

	_, err := m.Issue(42)
	require.NoError(t, err)
	rec, err := m.Issue(42)
	require.NoError(t, err)
	assert.Equal(t, "000002", rec.Key)

	store.View(func(st *state.State) {
		assert.Len(t, st.ActivePasskeys, 1)
		assert.Equal(t, "000002", st.ActivePasskeys[42].Key)
	})
}

func TestVerifyWrongKey(t *testing.T) {
	m, store := testManager(t)
	m.randInt = fixedRand(1)
	_, err := m.Issue(42)
	require.NoError(t, err)

	ok, err := m.Verify(42, "999999")
	require.NoError(t, err)
	assert.False(t, ok)

	// A failed check must not consume the record.
	store.View(func(st *state.State) {
		assert.Contains(t, st.ActivePasskeys, int64(42))
	})
}

func TestVerifyNoRecord(t *testing.T) {
	m, _ := testManager(t)
	ok, err := m.Verify(42, "000001")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyExpiredDeletesRecord(t *testing.T) {
	m, store := testManager(t)
	m.randInt = fixedRand(1)

	base := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return base }
	_, err := m.Issue(42)
	require.NoError(t, err)

	m.now = func() time.Time { return base.Add(31 * time.Minute) }
	ok, err := m.Verify(42, "000001")
	require.NoError(t, err)
	assert.False(t, ok)

	store.View(func(st *state.State) {
		assert.NotContains(t, st.ActivePasskeys, int64(42), "expired record is cleaned up lazily")
	})
}

func TestVerifySuccessKeepsRecord(t *testing.T) {
	m, store := testManager(t)
	m.randInt = fixedRand(1)
	_, err := m.Issue(42)
	require.NoError(t, err)

	ok, err := m.Verify(42, "000001")
	require.NoError(t, err)
	assert.True(t, ok)

	store.View(func(st *state.State) {
		assert.Contains(t, st.ActivePasskeys, int64(42))
	})
}

func TestRevoke(t *testing.T) {
	m, store := testManager(t)
	m.randInt = fixedRand(1)
	_, err := m.Issue(42)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(42))
	store.View(func(st *state.State) {
		assert.NotContains(t, st.ActivePasskeys, int64(42))
	})

	// Revoking again is a no-op.
	require.NoError(t, m.Revoke(42))
}
