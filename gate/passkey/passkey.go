// Package passkey generates, validates, and expires the one-time numeric
// credentials that promote a pending user to active.
package passkey

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"gatebot/gate/state"
)

// Manager issues and checks passkeys against the shared state store. Every
// operation is one store transaction, so issuance and lazy expiry cleanup
// persist before the next event is processed.
type Manager struct {
	store   *state.Store
	now     func() time.Time
	randInt func(max *big.Int) (*big.Int, error)
}

// NewManager returns a Manager using the system clock and crypto/rand.
func NewManager(store *state.Store) *Manager {
	return &Manager{
		store:   store,
		now:     time.Now,
		randInt: func(max *big.Int) (*big.Int, error) { return rand.Int(rand.Reader, max) },
	}
}

// generate produces a decimal key of the given length that collides with no
// outstanding key. Termination is guaranteed: the digit space dwarfs the
// active set.
func (m *Manager) generate(length int, taken map[string]bool) (string, error) {
	if length <= 0 {
		length = state.DefaultPasskeyLength
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	for {
		n, err := m.randInt(max)
		if err != nil {
			return "", fmt.Errorf("passkey: rand: %w", err)
		}
		key := fmt.Sprintf("%0*d", length, n)
		if !taken[key] {
			return key, nil
		}
	}
}

// Issue generates a fresh key for the user, overwriting any prior record, and
// persists it. The expiry window starts at issuance.
func (m *Manager) Issue(userID int64) (state.PasskeyRecord, error) {
	var rec state.PasskeyRecord
	err := m.store.Do(func(tx *state.Txn) error {
		st := tx.State()
		taken := make(map[string]bool, len(st.ActivePasskeys))
		for _, r := range st.ActivePasskeys {
			taken[r.Key] = true
		}
		key, err := m.generate(st.PasskeyLength, taken)
		if err != nil {
			return err
		}
		rec = state.PasskeyRecord{
			Key:       key,
			ExpiresAt: m.now().Add(st.PasskeyTimeout()).UnixMilli(),
		}
		stored := rec
		st.ActivePasskeys[userID] = &stored
		tx.Dirty()
		return nil
	})
	return rec, err
}

// Verify checks the candidate against the user's outstanding record. It fails
// when no record exists, the candidate mismatches, or the record expired; an
// expired record is deleted and persisted as a side effect. On success the
// record stays in place; revoking it is the caller's part of completing
// verification.
func (m *Manager) Verify(userID int64, candidate string) (bool, error) {
	ok := false
	err := m.store.Do(func(tx *state.Txn) error {
		st := tx.State()
		rec, found := st.ActivePasskeys[userID]
		if !found || rec.Key != candidate {
			return nil
		}
		if rec.Expired(m.now()) {
			delete(st.ActivePasskeys, userID)
			tx.Dirty()
			return nil
		}
		ok = true
		return nil
	})
	return ok, err
}

// Revoke drops any outstanding record for the user and persists.
func (m *Manager) Revoke(userID int64) error {
	return m.store.Do(func(tx *state.Txn) error {
		st := tx.State()
		if _, found := st.ActivePasskeys[userID]; !found {
			return nil
		}
		delete(st.ActivePasskeys, userID)
		tx.Dirty()
		return nil
	})
}
