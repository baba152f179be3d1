package state

import (
	"fmt"
	"sync"
)

// Persister reads and writes the serialized aggregate. Save must be atomic
// from the caller's perspective: a subsequent Load never observes a partial
// write.
type Persister interface {
	// Load returns the stored state, or found=false on first run.
	Load() (*State, bool, error)
	Save(*State) error
}

// Txn exposes the aggregate to a Store.Do callback. Mutations must be
// announced with Dirty so the store persists before releasing the lock.
type Txn struct {
	st    *State
	dirty bool
}

// State returns the live aggregate for the duration of the transaction.
func (t *Txn) State() *State { return t.st }

// Dirty marks the transaction as having mutated state.
func (t *Txn) Dirty() { t.dirty = true }

// Store is the single authority over the aggregate. Every read-decide-write
// sequence runs under one exclusive lock, so no handler ever decides on a
// state value older than its own prior write.
type Store struct {
	mu sync.Mutex
	st *State
	p  Persister
}

// Open loads the persisted state or materializes defaults on first run.
// A non-zero adminID overrides the stored admin identity; the admin user
// record is (re)seeded active either way.
func Open(p Persister, adminID int64) (*Store, error) {
	st, found, err := p.Load()
	if err != nil {
		return nil, fmt.Errorf("state: load: %w", err)
	}
	created := !found
	if created {
		st = Default(adminID)
	}
	if adminID != 0 {
		st.AdminID = adminID
	}
	st.normalize()
	if created {
		if err := p.Save(st); err != nil {
			return nil, fmt.Errorf("state: save initial: %w", err)
		}
	}
	return &Store{st: st, p: p}, nil
}

// Do runs fn under the store lock and persists when the transaction was
// marked dirty. If fn fails or the persist fails, the in-memory aggregate is
// rolled back to its pre-transaction snapshot and the error is returned so
// the calling handler aborts instead of proceeding with divergent state.
func (s *Store) Do(fn func(tx *Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.Clone()
	tx := &Txn{st: s.st}
	if err := fn(tx); err != nil {
		s.st = snapshot
		return err
	}
	if !tx.dirty {
		return nil
	}
	if err := s.p.Save(s.st); err != nil {
		s.st = snapshot
		return fmt.Errorf("state: save: %w", err)
	}
	return nil
}

// View runs fn with read access under the store lock. fn must not retain
// references to the aggregate past its return.
func (s *Store) View(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

// AdminID returns the configured admin identity.
func (s *Store) AdminID() int64 {
	var id int64
	s.View(func(st *State) { id = st.AdminID })
	return id
}

// BotToken returns the persisted bot credential, if any.
func (s *Store) BotToken() string {
	var tok string
	s.View(func(st *State) { tok = st.BotToken })
	return tok
}

// SetBotToken persists the bot credential for later runs.
func (s *Store) SetBotToken(token string) error {
	return s.Do(func(tx *Txn) error {
		if tx.State().BotToken == token {
			return nil
		}
		tx.State().BotToken = token
		tx.Dirty()
		return nil
	})
}
