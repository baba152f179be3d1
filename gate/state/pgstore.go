package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PGStore persists the aggregate as a single JSONB document row in Postgres.
// The relay_state table is created by the shared migrations pipeline.
type PGStore struct {
	db *sqlx.DB
}

// NewPGStore returns a persister backed by the given connection pool.
func NewPGStore(db *sqlx.DB) *PGStore {
	return &PGStore{db: db}
}

// Load reads the document row. An empty table is a first run.
func (p *PGStore) Load() (*State, bool, error) {
	var doc []byte
	err := p.db.Get(&doc, `SELECT doc FROM relay_state WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select relay_state: %w", err)
	}
	var st State
	if err := json.Unmarshal(doc, &st); err != nil {
		return nil, false, fmt.Errorf("parse relay_state doc: %w", err)
	}
	return &st, true, nil
}

// Save upserts the document row.
func (p *PGStore) Save(st *State) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = p.db.Exec(`
		INSERT INTO relay_state (id, doc, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		doc,
	)
	if err != nil {
		return fmt.Errorf("upsert relay_state: %w", err)
	}
	return nil
}
