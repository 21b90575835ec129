package store

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// Store provides access to all storage repositories.
type Store struct {
	db      *sql.DB
	journal *JournalStore
}

// NewDB opens the SQLite database backing the action journal.
func NewDB(path string) (*sql.DB, error) {
	return sql.Open("sqlite", path)
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:      db,
		journal: NewJournalStore(db),
	}
}

func (s *Store) Journal() *JournalStore {
	return s.journal
}

func (s *Store) Close() error {
	return s.db.Close()
}
