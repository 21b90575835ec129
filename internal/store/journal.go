// Package store implements the local action journal: every mutating teardown
// step is recorded with its tri-state outcome for post-run operator review.
package store

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/virtops/brokeradm/internal/models"
)

// JournalStore persists teardown actions in SQLite.
type JournalStore struct {
	db *sql.DB
}

func NewJournalStore(db *sql.DB) *JournalStore {
	return &JournalStore{db: db}
}

// Record appends one action to the journal.
func (s *JournalStore) Record(ctx context.Context, entry models.JournalEntry) error {
	query, args, err := sq.Insert("journal").
		Columns("run_id", "step", "target", "outcome", "error").
		Values(entry.RunID, entry.Step, entry.Target, string(entry.Outcome), entry.Error).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

type ListOption func(sq.SelectBuilder) sq.SelectBuilder

func ByRunID(runID string) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		if runID == "" {
			return b
		}
		return b.Where(sq.Eq{"run_id": runID})
	}
}

func WithLimit(limit uint64) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		if limit == 0 {
			return b
		}
		return b.Limit(limit)
	}
}

// List returns journal entries, newest first.
func (s *JournalStore) List(ctx context.Context, opts ...ListOption) ([]models.JournalEntry, error) {
	builder := sq.Select("run_id", "step", "target", "outcome", "error", "created_at").
		From("journal").
		OrderBy("id DESC")

	for _, opt := range opts {
		builder = opt(builder)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var entry models.JournalEntry
		var outcome, createdAt string
		if err := rows.Scan(&entry.RunID, &entry.Step, &entry.Target, &outcome, &entry.Error, &createdAt); err != nil {
			return nil, err
		}
		entry.Outcome = models.Outcome(outcome)
		// CURRENT_TIMESTAMP is stored as UTC text.
		if ts, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			entry.CreatedAt = ts
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
