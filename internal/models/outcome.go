package models

import "time"

// Outcome is the tri-state result of one mutating step. A skipped step is a
// non-action, not a failure.
type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
)

// JournalEntry records one teardown action in the local action journal.
type JournalEntry struct {
	RunID     string
	Step      string
	Target    string
	Outcome   Outcome
	Error     string
	CreatedAt time.Time
}
