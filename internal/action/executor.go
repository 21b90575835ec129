// Package action isolates the confirm/dry-run behavior of mutating steps
// from the teardown logic. An Executor takes a described thunk and decides
// whether to run it, returning a tri-state outcome.
package action

import (
	"context"

	"go.uber.org/zap"

	"github.com/virtops/brokeradm/internal/models"
)

// Confirmer asks the operator to approve a single mutating step.
type Confirmer interface {
	Confirm(message string) (bool, error)
}

// Executor applies the dry-run and per-step confirmation modifiers uniformly
// to every mutating action.
type Executor struct {
	dryRun    bool
	confirm   bool
	confirmer Confirmer
	log       *zap.SugaredLogger
}

func NewExecutor(dryRun, confirm bool, confirmer Confirmer) *Executor {
	return &Executor{
		dryRun:    dryRun,
		confirm:   confirm,
		confirmer: confirmer,
		log:       zap.S().Named("action_executor"),
	}
}

// Run decides execute-vs-skip for one mutating step and invokes fn when the
// step is approved. A declined or dry-run step is a non-action, not a
// failure.
func (e *Executor) Run(ctx context.Context, description, target string, fn func(ctx context.Context) error) models.Outcome {
	if e.dryRun {
		e.log.Infow("dry run, skipping action", "action", description, "target", target)
		return models.OutcomeSkipped
	}
	if e.confirm && e.confirmer != nil {
		ok, err := e.confirmer.Confirm(description)
		if err != nil {
			e.log.Warnw("confirmation prompt failed, skipping action", "action", description, "error", err)
			return models.OutcomeSkipped
		}
		if !ok {
			e.log.Infow("action declined by operator", "action", description, "target", target)
			return models.OutcomeSkipped
		}
	}
	if err := fn(ctx); err != nil {
		e.log.Warnw("action failed", "action", description, "target", target, "error", err)
		return models.OutcomeFailed
	}
	return models.OutcomeExecuted
}
