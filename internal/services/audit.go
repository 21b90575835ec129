package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/virtops/brokeradm/internal/models"
)

// AuditSink is the slice of the broker API used for configuration logging.
type AuditSink interface {
	StartAuditOperation(ctx context.Context, op models.AuditOperation) (string, error)
	StopAuditOperation(ctx context.Context, operationID string, succeeded bool) error
}

// Auditor brackets a single mutating call in an audit operation. The close
// step always runs, including when the wrapped call panics, and is itself
// best-effort.
type Auditor struct {
	sink   AuditSink
	source string
	log    *zap.SugaredLogger
}

func NewAuditor(sink AuditSink, source string) *Auditor {
	return &Auditor{
		sink:   sink,
		source: source,
		log:    zap.S().Named("audit"),
	}
}

// Around opens an audit operation, runs fn with the operation id so the
// backend can correlate the mutation, and closes the operation with fn's
// success flag.
func (a *Auditor) Around(
	ctx context.Context,
	text string,
	opType models.OperationType,
	targetIDs []string,
	fn func(ctx context.Context, loggingID string) error,
) (err error) {
	loggingID, startErr := a.sink.StartAuditOperation(ctx, models.AuditOperation{
		Text:      text,
		Source:    a.source,
		Type:      opType,
		TargetIDs: targetIDs,
	})
	if startErr != nil {
		return startErr
	}

	succeeded := false
	defer func() {
		if closeErr := a.sink.StopAuditOperation(ctx, loggingID, succeeded); closeErr != nil {
			a.log.Warnw("failed to close audit operation", "operationId", loggingID, "error", closeErr)
		}
	}()

	if err = fn(ctx, loggingID); err != nil {
		return err
	}
	succeeded = true
	return nil
}
