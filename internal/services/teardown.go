package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/virtops/brokeradm/internal/action"
	"github.com/virtops/brokeradm/internal/models"
	srvErrors "github.com/virtops/brokeradm/pkg/errors"
)

// Broker is the slice of the management API the teardown procedure consumes.
type Broker interface {
	AuditSink
	ListHostingConnections(ctx context.Context) ([]models.HostingConnection, error)
	ListResourceUnits(ctx context.Context, connectionName string) ([]models.ResourceUnit, error)
	GetActiveTask(ctx context.Context, hostingUnitUID string) (*models.ProvisioningTask, error)
	StopTask(ctx context.Context, taskID, loggingID string) error
	RemoveTask(ctx context.Context, taskID, loggingID string) error
	DeleteResourceUnit(ctx context.Context, hostingUnitUID, loggingID string) error
	DeleteHostingConnection(ctx context.Context, name, loggingID string) error
	DeleteHypervisorConnection(ctx context.Context, name, loggingID string) error
}

// Journal records executed teardown actions locally. Recording is
// best-effort and never alters procedure behavior.
type Journal interface {
	Record(ctx context.Context, entry models.JournalEntry) error
}

// TeardownService drains in-flight provisioning tasks under a hosting
// connection and deletes its resource, hosting and hypervisor objects.
type TeardownService struct {
	broker   Broker
	auditor  *Auditor
	executor *action.Executor
	journal  Journal
	runID    string
	log      *zap.SugaredLogger
}

func NewTeardownService(broker Broker, auditor *Auditor, executor *action.Executor, journal Journal, runID string) *TeardownService {
	return &TeardownService{
		broker:   broker,
		auditor:  auditor,
		executor: executor,
		journal:  journal,
		runID:    runID,
		log:      zap.S().Named("teardown_service"),
	}
}

// Teardown runs the whole procedure against one hosting connection. In
// resource-only mode it deletes only the resource units that had an active
// task; otherwise it deletes every resource unit, then the hosting
// connection, then the matching hypervisor connection, in that order. Each
// deletion is independent and there is no rollback.
func (s *TeardownService) Teardown(ctx context.Context, connectionName string, resourceOnly bool) error {
	conns, err := s.broker.ListHostingConnections(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate hosting connections: %w", err)
	}
	var selected *models.HostingConnection
	for i := range conns {
		if conns[i].Name == connectionName {
			selected = &conns[i]
			break
		}
	}
	if selected == nil {
		return srvErrors.NewConnectionNotFoundError(connectionName)
	}

	units, err := s.broker.ListResourceUnits(ctx, selected.Name)
	if err != nil {
		return fmt.Errorf("failed to enumerate resource units under %q: %w", selected.Name, err)
	}
	s.log.Infow("selected hosting connection", "connection", selected.Name, "resourceUnits", len(units))

	// Drain every unit before any deletion. A failed task query aborts the
	// whole procedure: objects with undiscovered active tasks must not be
	// deleted.
	var flagged []models.ResourceUnit
	for _, unit := range units {
		hadTask, err := s.drainUnit(ctx, unit)
		if err != nil {
			return err
		}
		if hadTask {
			flagged = append(flagged, unit)
		}
	}

	if resourceOnly {
		for _, unit := range flagged {
			s.deleteUnit(ctx, unit)
		}
		s.log.Infow("resource-only teardown finished", "connection", selected.Name, "deletedUnits", len(flagged))
		return nil
	}

	for _, unit := range units {
		s.deleteUnit(ctx, unit)
	}
	s.step(ctx, "delete-hosting-connection",
		fmt.Sprintf("Delete hosting connection %q", selected.Name),
		models.OperationTypeConfigurationChange, selected.Name,
		func(ctx context.Context, loggingID string) error {
			return s.broker.DeleteHostingConnection(ctx, selected.Name, loggingID)
		})
	s.step(ctx, "delete-hypervisor-connection",
		fmt.Sprintf("Delete hypervisor connection %q", selected.Name),
		models.OperationTypeConfigurationChange, selected.Name,
		func(ctx context.Context, loggingID string) error {
			return s.broker.DeleteHypervisorConnection(ctx, selected.Name, loggingID)
		})

	s.log.Infow("teardown finished", "connection", selected.Name)
	return nil
}

// drainUnit iterates the query-stop-remove sequence until the active-task
// query yields none. The query surfaces at most one task per call, so
// correctness depends on looping rather than batch-cancelling. Stop/remove
// failures are warnings and the loop advances; a persistently failing task
// can therefore loop indefinitely. A skipped removal (dry run or operator
// decline) cannot make progress against the same re-query, so the loop stops
// draining that unit instead.
func (s *TeardownService) drainUnit(ctx context.Context, unit models.ResourceUnit) (bool, error) {
	hadTask := false
	for {
		task, err := s.broker.GetActiveTask(ctx, unit.HostingUnitUID)
		if err != nil {
			return hadTask, srvErrors.NewTaskQueryError(unit.HostingUnitUID, err)
		}
		if task == nil {
			return hadTask, nil
		}
		hadTask = true
		s.log.Infow("found active provisioning task", "taskId", task.TaskID, "unit", unit.HostingUnitUID, "type", task.Type)

		s.step(ctx, "stop-task",
			fmt.Sprintf("Stop provisioning task %q", task.TaskID),
			models.OperationTypeAdminActivity, task.TaskID,
			func(ctx context.Context, loggingID string) error {
				return s.broker.StopTask(ctx, task.TaskID, loggingID)
			})

		// Even when the stop failed, removal is still attempted.
		removed := s.step(ctx, "remove-task",
			fmt.Sprintf("Remove provisioning task %q", task.TaskID),
			models.OperationTypeAdminActivity, task.TaskID,
			func(ctx context.Context, loggingID string) error {
				return s.broker.RemoveTask(ctx, task.TaskID, loggingID)
			})
		if removed == models.OutcomeSkipped {
			s.log.Warnw("task removal skipped, leaving remaining tasks in place", "unit", unit.HostingUnitUID)
			return hadTask, nil
		}
	}
}

func (s *TeardownService) deleteUnit(ctx context.Context, unit models.ResourceUnit) {
	s.step(ctx, "delete-resource-unit",
		fmt.Sprintf("Delete resource connection %q", unit.Name),
		models.OperationTypeConfigurationChange, unit.HostingUnitUID,
		func(ctx context.Context, loggingID string) error {
			return s.broker.DeleteResourceUnit(ctx, unit.HostingUnitUID, loggingID)
		})
}

// step runs one mutating action through the executor, bracketed by an audit
// operation when executed, and journals the outcome.
func (s *TeardownService) step(
	ctx context.Context,
	step, description string,
	opType models.OperationType,
	target string,
	fn func(ctx context.Context, loggingID string) error,
) models.Outcome {
	var actionErr error
	outcome := s.executor.Run(ctx, description, target, func(ctx context.Context) error {
		if err := s.auditor.Around(ctx, description, opType, []string{target}, fn); err != nil {
			actionErr = srvErrors.NewActionError(step, target, err)
			return actionErr
		}
		return nil
	})

	entry := models.JournalEntry{
		RunID:   s.runID,
		Step:    step,
		Target:  target,
		Outcome: outcome,
	}
	if outcome == models.OutcomeFailed && actionErr != nil {
		entry.Error = actionErr.Error()
	}
	if s.journal != nil {
		if err := s.journal.Record(ctx, entry); err != nil {
			s.log.Warnw("failed to journal action", "step", step, "target", target, "error", err)
		}
	}
	return outcome
}
