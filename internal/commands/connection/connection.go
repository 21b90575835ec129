// Package connection implements `brokeradm connection teardown` and
// `brokeradm connection history`: interactive decommissioning of a hosting
// connection and review of past teardown runs.
package connection

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/virtops/brokeradm/internal/action"
	"github.com/virtops/brokeradm/internal/config"
	"github.com/virtops/brokeradm/internal/models"
	"github.com/virtops/brokeradm/internal/services"
	"github.com/virtops/brokeradm/internal/store"
	"github.com/virtops/brokeradm/internal/store/migrations"
	"github.com/virtops/brokeradm/pkg/broker"
)

const auditSource = "brokeradm"

func NewCommand(cfg *config.Configuration) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connection",
		Short: "Decommission hosting connections on a management controller",
	}
	cmd.AddCommand(newTeardownCommand(cfg))
	cmd.AddCommand(newHistoryCommand(cfg))
	return cmd
}

func newTeardownCommand(cfg *config.Configuration) *cobra.Command {
	var (
		adminAddress   string
		connectionName string
		resourceOnly   bool
		dryRun         bool
		confirm        bool
		yes            bool
	)

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Drain provisioning tasks and delete a hosting connection",
		Long: `Walks the selected hosting connection, stops and removes every in-flight
provisioning task, then deletes its resource connections, the hosting
connection and the matching hypervisor connection. With
--resource-connection-only, only the resource connections that had an
active task are deleted. Every mutating step is mirrored into the
controller's configuration log.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if adminAddress == "" {
				adminAddress = cfg.Broker.AdminAddress
			}
			return runTeardown(cmd.Context(), cfg, adminAddress, connectionName, resourceOnly, dryRun, confirm, yes)
		},
	}

	cmd.Flags().StringVarP(&adminAddress, "admin-address", "a", "", "controller host name or IP (default: local host)")
	cmd.Flags().StringVar(&connectionName, "connection", "", "hosting connection name, skips the interactive prompt")
	cmd.Flags().BoolVarP(&resourceOnly, "resource-connection-only", "r", false, "delete only the resource connections that had an active task")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would happen without doing it")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "prompt before each mutating step")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "run non-interactively, never prompt")
	cmd.MarkFlagsMutuallyExclusive("confirm", "yes")
	return cmd
}

func runTeardown(ctx context.Context, cfg *config.Configuration, adminAddress, connectionName string, resourceOnly, dryRun, confirm, yes bool) error {
	token, err := readToken(cfg.Broker.TokenFile)
	if err != nil {
		return err
	}
	clientFor := func(host string) *broker.Client {
		base := fmt.Sprintf("http://%s:%d", host, cfg.Broker.Port)
		if token != "" {
			return broker.NewClient(base, broker.WithToken(token))
		}
		return broker.NewClient(base)
	}

	validator := services.NewControllerValidator(
		cfg.Broker.Port,
		cfg.Broker.ProbeAttempts,
		time.Duration(cfg.Broker.ProbeIntervalSeconds)*time.Second,
		func(host string) services.HealthQuerier { return clientFor(host) },
	)
	host, err := validator.Validate(ctx, adminAddress)
	if err != nil {
		return err
	}
	client := clientFor(host)

	connectionName, err = resolveConnectionName(ctx, client, connectionName, !yes)
	if err != nil {
		return err
	}

	journal, closeJournal, err := openJournal(ctx, cfg.Journal.Path)
	if err != nil {
		// Journaling is best-effort and never blocks the procedure.
		zap.S().Named("teardown_cmd").Warnw("action journal unavailable", "error", err)
	}
	if closeJournal != nil {
		defer closeJournal()
	}

	var journalSink services.Journal
	if journal != nil {
		journalSink = journal
	}

	executor := action.NewExecutor(dryRun, confirm, action.NewSurveyConfirmer(!yes))
	auditor := services.NewAuditor(client, auditSource)
	svc := services.NewTeardownService(client, auditor, executor, journalSink, uuid.NewString())
	return svc.Teardown(ctx, connectionName, resourceOnly)
}

func readToken(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file %q: %w", path, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// resolveConnectionName returns the explicit name when given; otherwise it
// prompts, which is an error in a non-interactive run.
func resolveConnectionName(ctx context.Context, client *broker.Client, name string, interactive bool) (string, error) {
	if name != "" {
		return name, nil
	}
	if !interactive {
		return "", fmt.Errorf("cannot prompt in non-interactive mode, specify --connection")
	}
	return selectConnection(ctx, client)
}

func selectConnection(ctx context.Context, client *broker.Client) (string, error) {
	conns, err := client.ListHostingConnections(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to enumerate hosting connections: %w", err)
	}
	if len(conns) == 0 {
		return "", fmt.Errorf("no hosting connections exist on this controller")
	}
	names := make([]string, 0, len(conns))
	for _, conn := range conns {
		names = append(names, conn.Name)
	}
	return action.SelectOne("Select the hosting connection to tear down:", names)
}

func newHistoryCommand(cfg *config.Configuration) *cobra.Command {
	var (
		runID string
		limit uint64
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List actions recorded in the local teardown journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Journal.Path == "" {
				return fmt.Errorf("no journal path configured")
			}
			journal, closeJournal, err := openJournal(cmd.Context(), cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer closeJournal()

			entries, err := journal.List(cmd.Context(), store.ByRunID(runID), store.WithLimit(limit))
			if err != nil {
				return err
			}
			printEntries(entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "show a single run")
	cmd.Flags().Uint64Var(&limit, "limit", 50, "maximum number of entries")
	return cmd
}

func openJournal(ctx context.Context, path string) (*store.JournalStore, func(), error) {
	if path == "" {
		return nil, nil, nil
	}
	db, err := store.NewDB(path)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.Run(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	st := store.NewStore(db)
	return st.Journal(), func() { st.Close() }, nil
}

func printEntries(entries []models.JournalEntry) {
	outcomeColor := map[models.Outcome]*color.Color{
		models.OutcomeExecuted: color.New(color.FgGreen),
		models.OutcomeSkipped:  color.New(color.FgYellow),
		models.OutcomeFailed:   color.New(color.FgRed),
	}
	for _, entry := range entries {
		c, ok := outcomeColor[entry.Outcome]
		if !ok {
			c = color.New(color.Reset)
		}
		fmt.Fprintf(os.Stdout, "%s  %s  %-28s %-40s %s",
			entry.CreatedAt.Format(time.RFC3339),
			entry.RunID,
			entry.Step,
			entry.Target,
			c.Sprint(entry.Outcome),
		)
		if entry.Error != "" {
			fmt.Fprintf(os.Stdout, "  (%s)", entry.Error)
		}
		fmt.Fprintln(os.Stdout)
	}
}
