// Package commands wires the brokeradm command tree.
package commands

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/virtops/brokeradm/internal/commands/connection"
	"github.com/virtops/brokeradm/internal/commands/packages"
	"github.com/virtops/brokeradm/internal/config"
)

// NewRootCommand builds the brokeradm root command. Configuration is loaded
// in the persistent pre-run so every subcommand sees the same resolved
// values.
func NewRootCommand(version string) *cobra.Command {
	var configFile string
	cfg := &config.Configuration{}

	root := &cobra.Command{
		Use:           "brokeradm",
		Short:         "Administrative procedures for the virtualization broker",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configFile)
			if err != nil {
				return err
			}
			*cfg = *loaded
			return setupLogging(cfg)
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a configuration file")

	root.AddCommand(packages.NewCommand(cfg))
	root.AddCommand(connection.NewCommand(cfg))
	return root
}

func setupLogging(cfg *config.Configuration) error {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	var zapCfg zap.Config
	if cfg.LogFormat == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		log.Printf("failed to initialize logger: %v", err)
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}
