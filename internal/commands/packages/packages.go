// Package packages implements `brokeradm package install|uninstall`: silent
// install or uninstall of a single package with an exit-code lookup table
// and per-run log collection.
package packages

import (
	"github.com/spf13/cobra"

	"github.com/virtops/brokeradm/internal/config"
	"github.com/virtops/brokeradm/internal/installer"
)

func NewCommand(cfg *config.Configuration) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "package",
		Short: "Install or uninstall a single application package",
	}
	cmd.AddCommand(newModeCommand(cfg, "install"))
	cmd.AddCommand(newModeCommand(cfg, "uninstall"))
	return cmd
}

func newModeCommand(cfg *config.Configuration, name string) *cobra.Command {
	var extraArgs []string

	mode := installer.ParseMode(name)
	short := "Silently install a package and log the result"
	if mode == installer.ModeUninstall {
		short = "Silently uninstall a package and log the result"
	}

	cmd := &cobra.Command{
		Use:   name + " <package-file>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst := installer.New(cfg.Installer, installer.ExecRunner{})
			return inst.Run(cmd.Context(), args[0], mode, extraArgs)
		},
	}
	cmd.Flags().StringArrayVar(&extraArgs, "installer-arg", nil,
		"extra argument passed to the installer after the defaults (repeatable)")
	return cmd
}
