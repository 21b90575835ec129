// Package installer implements the package lifecycle procedure: log setup,
// stale-artifact cleanup, silent install/uninstall of a single package and
// collection of the vendor's own log files.
package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/virtops/brokeradm/internal/config"
	"github.com/virtops/brokeradm/internal/util"
	srvErrors "github.com/virtops/brokeradm/pkg/errors"
)

// Mode selects between installing and uninstalling a package.
type Mode string

const (
	ModeInstall   Mode = "Install"
	ModeUninstall Mode = "Uninstall"
)

// ParseMode matches "uninstall" case-insensitively; anything else installs.
func ParseMode(s string) Mode {
	if strings.EqualFold(s, string(ModeUninstall)) {
		return ModeUninstall
	}
	return ModeInstall
}

// Package kinds recognized by extension.
const (
	kindMSI        = "MSI"
	kindExecutable = "SETUP"
)

const msiexec = "msiexec.exe"

// Installer runs the package lifecycle procedure. Every step's failure halts
// the whole run, except advisory exit codes which are logged and treated as
// success.
type Installer struct {
	cfg    config.Installer
	runner CommandRunner
	log    *zap.SugaredLogger
}

func New(cfg config.Installer, runner CommandRunner) *Installer {
	return &Installer{
		cfg:    cfg,
		runner: runner,
		log:    zap.S().Named("installer"),
	}
}

// Run executes the full procedure for one package: log setup, stale-artifact
// cleanup, installer launch with exit-code classification, then artifact
// collection. Extra arguments are appended after the mode defaults.
func (i *Installer) Run(ctx context.Context, packagePath string, mode Mode, extraArgs []string) error {
	packageName := util.BaseName(packagePath)
	logDir := filepath.Join(i.cfg.BaseLogDir, util.SanitizeName(packageName))
	logPath := filepath.Join(logDir, fmt.Sprintf("%s_%s.log", mode, packageName))

	runLog, err := NewLogWriter(logPath)
	if err != nil {
		return err
	}
	defer runLog.Close()

	runLog.Info("%s of package %q started", mode, packageName)
	runLog.Blank()

	i.cleanStaleArtifacts(runLog)

	if _, err := os.Stat(packagePath); err != nil {
		runLog.Error("package file %q does not exist", packagePath)
		return srvErrors.NewPackageNotFoundError(packagePath)
	}

	restore := disableZoneCheck()
	defer restore()

	kind := packageKind(packagePath)
	installerLog := filepath.Join(logDir, fmt.Sprintf("%s_%s_%s.log", mode, util.BaseName(packagePath), kind))
	command, args := buildCommand(packagePath, mode, kind, installerLog, extraArgs)

	runLog.Info("launching: %s %s", command, strings.Join(args, " "))
	code, err := i.runner.Run(ctx, command, args)
	if err != nil {
		runLog.Error("failed to launch installer: %v", err)
		return fmt.Errorf("failed to launch installer: %w", err)
	}

	class := classifyExitCode(code)
	runLog.write(class.Level, class.Message)
	i.log.Infow("installer finished", "package", packageName, "exitCode", code, "fatal", class.Fatal)
	if class.Fatal {
		if !class.Recognized {
			return srvErrors.NewUnknownExitCodeError(class.Code)
		}
		return srvErrors.NewInstallFailedError(class.Code, class.Message)
	}

	i.collectArtifacts(runLog, logDir)

	runLog.Blank()
	runLog.Success("%s of package %q finished", mode, packageName)
	return nil
}

// cleanStaleArtifacts deletes the known prior-run output directory when
// present.
func (i *Installer) cleanStaleArtifacts(runLog *LogWriter) {
	if i.cfg.StaleOutputDir == "" {
		return
	}
	if _, err := os.Stat(i.cfg.StaleOutputDir); err != nil {
		return
	}
	if err := os.RemoveAll(i.cfg.StaleOutputDir); err != nil {
		runLog.Warn("failed to delete stale output directory %q: %v", i.cfg.StaleOutputDir, err)
		return
	}
	runLog.Info("deleted stale output directory %q", i.cfg.StaleOutputDir)
}

// collectArtifacts copies vendor-produced log files into the run's log
// directory. Per-file failures are warnings.
func (i *Installer) collectArtifacts(runLog *LogWriter, logDir string) {
	if i.cfg.VendorLogDir == "" {
		return
	}
	entries, err := os.ReadDir(i.cfg.VendorLogDir)
	if err != nil {
		runLog.Warn("failed to read vendor log directory %q: %v", i.cfg.VendorLogDir, err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(i.cfg.VendorLogDir, entry.Name())
		dst := filepath.Join(logDir, entry.Name())
		if err := util.CopyFile(src, dst); err != nil {
			runLog.Warn("failed to collect %q: %v", src, err)
			continue
		}
		runLog.Info("collected vendor log %q", entry.Name())
	}
}

func packageKind(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".msi") {
		return kindMSI
	}
	return kindExecutable
}

// buildCommand assembles the installer invocation: msiexec for
// installer-database packages, the package itself for native executables.
// Caller-supplied arguments come after the defaults.
func buildCommand(packagePath string, mode Mode, kind, installerLog string, extraArgs []string) (string, []string) {
	var command string
	var args []string

	switch kind {
	case kindMSI:
		command = msiexec
		modeFlag := "/i"
		if mode == ModeUninstall {
			modeFlag = "/x"
		}
		args = []string{modeFlag, packagePath, "/qn", "/norestart", "/l*v", installerLog}
	default:
		command = packagePath
		args = []string{"/S"}
		if mode == ModeUninstall {
			args = append(args, "/uninstall")
		}
	}

	return command, append(args, extraArgs...)
}
