package installer

import "fmt"

// Installer exit codes with defined handling. Anything outside this table is
// fatal.
const (
	exitSuccess             = 0
	exitSuccessAdvisory     = 3
	exitFatalError          = 1603
	exitProductNotInstalled = 1605
	exitPackageOpenFailed   = 1619
	exitRebootRequired      = 3010
)

// exitClass is the interpreted meaning of one installer exit code. Recognized
// is false for codes outside the table.
type exitClass struct {
	Code       int
	Fatal      bool
	Recognized bool
	Level      string
	Message    string
}

func classifyExitCode(code int) exitClass {
	switch code {
	case exitSuccess, exitSuccessAdvisory:
		return exitClass{Code: code, Recognized: true, Level: levelSuccess,
			Message: fmt.Sprintf("installer finished successfully (exit code %d)", code)}
	case exitProductNotInstalled:
		return exitClass{Code: code, Recognized: true, Level: levelInfo,
			Message: "product is not installed on this machine (exit code 1605)"}
	case exitRebootRequired:
		return exitClass{Code: code, Recognized: true, Level: levelWarning,
			Message: "installer finished successfully but a reboot is required (exit code 3010)"}
	case exitFatalError:
		return exitClass{Code: code, Fatal: true, Recognized: true, Level: levelError,
			Message: "fatal error during installation (exit code 1603)"}
	case exitPackageOpenFailed:
		return exitClass{Code: code, Fatal: true, Recognized: true, Level: levelError,
			Message: "installation package could not be opened, verify that the package files exist (exit code 1619)"}
	default:
		return exitClass{Code: code, Fatal: true, Level: levelError,
			Message: fmt.Sprintf("installer returned unrecognized exit code %d", code)}
	}
}
