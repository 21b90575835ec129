package installer

import "os"

// seeMaskNoZoneChecks disables the download-origin security check while set.
const seeMaskNoZoneChecks = "SEE_MASK_NOZONECHECKS"

// disableZoneCheck sets the process-wide flag for the duration of the run.
// The returned restore function puts the previous value back and must run on
// every exit path.
func disableZoneCheck() (restore func()) {
	prev, had := os.LookupEnv(seeMaskNoZoneChecks)
	os.Setenv(seeMaskNoZoneChecks, "1")
	return func() {
		if had {
			os.Setenv(seeMaskNoZoneChecks, prev)
			return
		}
		os.Unsetenv(seeMaskNoZoneChecks)
	}
}
