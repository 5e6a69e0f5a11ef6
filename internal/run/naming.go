package run

import (
	"fmt"
	"time"
)

// defaultRunName mints a human-readable name from the agent-reported
// program name and the moment the run opened. Uniqueness against every
// other known run name is enforced separately by uniqueNameLocked.
func defaultRunName(programName string) string {
	if programName == "" {
		programName = "run"
	}
	return fmt.Sprintf("%s-%s", programName, time.Now().UTC().Format("20060102-150405"))
}
