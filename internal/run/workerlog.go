package run

import "strings"

// Worker log markers signalling a terminal outcome. The pipeline worker
// owns these strings; they are its only completion channel, so both
// backends derive run state from them.
const (
	markerFailure = "Error running sorter"
	markerSuccess = "Sorting job completed successfully!"
)

// LogsPlaceholder is reported while a backend has no log output for a run.
const LogsPlaceholder = "Logs not available yet for this job."

// StateFromWorkerLogs scans worker log output for the terminal markers.
// The failure marker wins when both appear.
func StateFromWorkerLogs(logs string) State {
	if strings.Contains(logs, markerFailure) {
		return StateFail
	}
	if strings.Contains(logs, markerSuccess) {
		return StateSuccess
	}
	return StateRunning
}
