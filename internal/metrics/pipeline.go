package metrics

import "time"

// CalculationFinished records a finished calculation and its duration.
func CalculationFinished(calcType, outcome string, duration time.Duration) {
	CalculationsTotal.WithLabelValues(calcType, outcome).Inc()
	CalculationDuration.WithLabelValues(calcType).Observe(duration.Seconds())
}

// ViolationRecorded counts a violation by severity
func ViolationRecorded(severity string) {
	ViolationsDetected.WithLabelValues(severity).Inc()
}

// OverrideHandled records the result of an override request
func OverrideHandled(accepted bool) {
	if accepted {
		OverrideRequests.WithLabelValues("accepted").Inc()
		return
	}
	OverrideRequests.WithLabelValues("rejected").Inc()
}

// ExportDecided records an export gate evaluation
func ExportDecided(canExport bool) {
	ExportDecisions.WithLabelValues(BoolDecision(canExport)).Inc()
}

// VersionCreated records a created version. Origin is "create" or "rollback".
func VersionCreated(origin string) {
	VersionsCreated.WithLabelValues(origin).Inc()
}
