package domain

import "github.com/google/uuid"

// SafetyCheckResult is the export-gate verdict derived from a calculation log.
// It is never persisted.
type SafetyCheckResult struct {
	LogID                uuid.UUID        `json:"logId"`
	CanExport            bool             `json:"canExport"`
	TotalViolations      int              `json:"totalViolations"`
	CriticalCount        int              `json:"criticalCount"`
	MajorCount           int              `json:"majorCount"`
	MinorCount           int              `json:"minorCount"`
	InfoCount            int              `json:"infoCount"`
	OverriddenCount      int              `json:"overriddenCount"`
	PendingOverrideCount int              `json:"pendingOverrideCount"`
	HasErrorSteps        bool             `json:"hasErrorSteps"`
	Violations           []Violation      `json:"violations"`
	BlockReasons         []string         `json:"blockReasons"`
	OverrideRecords      []OverrideRecord `json:"overrideRecords"`
}

// OverrideRequest asks to override one violation of one calculation log.
type OverrideRequest struct {
	LogID        uuid.UUID `json:"logId"`
	ViolationID  uuid.UUID `json:"violationId"`
	Reason       string    `json:"reason"`
	EngineerID   string    `json:"engineerId"`
	EngineerName string    `json:"engineerName"`
	ReferenceDoc string    `json:"referenceDoc,omitempty"`
}

// OverrideResponse reports the outcome of an override request together with
// the export gate after it was applied.
type OverrideResponse struct {
	Success                     bool   `json:"success"`
	Message                     string `json:"message"`
	CanExportNow                bool   `json:"canExportNow"`
	RemainingBlockingViolations int    `json:"remainingBlockingViolations"`
}
