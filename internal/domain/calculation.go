// Package domain contains core business types and interfaces.
//
// This file defines the calculation log produced by a traceable calculation:
// its ordered steps, the violations detected while it ran and the override
// records attached to them.
package domain

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Calculation Step
// =============================================================================

// StepStatus is the outcome of one calculation step.
type StepStatus string

const (
	StepStatusOK      StepStatus = "ok"
	StepStatusWarning StepStatus = "warning"
	StepStatusError   StepStatus = "error"
)

// CalculationStep is one recorded step of a calculation. Steps are
// append-only and never mutated after they are recorded.
type CalculationStep struct {
	StepID          string     `json:"stepId"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	FormulaText     string     `json:"formulaText"`
	FormulaDisplay  string     `json:"formulaDisplay,omitempty"`
	Reference       string     `json:"reference,omitempty"`
	Inputs          Params     `json:"inputs"`
	Result          Value      `json:"result"`
	ResultFormatted string     `json:"resultFormatted"`
	Unit            string     `json:"unit,omitempty"`
	Status          StepStatus `json:"status"`
	Warnings        []string   `json:"warnings"`
}

// =============================================================================
// Violation
// =============================================================================

// ErrAlreadyOverridden is returned when a violation is overridden twice.
var ErrAlreadyOverridden = errors.New("violation has already been overridden")

// Violation is a non-passing rule result recorded in a calculation log.
type Violation struct {
	ID             uuid.UUID       `json:"violationId"`
	RuleID         string          `json:"ruleId"`
	Parameter      string          `json:"parameter"`
	Value          float64         `json:"value"`
	Severity       Severity        `json:"severity"`
	Message        string          `json:"message"`
	Suggestion     string          `json:"suggestion,omitempty"`
	Standard       string          `json:"standard"`
	Clause         string          `json:"clause,omitempty"`
	StepID         string          `json:"stepId,omitempty"`
	IsOverridden   bool            `json:"isOverridden"`
	OverrideRecord *OverrideRecord `json:"overrideRecord,omitempty"`
}

// Blocking reports whether the violation currently prevents export.
func (v *Violation) Blocking() bool {
	return v.Severity.Blocks() && !v.IsOverridden
}

// Override performs the single DETECTED -> OVERRIDDEN transition.
func (v *Violation) Override(rec OverrideRecord) error {
	if v.IsOverridden {
		return ErrAlreadyOverridden
	}
	v.IsOverridden = true
	v.OverrideRecord = &rec
	return nil
}

// OverrideRecord is the audit trail of an accepted override. Immutable.
type OverrideRecord struct {
	ID            uuid.UUID `json:"overrideId"`
	ViolationID   uuid.UUID `json:"violationId"`
	Parameter     string    `json:"parameter"`
	Severity      Severity  `json:"severity"`
	Reason        string    `json:"reason"`
	EngineerID    string    `json:"engineerId"`
	EngineerName  string    `json:"engineerName"`
	ReferenceDoc  string    `json:"referenceDoc,omitempty"`
	ApprovalLevel string    `json:"approvalLevel"`
	Timestamp     time.Time `json:"timestamp"`
}

// =============================================================================
// Calculation Log
// =============================================================================

// CalculationLog is the full transcript of one calculation. It is owned by a
// single design job and published only once the calculation finished.
type CalculationLog struct {
	ID                uuid.UUID         `json:"logId"`
	CalculationType   string            `json:"calculationType"`
	Category          string            `json:"category,omitempty"`
	DesignType        string            `json:"designType,omitempty"`
	Description       string            `json:"description,omitempty"`
	Inputs            Params            `json:"inputs,omitempty"`
	Steps             []CalculationStep `json:"steps"`
	Violations        []Violation       `json:"violations"`
	StandardsApplied  []string          `json:"standardsApplied"`
	FinalResults      Params            `json:"finalResults,omitempty"`
	Failed            bool              `json:"failed"`
	CalculationTimeMs float64           `json:"calculationTimeMs"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// FindViolation returns the violation with the given ID, or nil.
func (l *CalculationLog) FindViolation(id uuid.UUID) *Violation {
	for i := range l.Violations {
		if l.Violations[i].ID == id {
			return &l.Violations[i]
		}
	}
	return nil
}

// HasErrorSteps reports whether any step failed to compute.
func (l *CalculationLog) HasErrorSteps() bool {
	for _, s := range l.Steps {
		if s.Status == StepStatusError {
			return true
		}
	}
	return false
}

// BlockingViolations returns the violations that currently block export.
func (l *CalculationLog) BlockingViolations() []Violation {
	var out []Violation
	for _, v := range l.Violations {
		if v.Blocking() {
			out = append(out, v)
		}
	}
	return out
}

// HasOverrides reports whether any violation has been overridden.
func (l *CalculationLog) HasOverrides() bool {
	for _, v := range l.Violations {
		if v.IsOverridden {
			return true
		}
	}
	return false
}

// OverrideRecords returns every override record ordered by timestamp.
func (l *CalculationLog) OverrideRecords() []OverrideRecord {
	var out []OverrideRecord
	for _, v := range l.Violations {
		if v.OverrideRecord != nil {
			out = append(out, *v.OverrideRecord)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// OverrideReasons returns the justification of every override, in order.
func (l *CalculationLog) OverrideReasons() []string {
	records := l.OverrideRecords()
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Reason)
	}
	return out
}
