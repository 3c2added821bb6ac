// Package domain contains core business types and interfaces.
//
// This file defines design versions, the immutable snapshots of one design
// iteration, and the diff types used to compare them.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Design Version
// =============================================================================

// OutputFile references an artifact produced for a version.
type OutputFile struct {
	Kind string `json:"kind"`
	Key  string `json:"key"`
	URL  string `json:"url,omitempty"`
}

// OutputMetadata describes the outputs of a version. Extra holds scalar output
// values that take part in version comparison.
type OutputMetadata struct {
	Files []OutputFile `json:"files,omitempty"`
	Extra Params       `json:"extra,omitempty"`
}

// RuleSnapshot records the rules of one category applied to a version.
type RuleSnapshot struct {
	Category string           `json:"category"`
	Version  string           `json:"version"`
	Rules    []RuleDefinition `json:"rules"`
}

// DesignVersion is an immutable snapshot of one design iteration. Only the
// approval fields and IsCurrent change after creation.
type DesignVersion struct {
	ID                     uuid.UUID       `json:"versionId"`
	ProjectID              string          `json:"projectId"`
	VersionNumber          int             `json:"versionNumber"`
	VersionTag             string          `json:"versionTag"`
	Description            string          `json:"description"`
	InputSnapshot          Params          `json:"inputSnapshot"`
	RuleSnapshot           []RuleSnapshot  `json:"ruleSnapshot"`
	CalculationLogSnapshot *CalculationLog `json:"calculationLogSnapshot,omitempty"`
	OutputMetadata         OutputMetadata  `json:"outputMetadata"`
	ContentHash            string          `json:"contentHash"`
	CreatedBy              string          `json:"createdBy"`
	CreatedAt              time.Time       `json:"createdAt"`
	IsCurrent              bool            `json:"isCurrent"`
	IsApproved             bool            `json:"isApproved"`
	ApprovedBy             string          `json:"approvedBy,omitempty"`
	ApprovedAt             *time.Time      `json:"approvedAt,omitempty"`
	HasOverrides           bool            `json:"hasOverrides"`
	OverrideReasons        []string        `json:"overrideReasons"`
	RolledBackFrom         *uuid.UUID      `json:"rolledBackFrom,omitempty"`
}

// VersionSummary is the list view of a version.
type VersionSummary struct {
	ID            uuid.UUID `json:"versionId"`
	VersionNumber int       `json:"versionNumber"`
	VersionTag    string    `json:"versionTag"`
	Description   string    `json:"description"`
	ContentHash   string    `json:"contentHash"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
	IsCurrent     bool      `json:"isCurrent"`
	IsApproved    bool      `json:"isApproved"`
	HasOverrides  bool      `json:"hasOverrides"`
}

// Summary returns the list view of the version.
func (v *DesignVersion) Summary() VersionSummary {
	return VersionSummary{
		ID:            v.ID,
		VersionNumber: v.VersionNumber,
		VersionTag:    v.VersionTag,
		Description:   v.Description,
		ContentHash:   v.ContentHash,
		CreatedBy:     v.CreatedBy,
		CreatedAt:     v.CreatedAt,
		IsCurrent:     v.IsCurrent,
		IsApproved:    v.IsApproved,
		HasOverrides:  v.HasOverrides,
	}
}

// =============================================================================
// Diff
// =============================================================================

// ChangeKind classifies a field change.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// FieldChange describes one differing field. Nested record fields are named
// with dotted paths ("outputs.volume").
type FieldChange struct {
	Field         string     `json:"field"`
	Kind          ChangeKind `json:"kind"`
	OldValue      *Value     `json:"oldValue,omitempty"`
	NewValue      *Value     `json:"newValue,omitempty"`
	PercentChange *float64   `json:"percentChange,omitempty"`
	// Discontinuity is set for numeric changes away from zero, where no
	// percentage exists.
	Discontinuity bool `json:"discontinuity,omitempty"`
}

// VersionDiff is the field-level comparison of two versions.
type VersionDiff struct {
	FromVersionID    uuid.UUID     `json:"fromVersionId"`
	ToVersionID      uuid.UUID     `json:"toVersionId"`
	ElementsAdded    int           `json:"elementsAdded"`
	ElementsModified int           `json:"elementsModified"`
	ElementsRemoved  int           `json:"elementsRemoved"`
	FieldChanges     []FieldChange `json:"fieldChanges"`
}

// StepChange describes a calculation step whose presence or result differs.
type StepChange struct {
	Name      string     `json:"name"`
	Kind      ChangeKind `json:"kind"`
	OldResult *Value     `json:"oldResult,omitempty"`
	NewResult *Value     `json:"newResult,omitempty"`
}

// CalculationDiff compares the calculation logs of two versions by step name.
type CalculationDiff struct {
	StepsAdded     []string     `json:"stepsAdded"`
	StepsRemoved   []string     `json:"stepsRemoved"`
	ResultsChanged []StepChange `json:"resultsChanged"`
}

// DiffSummary totals a diff report.
type DiffSummary struct {
	TotalChanges       int `json:"totalChanges"`
	InputChanges       int `json:"inputChanges"`
	OutputChanges      int `json:"outputChanges"`
	CalculationChanges int `json:"calculationChanges"`
}

// DiffReport is the full comparison report between two versions.
type DiffReport struct {
	From        VersionSummary  `json:"from"`
	To          VersionSummary  `json:"to"`
	Summary     DiffSummary     `json:"summary"`
	Diff        VersionDiff     `json:"diff"`
	Calculation CalculationDiff `json:"calculation"`
	GeneratedAt time.Time       `json:"generatedAt"`
}
