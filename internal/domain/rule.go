// Package domain contains core business types and interfaces.
//
// This file defines rule definitions loaded from category documents and the
// results produced by evaluating a parameter against them.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// Limit
// =============================================================================

// Limit is a rule bound: either a literal number or an arithmetic expression
// over named values of the evaluation context (e.g. "${flow_rate} * 1.5").
type Limit struct {
	Number float64
	Expr   string
}

// NumberLimit returns a literal limit.
func NumberLimit(n float64) *Limit { return &Limit{Number: n} }

// ExprLimit returns a parametric limit.
func ExprLimit(expr string) *Limit { return &Limit{Expr: expr} }

// IsExpr reports whether the limit must be evaluated against a context.
func (l *Limit) IsExpr() bool { return l != nil && l.Expr != "" }

func (l *Limit) String() string {
	if l == nil {
		return ""
	}
	if l.IsExpr() {
		return l.Expr
	}
	return strconv.FormatFloat(l.Number, 'f', -1, 64)
}

// MarshalJSON encodes a literal as a number and an expression as a string.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.Expr != "" {
		return json.Marshal(l.Expr)
	}
	return json.Marshal(l.Number)
}

// UnmarshalJSON accepts a number, a numeric string or an expression string.
func (l *Limit) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*l = Limit{Number: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("limit must be a number or an expression: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("limit expression is empty")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*l = Limit{Number: f}
		return nil
	}
	*l = Limit{Expr: s}
	return nil
}

// =============================================================================
// Rule Definition
// =============================================================================

// LimitOverride replaces limits of a rule for one design sub-type.
type LimitOverride struct {
	Min            *Limit `json:"min,omitempty"`
	Max            *Limit `json:"max,omitempty"`
	RecommendedMin *Limit `json:"recommended_min,omitempty"`
	RecommendedMax *Limit `json:"recommended_max,omitempty"`
	Recommended    *Limit `json:"recommended,omitempty"`
}

// RuleDefinition is one parameter limit from a category document.
// Definitions are immutable once loaded.
type RuleDefinition struct {
	ID             string                   `json:"id"`
	Name           string                   `json:"name,omitempty"`
	Parameter      string                   `json:"parameter"`
	Unit           string                   `json:"unit,omitempty"`
	Min            *Limit                   `json:"min,omitempty"`
	Max            *Limit                   `json:"max,omitempty"`
	RecommendedMin *Limit                   `json:"recommended_min,omitempty"`
	RecommendedMax *Limit                   `json:"recommended_max,omitempty"`
	Recommended    *Limit                   `json:"recommended,omitempty"`
	Severity       Severity                 `json:"severity,omitempty"`
	PassMessage    string                   `json:"pass_message,omitempty"`
	WarningMessage string                   `json:"warning_message,omitempty"`
	FailMessage    string                   `json:"fail_message,omitempty"`
	Standard       string                   `json:"standard"`
	Clause         string                   `json:"clause,omitempty"`
	TypeSpecific   map[string]LimitOverride `json:"type_specific,omitempty"`
}

// FailSeverity returns the severity a FAIL of this rule produces.
func (r RuleDefinition) FailSeverity() Severity {
	if r.Severity.IsValid() {
		return r.Severity
	}
	return SeverityMajor
}

// ForDesignType returns a copy of the rule with the limits of the given
// design sub-type applied. Unknown or empty types return the rule unchanged.
func (r RuleDefinition) ForDesignType(designType string) RuleDefinition {
	if designType == "" {
		return r
	}
	o, ok := r.TypeSpecific[designType]
	if !ok {
		return r
	}
	if o.Min != nil {
		r.Min = o.Min
	}
	if o.Max != nil {
		r.Max = o.Max
	}
	if o.RecommendedMin != nil {
		r.RecommendedMin = o.RecommendedMin
	}
	if o.RecommendedMax != nil {
		r.RecommendedMax = o.RecommendedMax
	}
	if o.Recommended != nil {
		r.Recommended = o.Recommended
	}
	return r
}

// RuleCategory is a versioned document of rule definitions.
type RuleCategory struct {
	Category    string           `json:"category"`
	Version     string           `json:"version"`
	Description string           `json:"description,omitempty"`
	Rules       []RuleDefinition `json:"rules"`
}

// =============================================================================
// Rule Result
// =============================================================================

// RuleStatus is the verdict of evaluating one parameter.
type RuleStatus string

const (
	RuleStatusPass    RuleStatus = "pass"
	RuleStatusWarning RuleStatus = "warning"
	RuleStatusFail    RuleStatus = "fail"
	// RuleStatusSkip means the rule could not be evaluated (unknown rule,
	// missing category, unresolvable limit).
	RuleStatusSkip RuleStatus = "skip"
)

// Limit types reported in RuleResult.LimitType.
const (
	LimitTypeMin            = "min"
	LimitTypeMax            = "max"
	LimitTypeRecommendedMin = "recommended_min"
	LimitTypeRecommendedMax = "recommended_max"
)

// RuleResult is the outcome of evaluating one value against one rule.
type RuleResult struct {
	RuleID     string     `json:"ruleId"`
	RuleName   string     `json:"ruleName,omitempty"`
	Category   string     `json:"category"`
	Parameter  string     `json:"parameter"`
	Value      float64    `json:"value"`
	Unit       string     `json:"unit,omitempty"`
	Status     RuleStatus `json:"status"`
	Message    string     `json:"message"`
	Suggestion string     `json:"suggestion,omitempty"`
	Standard   string     `json:"standard,omitempty"`
	Clause     string     `json:"clause,omitempty"`
	LimitType  string     `json:"limitType,omitempty"`
	Limit      *float64   `json:"limit,omitempty"`
	// Severity is the severity a violation built from this result carries.
	// Zero for PASS.
	Severity Severity `json:"severity,omitempty"`
}

// Passed reports whether the result needs no violation.
func (r RuleResult) Passed() bool {
	return r.Status == RuleStatusPass
}
