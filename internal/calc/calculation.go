// Package calc executes named calculations while recording every step,
// validating intermediate values inline and collecting violations into a
// calculation log.
package calc

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/DukeRupert/designaudit/internal/domain"
	"github.com/DukeRupert/designaudit/internal/metrics"
	"github.com/DukeRupert/designaudit/internal/rules"
)

// RuleValidator evaluates values against rule definitions.
type RuleValidator interface {
	ValidateParameter(category, ruleID string, value float64, ec *rules.EvalContext) domain.RuleResult
	ValidateAll(category string, params domain.Params, ec *rules.EvalContext) []domain.RuleResult
}

// Options describe the calculation being run.
type Options struct {
	Category    string
	DesignType  string
	Description string
	Inputs      domain.Params
}

// Step describes one calculation step. Symbol, when set, makes the numeric
// result available to parametric rule limits of later checks.
type Step struct {
	Name           string
	Description    string
	Formula        string
	FormulaDisplay string
	Reference      string
	Unit           string
	Symbol         string
	Inputs         domain.Params
}

// Calculation records one calculation. It is not safe for concurrent use;
// each design job owns its own Calculation. The log becomes visible only
// through Finish.
type Calculation struct {
	validator RuleValidator
	logger    *slog.Logger
	printer   *message.Printer

	log       domain.CalculationLog
	values    map[string]float64
	standards map[string]struct{}
	start     time.Time
	failure   error
	finished  bool
}

// New starts a calculation of the given type.
func New(validator RuleValidator, calculationType string, opts Options, logger *slog.Logger) *Calculation {
	inputs := opts.Inputs.Clone()
	if inputs == nil {
		inputs = domain.Params{}
	}
	return &Calculation{
		validator: validator,
		logger:    logger.With("calculation_type", calculationType),
		printer:   message.NewPrinter(language.English),
		log: domain.CalculationLog{
			ID:              uuid.New(),
			CalculationType: calculationType,
			Category:        opts.Category,
			DesignType:      opts.DesignType,
			Description:     opts.Description,
			Inputs:          inputs,
			Steps:           []domain.CalculationStep{},
			Violations:      []domain.Violation{},
			FinalResults:    domain.Params{},
		},
		values:    inputs.Numbers(),
		standards: make(map[string]struct{}),
		start:     time.Now(),
	}
}

// ID returns the identifier the finished log will carry.
func (c *Calculation) ID() uuid.UUID { return c.log.ID }

// Failed reports whether a step failed to compute.
func (c *Calculation) Failed() bool { return c.failure != nil }

// Value returns a named numeric value of the evaluation context.
func (c *Calculation) Value(name string) (float64, bool) {
	v, ok := c.values[name]
	return v, ok
}

func (c *Calculation) mustBeOpen() {
	if c.finished {
		panic("calc: calculation " + c.log.ID.String() + " already finished")
	}
}

// AddStep records a computed step. The status is warning when warnings are
// supplied, ok otherwise.
func (c *Calculation) AddStep(def Step, result domain.Value, warnings ...string) domain.CalculationStep {
	c.mustBeOpen()

	status := domain.StepStatusOK
	if len(warnings) > 0 {
		status = domain.StepStatusWarning
	}
	step := c.newStep(def, status, warnings)
	step.Result = result
	step.ResultFormatted = c.format(result, def.Unit)

	if n, ok := result.AsNumber(); ok && def.Symbol != "" {
		c.values[def.Symbol] = n
	}
	if def.Reference != "" {
		c.standards[def.Reference] = struct{}{}
	}
	c.log.Steps = append(c.log.Steps, step)
	return step
}

// Compute runs fn as a step. When fn fails or yields a non-finite number the
// step is recorded with status error and the error text as its only warning,
// the calculation becomes non-exportable and a calculation-failed error is
// returned so the caller halts this branch.
func (c *Calculation) Compute(def Step, fn func() (float64, error)) (float64, error) {
	const op = "calc.compute"
	c.mustBeOpen()

	v, err := fn()
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = fmt.Errorf("%s produced a non-finite result", def.Name)
	}
	if err != nil {
		step := c.newStep(def, domain.StepStatusError, []string{err.Error()})
		step.ResultFormatted = "n/a"
		c.log.Steps = append(c.log.Steps, step)

		failure := domain.CalculationFailed(op, fmt.Sprintf("step %s (%s) failed: %v", step.StepID, def.Name, err))
		failure.Err = err
		if c.failure == nil {
			c.failure = failure
		}
		c.logger.Warn("calculation step failed", "step_id", step.StepID, "step", def.Name, "error", err)
		return 0, failure
	}

	c.AddStep(def, domain.NumberValue(v))
	return v, nil
}

func (c *Calculation) newStep(def Step, status domain.StepStatus, warnings []string) domain.CalculationStep {
	if warnings == nil {
		warnings = []string{}
	}
	return domain.CalculationStep{
		StepID:         fmt.Sprintf("S%02d", len(c.log.Steps)+1),
		Name:           def.Name,
		Description:    def.Description,
		FormulaText:    def.Formula,
		FormulaDisplay: def.FormulaDisplay,
		Reference:      def.Reference,
		Inputs:         def.Inputs.Clone(),
		Unit:           def.Unit,
		Status:         status,
		Warnings:       append([]string(nil), warnings...),
	}
}

func (c *Calculation) format(v domain.Value, unit string) string {
	n, ok := v.AsNumber()
	if !ok {
		return v.String()
	}
	s := c.printer.Sprintf("%.4f", n)
	if unit != "" && unit != "-" {
		s += " " + unit
	}
	return s
}

// =============================================================================
// Inline validation
// =============================================================================

func (c *Calculation) evalContext() *rules.EvalContext {
	values := make(map[string]float64, len(c.values))
	for k, v := range c.values {
		values[k] = v
	}
	return &rules.EvalContext{DesignType: c.log.DesignType, Values: values}
}

// Check validates value against one rule of the calculation's category.
// Non-passing results are recorded as violations.
func (c *Calculation) Check(ruleID string, value float64) domain.RuleResult {
	c.mustBeOpen()
	res := c.validator.ValidateParameter(c.log.Category, ruleID, value, c.evalContext())
	c.collect(res)
	return res
}

// CheckInputs validates every design input covered by the category.
func (c *Calculation) CheckInputs() []domain.RuleResult {
	c.mustBeOpen()
	results := c.validator.ValidateAll(c.log.Category, c.log.Inputs, c.evalContext())
	for _, res := range results {
		c.collect(res)
	}
	return results
}

func (c *Calculation) collect(res domain.RuleResult) {
	if res.Standard != "" {
		c.standards[res.Standard] = struct{}{}
	}
	if res.Passed() {
		return
	}

	severity := res.Severity
	if !severity.IsValid() {
		severity = domain.SeverityInfo
	}
	parameter := res.Parameter
	if parameter == "" {
		parameter = res.RuleID
	}
	var stepID string
	if n := len(c.log.Steps); n > 0 {
		stepID = c.log.Steps[n-1].StepID
	}

	c.log.Violations = append(c.log.Violations, domain.Violation{
		ID:         uuid.New(),
		RuleID:     res.RuleID,
		Parameter:  parameter,
		Value:      res.Value,
		Severity:   severity,
		Message:    res.Message,
		Suggestion: res.Suggestion,
		Standard:   res.Standard,
		Clause:     res.Clause,
		StepID:     stepID,
	})
	metrics.ViolationRecorded(severity.String())
}

// =============================================================================
// Results
// =============================================================================

// Set records a final result.
func (c *Calculation) Set(name string, v domain.Value) {
	c.mustBeOpen()
	c.log.FinalResults[name] = v
}

// Finish closes the calculation and returns its log. When a step failed the
// log is still returned, marked failed, together with the calculation-failed
// error. The Calculation must not be used afterwards.
func (c *Calculation) Finish() (*domain.CalculationLog, error) {
	c.mustBeOpen()
	c.finished = true

	elapsed := time.Since(c.start)
	c.log.CalculationTimeMs = float64(elapsed.Microseconds()) / 1000
	c.log.CreatedAt = time.Now().UTC()
	c.log.Failed = c.failure != nil

	standards := make([]string, 0, len(c.standards))
	for s := range c.standards {
		standards = append(standards, s)
	}
	sort.Strings(standards)
	c.log.StandardsApplied = standards

	log := c.log
	outcome := metrics.OutcomeExportable
	switch {
	case log.Failed:
		outcome = metrics.OutcomeFailed
	case len(log.BlockingViolations()) > 0:
		outcome = metrics.OutcomeBlocked
	}
	metrics.CalculationFinished(log.CalculationType, outcome, elapsed)

	c.logger.Info("calculation finished",
		"log_id", log.ID,
		"steps", len(log.Steps),
		"violations", len(log.Violations),
		"outcome", outcome,
	)
	return &log, c.failure
}
