// Package rules evaluates engineering parameters against declarative limit
// definitions grouped by category.
package rules

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/DukeRupert/designaudit/internal/domain"
	"github.com/DukeRupert/designaudit/internal/metrics"
)

// EvalContext carries the design sub-type and the named values that
// parametric limits may reference.
type EvalContext struct {
	DesignType string
	Values     map[string]float64
}

func (ec *EvalContext) designType() string {
	if ec == nil {
		return ""
	}
	return ec.DesignType
}

// vars merges base values with the context values; context wins.
func (ec *EvalContext) vars(base map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(base))
	for k, v := range base {
		out[k] = v
	}
	if ec != nil {
		for k, v := range ec.Values {
			out[k] = v
		}
	}
	return out
}

type category struct {
	doc   domain.RuleCategory
	byID  map[string]int
	exprs map[string]*Expr
}

// Engine holds the loaded rule categories. Categories are replaced as a
// whole on Register or Reload, so readers always see a consistent set.
type Engine struct {
	mu         sync.RWMutex
	categories map[string]*category
	source     fs.FS
	logger     *slog.Logger
}

// NewEngine creates an engine that loads its rule documents from source.
// A nil source yields an empty engine populated through Register.
func NewEngine(source fs.FS, logger *slog.Logger) *Engine {
	return &Engine{
		categories: make(map[string]*category),
		source:     source,
		logger:     logger,
	}
}

// Reload reads every rule document from the source and atomically replaces
// the loaded categories. Malformed documents and categories are logged and
// skipped. Reloading unchanged documents yields the same rule set.
func (e *Engine) Reload() error {
	const op = "rules.reload"

	if e.source == nil {
		return domain.Errorf(domain.ECONFIG, op, "no rule source configured")
	}

	docs, err := NewLoader(e.source, e.logger).Load()
	if err != nil {
		return domain.Wrap(err, domain.ECONFIG, op, "failed to read rule documents")
	}

	next := make(map[string]*category, len(docs))
	for _, doc := range docs {
		cat, err := compileCategory(doc)
		if err != nil {
			e.logger.Warn("skipping rule category", "category", doc.Category, "error", err)
			metrics.RuleDocumentsRejected.WithLabelValues(doc.Category).Inc()
			continue
		}
		next[doc.Category] = cat
	}

	e.mu.Lock()
	e.categories = next
	e.mu.Unlock()

	for name, cat := range next {
		metrics.RulesLoaded.WithLabelValues(name).Set(float64(len(cat.doc.Rules)))
	}
	e.logger.Info("rules loaded", "categories", len(next))
	return nil
}

// Register adds or replaces one category.
func (e *Engine) Register(doc domain.RuleCategory) error {
	const op = "rules.register"

	cat, err := compileCategory(doc)
	if err != nil {
		return domain.Wrap(err, domain.ECONFIG, op, fmt.Sprintf("invalid rule category %q", doc.Category))
	}

	e.mu.Lock()
	e.categories[doc.Category] = cat
	e.mu.Unlock()

	metrics.RulesLoaded.WithLabelValues(doc.Category).Set(float64(len(doc.Rules)))
	return nil
}

func compileCategory(doc domain.RuleCategory) (*category, error) {
	if doc.Category == "" {
		return nil, errors.New("category name is required")
	}
	cat := &category{
		doc:   doc,
		byID:  make(map[string]int, len(doc.Rules)),
		exprs: make(map[string]*Expr),
	}
	for i, r := range doc.Rules {
		if r.ID == "" || r.Parameter == "" {
			return nil, fmt.Errorf("rule #%d: id and parameter are required", i+1)
		}
		if _, dup := cat.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate rule id %q", r.ID)
		}
		cat.byID[r.ID] = i

		limits := []*domain.Limit{r.Min, r.Max, r.RecommendedMin, r.RecommendedMax, r.Recommended}
		for _, o := range r.TypeSpecific {
			limits = append(limits, o.Min, o.Max, o.RecommendedMin, o.RecommendedMax, o.Recommended)
		}
		for _, l := range limits {
			if !l.IsExpr() {
				continue
			}
			if _, ok := cat.exprs[l.Expr]; ok {
				continue
			}
			x, err := ParseExpr(l.Expr)
			if err != nil {
				return nil, fmt.Errorf("rule %q: limit %q: %w", r.ID, l.Expr, err)
			}
			cat.exprs[l.Expr] = x
		}
	}
	return cat, nil
}

func (e *Engine) category(name string) *category {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.categories[name]
}

// Categories returns the loaded category names, sorted.
func (e *Engine) Categories() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.categories))
	for name := range e.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rules returns the definitions of a category in document order.
func (e *Engine) Rules(categoryName string) ([]domain.RuleDefinition, bool) {
	cat := e.category(categoryName)
	if cat == nil {
		return nil, false
	}
	out := make([]domain.RuleDefinition, len(cat.doc.Rules))
	copy(out, cat.doc.Rules)
	return out, true
}

// Snapshot returns the applied-rules record of a category.
func (e *Engine) Snapshot(categoryName string) (domain.RuleSnapshot, bool) {
	cat := e.category(categoryName)
	if cat == nil {
		return domain.RuleSnapshot{}, false
	}
	rules := make([]domain.RuleDefinition, len(cat.doc.Rules))
	copy(rules, cat.doc.Rules)
	return domain.RuleSnapshot{
		Category: cat.doc.Category,
		Version:  cat.doc.Version,
		Rules:    rules,
	}, true
}

// =============================================================================
// Evaluation
// =============================================================================

// ValidateParameter evaluates value against one rule. Lookup failures and
// unresolvable limits produce a skip result, never an error.
func (e *Engine) ValidateParameter(categoryName, ruleID string, value float64, ec *EvalContext) domain.RuleResult {
	cat := e.category(categoryName)
	if cat == nil {
		return e.record(skipResult(categoryName, ruleID, value,
			fmt.Sprintf("rule category %q is not loaded", categoryName)))
	}
	idx, ok := cat.byID[ruleID]
	if !ok {
		return e.record(skipResult(categoryName, ruleID, value,
			fmt.Sprintf("rule %q not found in category %q", ruleID, categoryName)))
	}
	return e.record(cat.evaluate(categoryName, cat.doc.Rules[idx], value, ec.vars(nil), ec.designType()))
}

// ValidateAll evaluates every rule of the category whose parameter is present
// in params, in rule-definition order. Rules without a matching input are not
// reported. Numeric inputs are also available to parametric limits.
func (e *Engine) ValidateAll(categoryName string, params domain.Params, ec *EvalContext) []domain.RuleResult {
	cat := e.category(categoryName)
	if cat == nil {
		e.logger.Warn("validate all on unknown category", "category", categoryName)
		return nil
	}
	vars := ec.vars(params.Numbers())

	var results []domain.RuleResult
	for _, rule := range cat.doc.Rules {
		pv, present := params[rule.Parameter]
		if !present {
			continue
		}
		n, ok := pv.AsNumber()
		if !ok {
			r := skipResult(categoryName, rule.ID, 0,
				fmt.Sprintf("parameter %q is not numeric (%s)", rule.Parameter, pv.Kind()))
			r.Parameter = rule.Parameter
			r.Standard = rule.Standard
			results = append(results, e.record(r))
			continue
		}
		results = append(results, e.record(cat.evaluate(categoryName, rule, n, vars, ec.designType())))
	}
	return results
}

// AutoAdjust clamps every numeric input covered by a rule of the category to
// that rule's hard limits. Accepted values are untouched and no results are
// produced. Rules whose limits cannot be resolved are ignored.
func (e *Engine) AutoAdjust(categoryName string, params domain.Params, ec *EvalContext) domain.Params {
	out := params.Clone()
	cat := e.category(categoryName)
	if cat == nil {
		return out
	}
	for _, def := range cat.doc.Rules {
		pv, present := out[def.Parameter]
		if !present {
			continue
		}
		n, ok := pv.AsNumber()
		if !ok {
			continue
		}
		rule := def.ForDesignType(ec.designType())
		vars := ec.vars(out.Numbers())
		lo, errLo := cat.resolve(rule.Min, vars)
		hi, errHi := cat.resolve(rule.Max, vars)
		if errLo != nil || errHi != nil {
			continue
		}
		switch {
		case lo != nil && n < *lo:
			out[def.Parameter] = domain.NumberValue(*lo)
		case hi != nil && n > *hi:
			out[def.Parameter] = domain.NumberValue(*hi)
		}
	}
	return out
}

// GetRecommendations returns the recommended value per parameter of the
// category, specialised for designType when the rule has a type-specific
// override. Rules without a resolvable recommendation are omitted.
func (e *Engine) GetRecommendations(categoryName, designType string) map[string]float64 {
	out := make(map[string]float64)
	cat := e.category(categoryName)
	if cat == nil {
		return out
	}
	for _, def := range cat.doc.Rules {
		rule := def.ForDesignType(designType)
		if rule.Recommended == nil {
			continue
		}
		if _, seen := out[rule.Parameter]; seen {
			continue
		}
		v, err := cat.resolve(rule.Recommended, nil)
		if err != nil || v == nil {
			continue
		}
		out[rule.Parameter] = *v
	}
	return out
}

func (e *Engine) record(r domain.RuleResult) domain.RuleResult {
	metrics.RuleEvaluationsTotal.WithLabelValues(r.Category, string(r.Status)).Inc()
	if r.Status == domain.RuleStatusSkip {
		e.logger.Debug("rule skipped", "category", r.Category, "rule_id", r.RuleID, "reason", r.Message)
	}
	return r
}

// resolve returns nil for an absent limit.
func (c *category) resolve(l *domain.Limit, vars map[string]float64) (*float64, error) {
	if l == nil {
		return nil, nil
	}
	if !l.IsExpr() {
		n := l.Number
		return &n, nil
	}
	x, ok := c.exprs[l.Expr]
	if !ok {
		var err error
		if x, err = ParseExpr(l.Expr); err != nil {
			return nil, err
		}
	}
	v, err := x.Eval(vars)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// evaluate applies the fixed order: min, max, recommended min,
// recommended max, pass. Each bound is resolved only when its turn comes, so
// an unresolvable soft limit never hides a hard-limit failure.
func (c *category) evaluate(categoryName string, def domain.RuleDefinition, value float64, vars map[string]float64, designType string) domain.RuleResult {
	rule := def.ForDesignType(designType)

	r := domain.RuleResult{
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Category:  categoryName,
		Parameter: rule.Parameter,
		Value:     value,
		Unit:      rule.Unit,
		Standard:  rule.Standard,
		Clause:    rule.Clause,
	}

	p := rule.Parameter
	val := formatQuantity(value, rule.Unit)

	if math.IsNaN(value) || math.IsInf(value, 0) {
		r.Status, r.Severity = domain.RuleStatusFail, rule.FailSeverity()
		r.Message = withDetail(rule.FailMessage, fmt.Sprintf("%s = %s is not a finite number", p, val))
		r.Suggestion = fmt.Sprintf("Provide a finite value for %s", p)
		return r
	}

	checks := []struct {
		kind  string
		limit *domain.Limit
		// violated reports whether value lies outside lim.
		violated func(lim float64) bool
	}{
		{domain.LimitTypeMin, rule.Min, func(lim float64) bool { return value < lim }},
		{domain.LimitTypeMax, rule.Max, func(lim float64) bool { return value > lim }},
		{domain.LimitTypeRecommendedMin, rule.RecommendedMin, func(lim float64) bool { return value < lim }},
		{domain.LimitTypeRecommendedMax, rule.RecommendedMax, func(lim float64) bool { return value > lim }},
	}
	for _, chk := range checks {
		bound, err := c.resolve(chk.limit, vars)
		if err != nil {
			r.Status, r.Severity = domain.RuleStatusSkip, domain.SeverityInfo
			r.Message = fmt.Sprintf("%s limit %q of rule %q could not be resolved: %v", chk.kind, chk.limit.Expr, rule.ID, err)
			return r
		}
		if bound == nil || !chk.violated(*bound) {
			continue
		}

		lim := *bound
		limStr := formatQuantity(lim, rule.Unit)
		r.LimitType, r.Limit = chk.kind, &lim
		switch chk.kind {
		case domain.LimitTypeMin:
			r.Status, r.Severity = domain.RuleStatusFail, rule.FailSeverity()
			r.Message = withDetail(rule.FailMessage, fmt.Sprintf("%s = %s is below the minimum %s", p, val, limStr))
			r.Suggestion = fmt.Sprintf("Increase %s to at least %s", p, limStr)
		case domain.LimitTypeMax:
			r.Status, r.Severity = domain.RuleStatusFail, rule.FailSeverity()
			r.Message = withDetail(rule.FailMessage, fmt.Sprintf("%s = %s exceeds the maximum %s", p, val, limStr))
			r.Suggestion = fmt.Sprintf("Reduce %s to at most %s", p, limStr)
		case domain.LimitTypeRecommendedMin:
			r.Status, r.Severity = domain.RuleStatusWarning, domain.SeverityWarning
			r.Message = withDetail(rule.WarningMessage, fmt.Sprintf("%s = %s is below the recommended minimum %s", p, val, limStr))
			r.Suggestion = fmt.Sprintf("Consider increasing %s to at least %s", p, limStr)
		case domain.LimitTypeRecommendedMax:
			r.Status, r.Severity = domain.RuleStatusWarning, domain.SeverityWarning
			r.Message = withDetail(rule.WarningMessage, fmt.Sprintf("%s = %s is above the recommended maximum %s", p, val, limStr))
			r.Suggestion = fmt.Sprintf("Consider reducing %s to at most %s", p, limStr)
		}
		return r
	}

	r.Status = domain.RuleStatusPass
	r.Message = withDetail(rule.PassMessage, fmt.Sprintf("%s = %s is within limits", p, val))
	return r
}

func skipResult(categoryName, ruleID string, value float64, msg string) domain.RuleResult {
	return domain.RuleResult{
		RuleID:   ruleID,
		Category: categoryName,
		Value:    value,
		Status:   domain.RuleStatusSkip,
		Severity: domain.SeverityInfo,
		Message:  msg,
	}
}

func withDetail(msg, detail string) string {
	if msg == "" {
		return detail
	}
	return msg + " (" + detail + ")"
}

func formatQuantity(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if unit == "" || unit == "-" {
		return s
	}
	return s + " " + unit
}
