// Package safety decides whether a calculated design may be exported and
// runs the audited override workflow for blocking violations.
package safety

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/DukeRupert/designaudit/internal/domain"
	"github.com/DukeRupert/designaudit/internal/metrics"
)

// DefaultMinReasonLength is the minimum override justification length,
// counted in characters after trimming.
const DefaultMinReasonLength = 50

const lockStripes = 64

// Layer is the single authority on export eligibility.
type Layer struct {
	minReasonLength int
	now             func() time.Time
	locks           [lockStripes]sync.Mutex
	logger          *slog.Logger
}

// Option configures a Layer.
type Option func(*Layer)

// WithMinReasonLength raises the minimum justification length. Values below
// DefaultMinReasonLength are ignored.
func WithMinReasonLength(n int) Option {
	return func(l *Layer) {
		l.minReasonLength = max(n, DefaultMinReasonLength)
	}
}

// WithClock sets the time source for override timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Layer) { l.now = now }
}

// NewLayer creates a safety layer.
func NewLayer(logger *slog.Logger, opts ...Option) *Layer {
	l := &Layer{
		minReasonLength: DefaultMinReasonLength,
		now:             time.Now,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MinReasonLength returns the configured minimum justification length.
func (l *Layer) MinReasonLength() int { return l.minReasonLength }

// lockFor serializes work on one calculation log.
func (l *Layer) lockFor(logID uuid.UUID) *sync.Mutex {
	return &l.locks[xxhash.Sum64(logID[:])%lockStripes]
}

// CheckCalculationLog derives the export-gate verdict from the current state
// of the log. Severity counts include overridden violations; only the
// blocking status changes on override.
func (l *Layer) CheckCalculationLog(log *domain.CalculationLog) domain.SafetyCheckResult {
	mu := l.lockFor(log.ID)
	mu.Lock()
	defer mu.Unlock()

	res := check(log)
	metrics.ExportDecided(res.CanExport)
	return res
}

func check(log *domain.CalculationLog) domain.SafetyCheckResult {
	res := domain.SafetyCheckResult{
		LogID:           log.ID,
		TotalViolations: len(log.Violations),
		HasErrorSteps:   log.HasErrorSteps() || log.Failed,
		Violations:      append([]domain.Violation(nil), log.Violations...),
		BlockReasons:    []string{},
		OverrideRecords: log.OverrideRecords(),
	}
	if res.OverrideRecords == nil {
		res.OverrideRecords = []domain.OverrideRecord{}
	}
	if res.Violations == nil {
		res.Violations = []domain.Violation{}
	}

	for _, v := range log.Violations {
		switch v.Severity {
		case domain.SeverityCritical:
			res.CriticalCount++
		case domain.SeverityMajor:
			res.MajorCount++
		case domain.SeverityWarning:
			res.MinorCount++
		default:
			res.InfoCount++
		}
		if v.IsOverridden {
			res.OverriddenCount++
			continue
		}
		if v.Severity.Blocks() {
			res.PendingOverrideCount++
			res.BlockReasons = append(res.BlockReasons, v.Message)
		}
	}
	if res.HasErrorSteps {
		res.BlockReasons = append(res.BlockReasons, "calculation contains steps that failed to compute")
	}
	res.CanExport = res.PendingOverrideCount == 0 && !res.HasErrorSteps
	return res
}

// RequestOverride applies an audited override to one violation of the log.
// Precondition failures are reported as (false, reason). Requests against
// the same log are serialized: the first caller wins and later callers see
// the violation as already overridden.
func (l *Layer) RequestOverride(log *domain.CalculationLog, req domain.OverrideRequest) (bool, string) {
	if log == nil {
		panic("safety: RequestOverride called with nil calculation log")
	}

	mu := l.lockFor(log.ID)
	mu.Lock()
	defer mu.Unlock()

	ok, msg := l.applyOverride(log, req)
	metrics.OverrideHandled(ok)
	if ok {
		l.logger.Info("violation overridden",
			"log_id", log.ID,
			"violation_id", req.ViolationID,
			"engineer_id", req.EngineerID,
		)
	} else {
		l.logger.Info("override rejected",
			"log_id", log.ID,
			"violation_id", req.ViolationID,
			"reason", msg,
		)
	}
	return ok, msg
}

func (l *Layer) applyOverride(log *domain.CalculationLog, req domain.OverrideRequest) (bool, string) {
	v := log.FindViolation(req.ViolationID)
	if v == nil {
		return false, fmt.Sprintf("violation %s not found in calculation log %s", req.ViolationID, log.ID)
	}
	if v.IsOverridden {
		return false, fmt.Sprintf("violation %s has already been overridden", req.ViolationID)
	}

	reason := strings.TrimSpace(req.Reason)
	if n := utf8.RuneCountInString(reason); n < l.minReasonLength {
		return false, fmt.Sprintf("override reason must be at least %d characters (got %d)", l.minReasonLength, n)
	}
	if strings.TrimSpace(req.EngineerID) == "" || strings.TrimSpace(req.EngineerName) == "" {
		return false, "engineer id and name are required"
	}

	rec := domain.OverrideRecord{
		ID:            uuid.New(),
		ViolationID:   v.ID,
		Parameter:     v.Parameter,
		Severity:      v.Severity,
		Reason:        reason,
		EngineerID:    strings.TrimSpace(req.EngineerID),
		EngineerName:  strings.TrimSpace(req.EngineerName),
		ReferenceDoc:  strings.TrimSpace(req.ReferenceDoc),
		ApprovalLevel: v.Severity.ApprovalLevel(),
		Timestamp:     l.now().UTC(),
	}
	if err := v.Override(rec); err != nil {
		return false, err.Error()
	}
	return true, fmt.Sprintf("violation %s (%s) overridden by %s, requires %s approval",
		v.ID, v.Parameter, rec.EngineerName, strings.ReplaceAll(rec.ApprovalLevel, "_", " "))
}
