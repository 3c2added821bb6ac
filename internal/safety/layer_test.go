package safety

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/designaudit/internal/domain"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

const validReason = "Site survey confirms bedrock at 2.1 m; shallower basin approved by client."

func newTestLayer() *Layer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLayer(logger, WithClock(func() time.Time { return fixedNow }))
}

func violation(param string, sev domain.Severity) domain.Violation {
	return domain.Violation{
		ID:        uuid.New(),
		RuleID:    param,
		Parameter: param,
		Value:     1.5,
		Severity:  sev,
		Message:   param + " is out of range",
		Standard:  "TCVN 7957:2008",
		Clause:    "8.5",
	}
}

func testLog(violations ...domain.Violation) *domain.CalculationLog {
	return &domain.CalculationLog{
		ID:              uuid.New(),
		CalculationType: "rectangular_tank",
		Steps:           []domain.CalculationStep{{StepID: "S01", Status: domain.StepStatusOK}},
		Violations:      violations,
	}
}

func TestCheckCalculationLog(t *testing.T) {
	l := newTestLayer()

	tests := []struct {
		name      string
		log       *domain.CalculationLog
		canExport bool
		pending   int
		reasons   int
	}{
		{"clean", testLog(), true, 0, 0},
		{"info and warning only", testLog(violation("a", domain.SeverityInfo), violation("b", domain.SeverityWarning)), true, 0, 0},
		{"major blocks", testLog(violation("a", domain.SeverityMajor)), false, 1, 1},
		{"critical blocks", testLog(violation("a", domain.SeverityCritical), violation("b", domain.SeverityWarning)), false, 1, 1},
		{"failed log blocks", func() *domain.CalculationLog { lg := testLog(); lg.Failed = true; return lg }(), false, 0, 1},
		{"error step blocks", func() *domain.CalculationLog {
			lg := testLog()
			lg.Steps = append(lg.Steps, domain.CalculationStep{StepID: "S02", Status: domain.StepStatusError})
			return lg
		}(), false, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := l.CheckCalculationLog(tt.log)
			assert.Equal(t, tt.canExport, res.CanExport)
			assert.Equal(t, tt.pending, res.PendingOverrideCount)
			assert.Len(t, res.BlockReasons, tt.reasons)
			assert.Equal(t, tt.log.ID, res.LogID)
			assert.NotNil(t, res.Violations)
			assert.NotNil(t, res.OverrideRecords)
		})
	}
}

func TestCheckCountsIncludeOverridden(t *testing.T) {
	l := newTestLayer()
	crit := violation("depth", domain.SeverityCritical)
	lg := testLog(crit, violation("wall", domain.SeverityMajor), violation("ratio", domain.SeverityWarning), violation("note", domain.SeverityInfo))

	ok, _ := l.RequestOverride(lg, domain.OverrideRequest{
		LogID: lg.ID, ViolationID: crit.ID, Reason: validReason, EngineerID: "E-7", EngineerName: "Nguyen Van A",
	})
	require.True(t, ok)

	res := l.CheckCalculationLog(lg)
	assert.Equal(t, 4, res.TotalViolations)
	assert.Equal(t, 1, res.CriticalCount)
	assert.Equal(t, 1, res.MajorCount)
	assert.Equal(t, 1, res.MinorCount)
	assert.Equal(t, 1, res.InfoCount)
	assert.Equal(t, 1, res.OverriddenCount)
	assert.Equal(t, 1, res.PendingOverrideCount)
	assert.False(t, res.CanExport)
	assert.Len(t, res.OverrideRecords, 1)
}

func TestRequestOverride(t *testing.T) {
	l := newTestLayer()
	major := violation("wall", domain.SeverityMajor)
	lg := testLog(major)

	ok, msg := l.RequestOverride(lg, domain.OverrideRequest{
		LogID:        lg.ID,
		ViolationID:  major.ID,
		Reason:       "  " + validReason + "  ",
		EngineerID:   "E-7",
		EngineerName: "Nguyen Van A",
		ReferenceDoc: "RFI-0042",
	})
	require.True(t, ok, msg)
	assert.Contains(t, msg, "senior engineer")

	v := lg.FindViolation(major.ID)
	require.NotNil(t, v)
	assert.True(t, v.IsOverridden)
	require.NotNil(t, v.OverrideRecord)

	rec := v.OverrideRecord
	assert.Equal(t, validReason, rec.Reason)
	assert.Equal(t, "senior_engineer", rec.ApprovalLevel)
	assert.Equal(t, domain.SeverityMajor, rec.Severity)
	assert.Equal(t, "wall", rec.Parameter)
	assert.Equal(t, "RFI-0042", rec.ReferenceDoc)
	assert.Equal(t, fixedNow, rec.Timestamp)

	assert.True(t, l.CheckCalculationLog(lg).CanExport)
}

func TestRequestOverrideRejections(t *testing.T) {
	l := newTestLayer()

	tests := []struct {
		name    string
		mutate  func(lg *domain.CalculationLog, req *domain.OverrideRequest)
		message string
	}{
		{
			name:    "unknown violation",
			mutate:  func(_ *domain.CalculationLog, req *domain.OverrideRequest) { req.ViolationID = uuid.New() },
			message: "not found",
		},
		{
			name: "already overridden",
			mutate: func(lg *domain.CalculationLog, _ *domain.OverrideRequest) {
				lg.Violations[0].IsOverridden = true
			},
			message: "already been overridden",
		},
		{
			name:    "short reason",
			mutate:  func(_ *domain.CalculationLog, req *domain.OverrideRequest) { req.Reason = "approved" },
			message: "at least 50 characters (got 8)",
		},
		{
			name:    "padding does not count",
			mutate:  func(_ *domain.CalculationLog, req *domain.OverrideRequest) { req.Reason = "approved" + strings.Repeat(" ", 60) },
			message: "at least 50 characters",
		},
		{
			name:    "missing engineer id",
			mutate:  func(_ *domain.CalculationLog, req *domain.OverrideRequest) { req.EngineerID = " " },
			message: "engineer id and name are required",
		},
		{
			name:    "missing engineer name",
			mutate:  func(_ *domain.CalculationLog, req *domain.OverrideRequest) { req.EngineerName = "" },
			message: "engineer id and name are required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := violation("depth", domain.SeverityCritical)
			lg := testLog(v)
			req := domain.OverrideRequest{
				LogID: lg.ID, ViolationID: v.ID, Reason: validReason, EngineerID: "E-7", EngineerName: "Nguyen Van A",
			}
			tt.mutate(lg, &req)

			ok, msg := l.RequestOverride(lg, req)
			assert.False(t, ok)
			assert.Contains(t, msg, tt.message)
			assert.Nil(t, lg.Violations[0].OverrideRecord)
		})
	}
}

func TestMinReasonLengthOption(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name string
		n    int
		want int
	}{
		{"zero keeps default", 0, DefaultMinReasonLength},
		{"lower value is ignored", 5, DefaultMinReasonLength},
		{"just below default is ignored", 49, DefaultMinReasonLength},
		{"higher value raises minimum", 80, 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewLayer(logger, WithMinReasonLength(tt.n)).MinReasonLength())
		})
	}

	l := NewLayer(logger, WithMinReasonLength(80))
	v := violation("depth", domain.SeverityCritical)
	lg := testLog(v)
	ok, msg := l.RequestOverride(lg, domain.OverrideRequest{
		ViolationID: v.ID, Reason: strings.Repeat("x", 60), EngineerID: "E-1", EngineerName: "Tran B",
	})
	assert.False(t, ok)
	assert.Contains(t, msg, "at least 80 characters (got 60)")
}

func TestRequestOverrideReasonBoundary(t *testing.T) {
	l := newTestLayer()

	tests := []struct {
		name   string
		reason string
		ok     bool
	}{
		{"49 characters", strings.Repeat("a", 49), false},
		{"50 characters", strings.Repeat("a", 50), true},
		{"50 multibyte characters", strings.Repeat("đ", 50), true},
		{"49 characters with padding", "  " + strings.Repeat("a", 49) + "\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := violation("depth", domain.SeverityCritical)
			lg := testLog(v)
			ok, msg := l.RequestOverride(lg, domain.OverrideRequest{
				ViolationID: v.ID, Reason: tt.reason, EngineerID: "E-7", EngineerName: "Nguyen Van A",
			})
			assert.Equal(t, tt.ok, ok, msg)
			assert.Equal(t, tt.ok, lg.FindViolation(v.ID).IsOverridden)
		})
	}
}

func TestRequestOverrideShortThenValidReason(t *testing.T) {
	l := newTestLayer()
	critical := violation("retention_time", domain.SeverityCritical)
	lg := testLog(critical, violation("surface_loading", domain.SeverityWarning))

	short := strings.Repeat("b", 40)
	ok, msg := l.RequestOverride(lg, domain.OverrideRequest{
		ViolationID: critical.ID, Reason: short, EngineerID: "E-7", EngineerName: "Nguyen Van A",
	})
	assert.False(t, ok)
	assert.Contains(t, msg, "got 40")
	assert.False(t, l.CheckCalculationLog(lg).CanExport)

	long := strings.Repeat("c", 52)
	ok, msg = l.RequestOverride(lg, domain.OverrideRequest{
		ViolationID: critical.ID, Reason: long, EngineerID: "E-7", EngineerName: "Nguyen Van A",
	})
	require.True(t, ok, msg)

	res := l.CheckCalculationLog(lg)
	assert.True(t, res.CanExport)
	assert.Zero(t, res.PendingOverrideCount)
	require.Len(t, res.OverrideRecords, 1)
	assert.Equal(t, long, res.OverrideRecords[0].Reason)
}

func TestRequestOverrideFirstCallerWins(t *testing.T) {
	l := newTestLayer()
	v := violation("depth", domain.SeverityCritical)
	lg := testLog(v)

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := l.RequestOverride(lg, domain.OverrideRequest{
				ViolationID: v.ID, Reason: validReason, EngineerID: "E-7", EngineerName: "Nguyen Van A",
			})
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	accepted := 0
	for ok := range results {
		if ok {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Len(t, lg.OverrideRecords(), 1)
}

func TestRequestOverrideNilLogPanics(t *testing.T) {
	l := newTestLayer()
	assert.Panics(t, func() { l.RequestOverride(nil, domain.OverrideRequest{}) })
}

func TestGenerateOverrideReport(t *testing.T) {
	l := newTestLayer()
	crit := violation("depth", domain.SeverityCritical)
	major := violation("wall", domain.SeverityMajor)
	lg := testLog(crit, major)

	ok, _ := l.RequestOverride(lg, domain.OverrideRequest{
		ViolationID: crit.ID, Reason: validReason, EngineerID: "E-7", EngineerName: "Nguyen Van A", ReferenceDoc: "RFI-0042",
	})
	require.True(t, ok)

	out := l.GenerateOverrideReport(lg)
	for _, want := range []string{
		"OVERRIDE AUDIT REPORT",
		"Calculation log:  " + lg.ID.String(),
		"Overrides:        1",
		"Export allowed:   false",
		"Still blocking:",
		"  - wall is out of range",
		"1. depth [Critical]",
		"   Value:          1.5",
		"   Standard:       TCVN 7957:2008, clause 8.5",
		"   Justification:  " + validReason,
		"   Engineer:       Nguyen Van A (E-7)",
		"   Approval level: Chief Engineer",
		"   Reference:      RFI-0042",
		"   Timestamp:      2026-03-14 09:30:00 UTC",
		"Prepared by:",
		"Approved by:",
	} {
		assert.Contains(t, out, want)
	}
}

func TestGenerateOverrideReportWithoutOverrides(t *testing.T) {
	l := newTestLayer()
	out := l.GenerateOverrideReport(testLog(violation("ratio", domain.SeverityWarning)))

	assert.Contains(t, out, "Overrides:        0")
	assert.Contains(t, out, "Export allowed:   true")
	assert.Contains(t, out, "No overrides have been recorded.")
	assert.NotContains(t, out, "Prepared by:")
}
