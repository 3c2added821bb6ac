package rules

import (
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/designaudit/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCategory() domain.RuleCategory {
	return domain.RuleCategory{
		Category: "basin",
		Version:  "1",
		Rules: []domain.RuleDefinition{
			{
				ID:             "depth",
				Parameter:      "depth",
				Unit:           "m",
				Min:            domain.NumberLimit(2),
				Max:            domain.NumberLimit(10),
				RecommendedMin: domain.NumberLimit(3),
				RecommendedMax: domain.NumberLimit(8),
				Recommended:    domain.NumberLimit(5),
				Severity:       domain.SeverityCritical,
				FailMessage:    "Depth is outside the permitted range",
				Standard:       "STD-1",
				Clause:         "4.2",
				TypeSpecific: map[string]domain.LimitOverride{
					"shallow": {
						Min:            domain.NumberLimit(0.5),
						Max:            domain.NumberLimit(3),
						RecommendedMin: domain.NumberLimit(0.8),
						RecommendedMax: domain.NumberLimit(2.5),
						Recommended:    domain.NumberLimit(1),
					},
				},
			},
			{
				ID:        "wall",
				Parameter: "wall",
				Unit:      "m",
				Min:       domain.NumberLimit(0.2),
				Max:       domain.ExprLimit("${depth} / 10"),
				Standard:  "STD-2",
			},
			{
				ID:        "ratio",
				Parameter: "ratio",
				Min:       domain.NumberLimit(1),
				Standard:  "STD-1",
			},
		},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(nil, testLogger())
	require.NoError(t, e.Register(testCategory()))
	return e
}

func TestValidateParameterOrder(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name      string
		value     float64
		status    domain.RuleStatus
		severity  domain.Severity
		limitType string
	}{
		{"below min", 1, domain.RuleStatusFail, domain.SeverityCritical, domain.LimitTypeMin},
		{"above max", 11, domain.RuleStatusFail, domain.SeverityCritical, domain.LimitTypeMax},
		{"at min is not a failure", 2, domain.RuleStatusWarning, domain.SeverityWarning, domain.LimitTypeRecommendedMin},
		{"below recommended min", 2.5, domain.RuleStatusWarning, domain.SeverityWarning, domain.LimitTypeRecommendedMin},
		{"above recommended max", 9, domain.RuleStatusWarning, domain.SeverityWarning, domain.LimitTypeRecommendedMax},
		{"at max is not a failure", 10, domain.RuleStatusWarning, domain.SeverityWarning, domain.LimitTypeRecommendedMax},
		{"within limits", 5, domain.RuleStatusPass, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.ValidateParameter("basin", "depth", tt.value, nil)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.severity, res.Severity)
			assert.Equal(t, tt.limitType, res.LimitType)
			assert.Equal(t, "STD-1", res.Standard)
			assert.Equal(t, "4.2", res.Clause)
			assert.Equal(t, tt.value, res.Value)
		})
	}
}

func TestValidateParameterMessages(t *testing.T) {
	e := newTestEngine(t)

	res := e.ValidateParameter("basin", "depth", 1, nil)
	assert.Equal(t, "Depth is outside the permitted range (depth = 1 m is below the minimum 2 m)", res.Message)
	assert.Equal(t, "Increase depth to at least 2 m", res.Suggestion)
	require.NotNil(t, res.Limit)
	assert.Equal(t, 2.0, *res.Limit)

	res = e.ValidateParameter("basin", "depth", 9, nil)
	assert.Equal(t, "Consider reducing depth to at most 8 m", res.Suggestion)
}

func TestValidateParameterSkips(t *testing.T) {
	e := newTestEngine(t)

	res := e.ValidateParameter("basin", "missing", 1, nil)
	assert.Equal(t, domain.RuleStatusSkip, res.Status)
	assert.Equal(t, domain.SeverityInfo, res.Severity)

	res = e.ValidateParameter("unknown", "depth", 1, nil)
	assert.Equal(t, domain.RuleStatusSkip, res.Status)

	// The max limit references depth, which is not in the context.
	res = e.ValidateParameter("basin", "wall", 0.3, nil)
	assert.Equal(t, domain.RuleStatusSkip, res.Status)
	assert.Contains(t, res.Message, "undefined variable")
}

func TestValidateParameterHardLimitBeforeUnresolvedSoftLimit(t *testing.T) {
	e := NewEngine(nil, testLogger())
	require.NoError(t, e.Register(domain.RuleCategory{
		Category: "channel",
		Version:  "1",
		Rules: []domain.RuleDefinition{{
			ID:             "length",
			Parameter:      "length",
			Unit:           "m",
			Min:            domain.NumberLimit(4),
			RecommendedMax: domain.ExprLimit("${width} * 3"),
			Standard:       "STD-3",
		}},
	}))

	tests := []struct {
		name      string
		value     float64
		status    domain.RuleStatus
		limitType string
	}{
		{"below hard minimum fails", 3, domain.RuleStatusFail, domain.LimitTypeMin},
		{"soft limit unresolved skips", 5, domain.RuleStatusSkip, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.ValidateParameter("channel", "length", tt.value, nil)
			assert.Equal(t, tt.status, res.Status, res.Message)
			assert.Equal(t, tt.limitType, res.LimitType)
		})
	}

	res := e.ValidateParameter("channel", "length", 13, &EvalContext{Values: map[string]float64{"width": 4}})
	assert.Equal(t, domain.RuleStatusWarning, res.Status)
	assert.Equal(t, domain.LimitTypeRecommendedMax, res.LimitType)
}

func TestValidateParameterNonFinite(t *testing.T) {
	e := newTestEngine(t)

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		res := e.ValidateParameter("basin", "depth", v, nil)
		assert.Equal(t, domain.RuleStatusFail, res.Status)
		assert.Equal(t, domain.SeverityCritical, res.Severity)
		assert.Contains(t, res.Message, "not a finite number")
	}

	results := e.ValidateAll("basin", domain.Params{"depth": domain.NumberValue(math.NaN())}, nil)
	require.Len(t, results, 1)
	assert.Equal(t, domain.RuleStatusFail, results[0].Status)
}

func TestValidateParameterParametricLimit(t *testing.T) {
	e := newTestEngine(t)
	ec := &EvalContext{Values: map[string]float64{"depth": 4}}

	res := e.ValidateParameter("basin", "wall", 0.3, ec)
	assert.Equal(t, domain.RuleStatusPass, res.Status)

	res = e.ValidateParameter("basin", "wall", 0.5, ec)
	assert.Equal(t, domain.RuleStatusFail, res.Status)
	assert.Equal(t, domain.SeverityMajor, res.Severity, "default fail severity")
	require.NotNil(t, res.Limit)
	assert.InDelta(t, 0.4, *res.Limit, 1e-12)
}

func TestValidateParameterDesignType(t *testing.T) {
	e := newTestEngine(t)

	res := e.ValidateParameter("basin", "depth", 1, &EvalContext{DesignType: "shallow"})
	assert.Equal(t, domain.RuleStatusPass, res.Status)

	res = e.ValidateParameter("basin", "depth", 1, &EvalContext{DesignType: "other"})
	assert.Equal(t, domain.RuleStatusFail, res.Status)
}

func TestValidateAll(t *testing.T) {
	e := newTestEngine(t)

	params := domain.Params{
		"ratio":   domain.NumberValue(0.5),
		"depth":   domain.NumberValue(4),
		"wall":    domain.NumberValue(0.3),
		"unknown": domain.NumberValue(1),
	}
	results := e.ValidateAll("basin", params, nil)
	require.Len(t, results, 3)

	assert.Equal(t, "depth", results[0].RuleID)
	assert.Equal(t, domain.RuleStatusPass, results[0].Status)
	assert.Equal(t, "wall", results[1].RuleID)
	assert.Equal(t, domain.RuleStatusPass, results[1].Status, "depth input feeds the parametric limit")
	assert.Equal(t, "ratio", results[2].RuleID)
	assert.Equal(t, domain.RuleStatusFail, results[2].Status)
}

func TestValidateAllNonNumeric(t *testing.T) {
	e := newTestEngine(t)

	results := e.ValidateAll("basin", domain.Params{"depth": domain.TextValue("deep")}, nil)
	require.Len(t, results, 1)
	assert.Equal(t, domain.RuleStatusSkip, results[0].Status)
	assert.Equal(t, "depth", results[0].Parameter)
}

func TestValidateAllUnknownCategory(t *testing.T) {
	e := newTestEngine(t)
	assert.Empty(t, e.ValidateAll("unknown", domain.Params{"depth": domain.NumberValue(4)}, nil))
}

func TestAutoAdjust(t *testing.T) {
	e := newTestEngine(t)

	in := domain.Params{
		"depth": domain.NumberValue(12),
		"ratio": domain.NumberValue(0.2),
		"wall":  domain.NumberValue(0.25),
		"note":  domain.TextValue("keep"),
	}
	out := e.AutoAdjust("basin", in, nil)

	depth, _ := out["depth"].AsNumber()
	assert.Equal(t, 10.0, depth)
	ratio, _ := out["ratio"].AsNumber()
	assert.Equal(t, 1.0, ratio)
	wall, _ := out["wall"].AsNumber()
	assert.InDelta(t, 0.25, wall, 1e-12, "within the limit derived from the adjusted depth")
	assert.True(t, out["note"].Equal(domain.TextValue("keep")))

	orig, _ := in["depth"].AsNumber()
	assert.Equal(t, 12.0, orig, "input is not modified")

	soft := e.AutoAdjust("basin", domain.Params{"depth": domain.NumberValue(2.5)}, nil)
	v, _ := soft["depth"].AsNumber()
	assert.Equal(t, 2.5, v, "recommended limits are not enforced")
}

func TestGetRecommendations(t *testing.T) {
	e := newTestEngine(t)

	assert.Equal(t, map[string]float64{"depth": 5}, e.GetRecommendations("basin", ""))
	assert.Equal(t, map[string]float64{"depth": 1}, e.GetRecommendations("basin", "shallow"))
	assert.Empty(t, e.GetRecommendations("unknown", ""))
}

func TestRegisterRejectsInvalidCategory(t *testing.T) {
	e := NewEngine(nil, testLogger())

	err := e.Register(domain.RuleCategory{Category: "bad", Rules: []domain.RuleDefinition{
		{ID: "a", Parameter: "a", Max: domain.ExprLimit("1 +")},
	}})
	assert.Equal(t, domain.ECONFIG, domain.ErrorCode(err))

	err = e.Register(domain.RuleCategory{Category: "dup", Rules: []domain.RuleDefinition{
		{ID: "a", Parameter: "a"}, {ID: "a", Parameter: "b"},
	}})
	assert.Error(t, err)
	assert.Empty(t, e.Categories())
}

func TestDefaultDefinitions(t *testing.T) {
	e := NewEngine(DefaultDefinitions(), testLogger())
	require.NoError(t, e.Reload())
	assert.Equal(t, []string{"pipe", "structural", "tank"}, e.Categories())

	res := e.ValidateParameter("tank", "retention_time", 1.0, nil)
	assert.Equal(t, domain.RuleStatusFail, res.Status)
	assert.Equal(t, domain.SeverityCritical, res.Severity)

	res = e.ValidateParameter("tank", "retention_time", 1.0, &EvalContext{DesignType: "filtration"})
	assert.Equal(t, domain.RuleStatusPass, res.Status)

	res = e.ValidateParameter("tank", "surface_loading", 55, nil)
	assert.Equal(t, domain.RuleStatusWarning, res.Status)

	res = e.ValidateParameter("structural", "deflection", 30, &EvalContext{Values: map[string]float64{"span": 6}})
	assert.Equal(t, domain.RuleStatusFail, res.Status)

	recs := e.GetRecommendations("tank", "storage")
	assert.Equal(t, 6.0, recs["retention_time"])
	assert.Equal(t, 4.0, recs["water_depth"])
}

func TestReloadIsIdempotent(t *testing.T) {
	e := NewEngine(DefaultDefinitions(), testLogger())
	require.NoError(t, e.Reload())
	first, ok := e.Snapshot("tank")
	require.True(t, ok)

	require.NoError(t, e.Reload())
	second, ok := e.Snapshot("tank")
	require.True(t, ok)
	assert.Equal(t, first, second)
	assert.Equal(t, "2008.1", second.Version)
}

func TestReloadWithoutSource(t *testing.T) {
	e := NewEngine(nil, testLogger())
	assert.Equal(t, domain.ECONFIG, domain.ErrorCode(e.Reload()))
}

func TestConcurrentValidationDuringReload(t *testing.T) {
	e := NewEngine(DefaultDefinitions(), testLogger())
	require.NoError(t, e.Reload())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				res := e.ValidateParameter("tank", "water_depth", 3.5, nil)
				assert.Equal(t, domain.RuleStatusPass, res.Status)
			}
		}()
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, e.Reload())
	}
	wg.Wait()
}
