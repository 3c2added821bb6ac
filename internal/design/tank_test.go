package design

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/designaudit/internal/calc"
	"github.com/DukeRupert/designaudit/internal/domain"
	"github.com/DukeRupert/designaudit/internal/rules"
)

func runTank(t *testing.T, inputs map[string]float64) (*domain.CalculationLog, error) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := rules.NewEngine(rules.DefaultDefinitions(), logger)
	require.NoError(t, engine.Reload())

	d := RectangularTank()
	in := domain.NumberParams(inputs)
	require.NoError(t, d.ValidateInputs(in))

	c := calc.New(engine, d.Type, calc.Options{Category: d.Category, Inputs: in}, logger)
	runErr := d.Run(c, in)
	log, finishErr := c.Finish()
	if runErr != nil {
		return log, runErr
	}
	return log, finishErr
}

func TestRectangularTankWithinLimits(t *testing.T) {
	log, err := runTank(t, map[string]float64{"flow_rate": 1000, "retention_time": 2})
	require.NoError(t, err)

	assert.Empty(t, log.Violations)
	assert.False(t, log.Failed)
	require.Len(t, log.Steps, 8)
	assert.Equal(t, "Hourly flow", log.Steps[0].Name)
	assert.Equal(t, "Total height", log.Steps[7].Name)
	assert.Contains(t, log.StandardsApplied, "TCVN 7957:2008")

	volume, _ := log.FinalResults["volume"].AsNumber()
	assert.InDelta(t, 1000.0/12, volume, 1e-9)
	loading, _ := log.FinalResults["surface_loading"].AsNumber()
	assert.InDelta(t, 42.0, loading, 1e-9)
	height, _ := log.FinalResults["total_height"].AsNumber()
	assert.InDelta(t, 4.0, height, 1e-9)

	length, _ := log.FinalResults["length"].AsNumber()
	width, _ := log.FinalResults["width"].AsNumber()
	assert.InDelta(t, 4.0, length/width, 1e-9)
}

func TestRectangularTankViolations(t *testing.T) {
	log, err := runTank(t, map[string]float64{"flow_rate": 1000, "retention_time": 6})
	require.NoError(t, err)

	byParam := make(map[string]domain.Violation)
	for _, v := range log.Violations {
		byParam[v.Parameter] = v
	}
	require.Contains(t, byParam, "retention_time")
	assert.Equal(t, domain.SeverityCritical, byParam["retention_time"].Severity)
	assert.Empty(t, byParam["retention_time"].StepID)

	require.Contains(t, byParam, "surface_loading")
	assert.Equal(t, domain.SeverityMajor, byParam["surface_loading"].Severity)
	assert.Equal(t, "S06", byParam["surface_loading"].StepID)

	assert.NotEmpty(t, log.BlockingViolations())
}

func TestRectangularTankZeroDepthFails(t *testing.T) {
	log, err := runTank(t, map[string]float64{"flow_rate": 1000, "retention_time": 2, "water_depth": 0})
	require.Error(t, err)
	assert.Equal(t, domain.ECALCFAILED, domain.ErrorCode(err))

	assert.True(t, log.Failed)
	assert.True(t, log.HasErrorSteps())
	last := log.Steps[len(log.Steps)-1]
	assert.Equal(t, "Surface area", last.Name)
	assert.Equal(t, domain.StepStatusError, last.Status)
	assert.Empty(t, log.FinalResults)
}

func TestValidateInputs(t *testing.T) {
	d := RectangularTank()

	tests := []struct {
		name  string
		in    domain.Params
		valid bool
	}{
		{"complete", domain.NumberParams(map[string]float64{"flow_rate": 1, "retention_time": 2}), true},
		{"missing retention", domain.NumberParams(map[string]float64{"flow_rate": 1}), false},
		{"non-numeric", domain.Params{"flow_rate": domain.TextValue("lots"), "retention_time": domain.NumberValue(2)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.ValidateInputs(tt.in)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		})
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"rectangular_tank"}, r.Types())

	d, ok := r.Get("rectangular_tank")
	require.True(t, ok)
	assert.Equal(t, "tank", d.Category)

	_, ok = r.Get("circular_clarifier")
	assert.False(t, ok)
}
