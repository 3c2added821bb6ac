package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViolationOverride(t *testing.T) {
	v := Violation{ID: uuid.New(), Severity: SeverityCritical}
	assert.True(t, v.Blocking())

	require.NoError(t, v.Override(OverrideRecord{ID: uuid.New(), Reason: "first"}))
	assert.True(t, v.IsOverridden)
	assert.False(t, v.Blocking())

	err := v.Override(OverrideRecord{ID: uuid.New(), Reason: "second"})
	assert.ErrorIs(t, err, ErrAlreadyOverridden)
	assert.Equal(t, "first", v.OverrideRecord.Reason)
}

func TestCalculationLogQueries(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	log := CalculationLog{
		Steps: []CalculationStep{{Status: StepStatusOK}, {Status: StepStatusWarning}},
		Violations: []Violation{
			{ID: uuid.New(), Severity: SeverityWarning},
			{ID: uuid.New(), Severity: SeverityMajor},
			{ID: uuid.New(), Severity: SeverityCritical},
		},
	}
	assert.False(t, log.HasErrorSteps())
	assert.Len(t, log.BlockingViolations(), 2)
	assert.False(t, log.HasOverrides())

	require.NoError(t, log.Violations[2].Override(OverrideRecord{Reason: "later", Timestamp: t0.Add(time.Minute)}))
	require.NoError(t, log.Violations[1].Override(OverrideRecord{Reason: "earlier", Timestamp: t0}))

	assert.True(t, log.HasOverrides())
	assert.Empty(t, log.BlockingViolations())
	assert.Equal(t, []string{"earlier", "later"}, log.OverrideReasons())

	assert.Same(t, &log.Violations[1], log.FindViolation(log.Violations[1].ID))
	assert.Nil(t, log.FindViolation(uuid.New()))

	log.Steps = append(log.Steps, CalculationStep{Status: StepStatusError})
	assert.True(t, log.HasErrorSteps())
}
