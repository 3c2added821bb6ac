package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/designaudit/internal/design"
	"github.com/DukeRupert/designaudit/internal/domain"
	"github.com/DukeRupert/designaudit/internal/logstore"
	"github.com/DukeRupert/designaudit/internal/rules"
	"github.com/DukeRupert/designaudit/internal/safety"
	"github.com/DukeRupert/designaudit/internal/storage"
	"github.com/DukeRupert/designaudit/internal/version"
)

const reason = "Hydraulic model run HM-12 shows acceptable performance for this geometry."

func newTestService(t *testing.T) (DesignService, storage.Storage) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine := rules.NewEngine(rules.DefaultDefinitions(), logger)
	require.NoError(t, engine.Reload())

	archive, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()}, logger)
	require.NoError(t, err)

	svc := NewDesignService(
		engine,
		design.DefaultRegistry(),
		logstore.NewMemoryStore(),
		safety.NewLayer(logger),
		version.NewManager(version.NewMemoryStore(), archive, logger),
		archive,
		logger,
	)
	return svc, archive
}

func tankRequest(flow, retention float64) DesignRequest {
	return DesignRequest{
		CalculationType: "rectangular_tank",
		Inputs:          domain.NumberParams(map[string]float64{"flow_rate": flow, "retention_time": retention}),
	}
}

func TestRunDesignExportable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.RunDesign(ctx, tankRequest(1000, 2))
	require.NoError(t, err)
	assert.True(t, res.Safety.CanExport)
	assert.Equal(t, "Rectangular tank sizing", res.Log.Description)

	stored, err := svc.GetLog(ctx, res.Log.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Log.ID, stored.ID)
	assert.Len(t, stored.Steps, len(res.Log.Steps))
}

func TestRunDesignInvalidRequest(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RunDesign(ctx, DesignRequest{CalculationType: "unknown"})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	_, err = svc.RunDesign(ctx, DesignRequest{
		CalculationType: "rectangular_tank",
		Inputs:          domain.NumberParams(map[string]float64{"flow_rate": 1000}),
	})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestRunDesignCalculationFailed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := tankRequest(1000, 2)
	req.Inputs["water_depth"] = domain.NumberValue(0)

	res, err := svc.RunDesign(ctx, req)
	require.Error(t, err)
	assert.Equal(t, domain.ECALCFAILED, domain.ErrorCode(err))
	require.NotNil(t, res)
	assert.True(t, res.Log.Failed)
	assert.False(t, res.Safety.CanExport)
	assert.True(t, res.Safety.HasErrorSteps)

	_, err = svc.GetLog(ctx, res.Log.ID)
	assert.NoError(t, err)
}

func TestOverrideWorkflow(t *testing.T) {
	svc, archive := newTestService(t)
	ctx := context.Background()

	res, err := svc.RunDesign(ctx, tankRequest(1000, 6))
	require.NoError(t, err)
	require.False(t, res.Safety.CanExport)

	blocking := res.Log.BlockingViolations()
	require.NotEmpty(t, blocking)

	// a 40 character justification is rejected without changing the log
	resp, err := svc.Override(ctx, domain.OverrideRequest{
		LogID: res.Log.ID, ViolationID: blocking[0].ID, Reason: strings.Repeat("r", 40), EngineerID: "E-7", EngineerName: "Nguyen Van A",
	})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.False(t, resp.CanExportNow)
	assert.Contains(t, resp.Message, "got 40")
	assert.Equal(t, len(blocking), resp.RemainingBlockingViolations)

	check, err := svc.CheckSafety(ctx, res.Log.ID)
	require.NoError(t, err)
	assert.Zero(t, check.OverriddenCount)

	for i, v := range blocking {
		resp, err := svc.Override(ctx, domain.OverrideRequest{
			LogID: res.Log.ID, ViolationID: v.ID, Reason: reason, EngineerID: "E-7", EngineerName: "Nguyen Van A",
		})
		require.NoError(t, err)
		require.True(t, resp.Success, resp.Message)
		assert.Equal(t, len(blocking)-i-1, resp.RemainingBlockingViolations)
		assert.Equal(t, i == len(blocking)-1, resp.CanExportNow)
	}

	// overriding twice is rejected
	resp, err = svc.Override(ctx, domain.OverrideRequest{
		LogID: res.Log.ID, ViolationID: blocking[0].ID, Reason: reason, EngineerID: "E-8", EngineerName: "Tran B",
	})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.True(t, resp.CanExportNow)

	report, err := svc.Report(ctx, res.Log.ID)
	require.NoError(t, err)
	assert.True(t, report.CanExport)
	assert.True(t, report.HasOverrides)
	assert.Empty(t, report.BlockedReasons)
	assert.Contains(t, report.Calculation, "CALCULATION REPORT: RECTANGULAR TANK")
	assert.Contains(t, report.Calculation, "Overridden by Nguyen Van A (E-7)")
	assert.Contains(t, report.Overrides, "OVERRIDE AUDIT REPORT")

	v, err := svc.SaveVersion(ctx, SaveVersionParams{
		ProjectID:      "plant-a",
		LogID:          res.Log.ID,
		Description:    "Retention increased for storm flow",
		CreatedBy:      "E-7",
		ArchiveReports: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v.VersionNumber)
	assert.True(t, v.HasOverrides)
	assert.Len(t, v.OverrideReasons, len(blocking))
	require.Len(t, v.RuleSnapshot, 1)
	assert.Equal(t, "tank", v.RuleSnapshot[0].Category)

	kinds := make([]string, 0, len(v.OutputMetadata.Files))
	for _, f := range v.OutputMetadata.Files {
		kinds = append(kinds, f.Kind)
		exists, err := archive.Exists(ctx, f.Key)
		require.NoError(t, err)
		assert.True(t, exists, f.Key)
	}
	assert.Equal(t, []string{storage.KindCalculationReport, storage.KindOverrideReport, storage.KindVersionDocument}, kinds)

	volume, ok := v.OutputMetadata.Extra["volume"].AsNumber()
	require.True(t, ok)
	assert.InDelta(t, 250.0, volume, 1e-9)
}

func TestOverrideUnknownLog(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.Override(context.Background(), domain.OverrideRequest{
		LogID: uuid.New(), ViolationID: uuid.New(), Reason: reason, EngineerID: "E-7", EngineerName: "Nguyen Van A",
	})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.True(t, strings.Contains(resp.Message, "not found"))
}

func TestReportWithoutOverrides(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.RunDesign(ctx, tankRequest(1000, 2))
	require.NoError(t, err)

	report, err := svc.Report(ctx, res.Log.ID)
	require.NoError(t, err)
	assert.False(t, report.HasOverrides)
	assert.Empty(t, report.Overrides)

	_, err = svc.Report(ctx, uuid.New())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestSaveVersionErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SaveVersion(ctx, SaveVersionParams{LogID: uuid.New()})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	_, err = svc.SaveVersion(ctx, SaveVersionParams{ProjectID: "plant-a", LogID: uuid.New()})
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}
