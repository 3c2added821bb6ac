package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/designaudit/internal/design"
	"github.com/DukeRupert/designaudit/internal/domain"
	"github.com/DukeRupert/designaudit/internal/logstore"
	"github.com/DukeRupert/designaudit/internal/rules"
	"github.com/DukeRupert/designaudit/internal/safety"
	"github.com/DukeRupert/designaudit/internal/service"
	"github.com/DukeRupert/designaudit/internal/version"
	"github.com/DukeRupert/designaudit/internal/worker"
)

func newTestHandler(t *testing.T) (*RunDesignHandler, *version.Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine := rules.NewEngine(rules.DefaultDefinitions(), logger)
	require.NoError(t, engine.Reload())

	versions := version.NewManager(version.NewMemoryStore(), nil, logger)
	svc := service.NewDesignService(
		engine,
		design.DefaultRegistry(),
		logstore.NewMemoryStore(),
		safety.NewLayer(logger),
		versions,
		nil,
		logger,
	)
	return NewRunDesignHandler(svc, logger), versions
}

func tankPayload(flow, retention float64) worker.RunDesignPayload {
	return worker.RunDesignPayload{
		CalculationType: "rectangular_tank",
		Inputs:          domain.NumberParams(map[string]float64{"flow_rate": flow, "retention_time": retention}),
	}
}

func handle(t *testing.T, h *RunDesignHandler, p worker.RunDesignPayload) (worker.RunDesignOutput, error) {
	t.Helper()
	payload, err := json.Marshal(p)
	require.NoError(t, err)

	data, err := h.Handle(context.Background(), payload)
	var out worker.RunDesignOutput
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return out, err
}

func TestRunDesignJob(t *testing.T) {
	h, _ := newTestHandler(t)
	assert.Equal(t, worker.JobTypeRunDesign, h.Type())

	out, err := handle(t, h, tankPayload(1000, 2))
	require.NoError(t, err)
	assert.True(t, out.CanExport)
	assert.False(t, out.Failed)
	assert.Equal(t, "rectangular_tank", out.CalculationType)
	assert.Nil(t, out.VersionID)

	out, err = handle(t, h, tankPayload(1000, 6))
	require.NoError(t, err)
	assert.False(t, out.CanExport)
	assert.Positive(t, out.PendingOverride)
}

func TestRunDesignJobSavesVersion(t *testing.T) {
	h, versions := newTestHandler(t)

	p := tankPayload(1000, 2)
	p.ProjectID = "plant-a"
	p.CreatedBy = "E-7"

	for want := 1; want <= 2; want++ {
		out, err := handle(t, h, p)
		require.NoError(t, err)
		require.NotNil(t, out.VersionID)
		assert.Equal(t, want, out.VersionNumber)
	}

	history, err := versions.GetVersionHistory(context.Background(), "plant-a")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRunDesignJobPermanentFailures(t *testing.T) {
	h, versions := newTestHandler(t)

	_, err := h.Handle(context.Background(), []byte("{not json"))
	assert.True(t, worker.IsPermanent(err))

	_, err = handle(t, h, worker.RunDesignPayload{CalculationType: "unknown"})
	assert.True(t, worker.IsPermanent(err))
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	p := tankPayload(1000, 2)
	p.Inputs["water_depth"] = domain.NumberValue(0)
	p.ProjectID = "plant-a"
	out, err := handle(t, h, p)
	assert.True(t, worker.IsPermanent(err))
	assert.Equal(t, domain.ECALCFAILED, domain.ErrorCode(err))
	assert.True(t, out.Failed)

	history, err := versions.GetVersionHistory(context.Background(), "plant-a")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRunDesignJobsThroughPool(t *testing.T) {
	h, _ := newTestHandler(t)
	pool, err := worker.New(worker.DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	pool.Register(h)

	var batch []worker.Job
	for _, retention := range []float64{2, 3, 6, 2.5} {
		job, err := worker.NewJob(worker.JobTypeRunDesign, tankPayload(1000, retention))
		require.NoError(t, err)
		batch = append(batch, job)
	}

	results := pool.Run(context.Background(), batch)
	require.Len(t, results, 4)
	seen := map[string]bool{}
	for _, res := range results {
		require.NoError(t, res.Err)
		var out worker.RunDesignOutput
		require.NoError(t, json.Unmarshal(res.Output, &out))
		seen[out.LogID.String()] = true
	}
	assert.Len(t, seen, 4)
}
