// Package jobs contains the job handlers run by the worker pool.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/DukeRupert/designaudit/internal/domain"
	"github.com/DukeRupert/designaudit/internal/service"
	"github.com/DukeRupert/designaudit/internal/worker"
)

// RunDesignHandler runs one design calculation per job and optionally saves
// it as a project version.
type RunDesignHandler struct {
	designs service.DesignService
	logger  *slog.Logger
}

// NewRunDesignHandler creates a new handler for design jobs.
func NewRunDesignHandler(designs service.DesignService, logger *slog.Logger) *RunDesignHandler {
	return &RunDesignHandler{designs: designs, logger: logger}
}

// Type returns the job type identifier.
func (h *RunDesignHandler) Type() string {
	return worker.JobTypeRunDesign
}

// Handle executes the design job. Invalid requests and failed calculations
// are permanent failures; a failed calculation is never versioned.
func (h *RunDesignHandler) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	var p worker.RunDesignPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	res, err := h.designs.RunDesign(ctx, service.DesignRequest{
		CalculationType: p.CalculationType,
		DesignType:      p.DesignType,
		Description:     p.Description,
		Inputs:          p.Inputs,
	})
	if res == nil {
		return nil, classify(err)
	}

	out := worker.RunDesignOutput{
		LogID:           res.Log.ID,
		CalculationType: res.Log.CalculationType,
		Failed:          res.Log.Failed,
		CanExport:       res.Safety.CanExport,
		Violations:      res.Safety.TotalViolations,
		PendingOverride: res.Safety.PendingOverrideCount,
	}
	if err != nil {
		data, _ := json.Marshal(out)
		return data, classify(err)
	}

	if p.ProjectID != "" {
		v, err := h.designs.SaveVersion(ctx, service.SaveVersionParams{
			ProjectID:      p.ProjectID,
			LogID:          res.Log.ID,
			Description:    p.Description,
			Tag:            p.VersionTag,
			CreatedBy:      p.CreatedBy,
			ArchiveReports: p.ArchiveReports,
		})
		if err != nil {
			return nil, classify(err)
		}
		out.VersionID = &v.ID
		out.VersionNumber = v.VersionNumber
	}

	h.logger.Info("design job completed",
		"log_id", out.LogID,
		"can_export", out.CanExport,
		"version_number", out.VersionNumber,
	)
	return json.Marshal(out)
}

// classify marks errors that a retry cannot fix as permanent.
func classify(err error) error {
	switch domain.ErrorCode(err) {
	case domain.EINVALID, domain.ENOTFOUND, domain.ECALCFAILED:
		return worker.NewPermanentError(err)
	}
	return err
}
