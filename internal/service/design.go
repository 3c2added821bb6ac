package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/DukeRupert/designaudit/internal/calc"
	"github.com/DukeRupert/designaudit/internal/design"
	"github.com/DukeRupert/designaudit/internal/domain"
	"github.com/DukeRupert/designaudit/internal/logstore"
	"github.com/DukeRupert/designaudit/internal/rules"
	"github.com/DukeRupert/designaudit/internal/safety"
	"github.com/DukeRupert/designaudit/internal/storage"
	"github.com/DukeRupert/designaudit/internal/version"
)

// DesignService runs design calculations through the verification pipeline:
// calculation, inline rule checks, export gate, overrides and versioning.
type DesignService interface {
	// RunDesign executes a design routine and stores its calculation log.
	// When a step failed to compute, the result is returned together with
	// a calculation-failed error.
	RunDesign(ctx context.Context, req DesignRequest) (*DesignResult, error)

	// GetLog returns a stored calculation log.
	GetLog(ctx context.Context, logID uuid.UUID) (*domain.CalculationLog, error)

	// CheckSafety returns the current export-gate verdict of a stored log.
	CheckSafety(ctx context.Context, logID uuid.UUID) (*domain.SafetyCheckResult, error)

	// Override applies an audited override to a stored log. Rejected
	// requests are reported in the response, not as errors.
	Override(ctx context.Context, req domain.OverrideRequest) (*domain.OverrideResponse, error)

	// Report renders the calculation transcript and the override report.
	Report(ctx context.Context, logID uuid.UUID) (*Report, error)

	// SaveVersion snapshots a stored calculation as the next version of a
	// project.
	SaveVersion(ctx context.Context, params SaveVersionParams) (*domain.DesignVersion, error)
}

// DesignRequest selects a design routine and its inputs.
type DesignRequest struct {
	CalculationType string
	DesignType      string
	Description     string
	Inputs          domain.Params
}

// DesignResult is the outcome of a design run.
type DesignResult struct {
	Log    *domain.CalculationLog
	Safety domain.SafetyCheckResult
}

// Report holds the rendered text reports of a calculation log.
type Report struct {
	LogID          uuid.UUID
	Calculation    string
	Overrides      string
	HasOverrides   bool
	CanExport      bool
	BlockedReasons []string
}

// SaveVersionParams identifies the calculation to version.
type SaveVersionParams struct {
	ProjectID   string
	LogID       uuid.UUID
	Description string
	Tag         string
	CreatedBy   string
	// ArchiveReports stores the rendered reports in object storage and
	// references them from the version's output files.
	ArchiveReports bool
}

// errOverrideRejected aborts a log update without writing.
var errOverrideRejected = errors.New("override rejected")

// designService implements DesignService.
type designService struct {
	engine    *rules.Engine
	designers *design.Registry
	logs      logstore.Store
	safety    *safety.Layer
	versions  *version.Manager
	archive   storage.Storage
	logger    *slog.Logger
}

// NewDesignService creates a new DesignService. archive may be nil.
func NewDesignService(
	engine *rules.Engine,
	designers *design.Registry,
	logs logstore.Store,
	safetyLayer *safety.Layer,
	versions *version.Manager,
	archive storage.Storage,
	logger *slog.Logger,
) DesignService {
	return &designService{
		engine:    engine,
		designers: designers,
		logs:      logs,
		safety:    safetyLayer,
		versions:  versions,
		archive:   archive,
		logger:    logger,
	}
}

// RunDesign executes a design routine and stores its calculation log.
func (s *designService) RunDesign(ctx context.Context, req DesignRequest) (*DesignResult, error) {
	const op = "DesignService.RunDesign"

	d, ok := s.designers.Get(req.CalculationType)
	if !ok {
		return nil, domain.Invalid(op, fmt.Sprintf("unknown calculation type %q", req.CalculationType))
	}
	if err := d.ValidateInputs(req.Inputs); err != nil {
		return nil, err
	}

	description := req.Description
	if description == "" {
		description = d.Description
	}
	c := calc.New(s.engine, d.Type, calc.Options{
		Category:    d.Category,
		DesignType:  req.DesignType,
		Description: description,
		Inputs:      req.Inputs,
	}, s.logger)

	if err := d.Run(c, req.Inputs); err != nil && !domain.IsCalculationFailed(err) {
		s.logger.Error("design routine failed", "error", err, "op", op, "calculation_type", d.Type)
		return nil, domain.Internal(err, op, "Design routine failed")
	}
	log, calcErr := c.Finish()

	if err := s.logs.Put(ctx, log); err != nil {
		s.logger.Error("failed to store calculation log", "error", err, "op", op, "log_id", log.ID)
		return nil, domain.Internal(err, op, "Failed to store calculation log")
	}

	result := &DesignResult{
		Log:    log,
		Safety: s.safety.CheckCalculationLog(log),
	}
	s.logger.Info("design run completed",
		"log_id", log.ID,
		"calculation_type", d.Type,
		"can_export", result.Safety.CanExport,
		"violations", result.Safety.TotalViolations,
	)
	return result, calcErr
}

// GetLog returns a stored calculation log.
func (s *designService) GetLog(ctx context.Context, logID uuid.UUID) (*domain.CalculationLog, error) {
	return s.logs.Get(ctx, logID)
}

// CheckSafety returns the current export-gate verdict of a stored log.
func (s *designService) CheckSafety(ctx context.Context, logID uuid.UUID) (*domain.SafetyCheckResult, error) {
	log, err := s.logs.Get(ctx, logID)
	if err != nil {
		return nil, err
	}
	res := s.safety.CheckCalculationLog(log)
	return &res, nil
}

// Override applies an audited override to a stored log.
func (s *designService) Override(ctx context.Context, req domain.OverrideRequest) (*domain.OverrideResponse, error) {
	const op = "DesignService.Override"

	var resp domain.OverrideResponse
	err := s.logs.Update(ctx, req.LogID, func(log *domain.CalculationLog) error {
		ok, msg := s.safety.RequestOverride(log, req)
		res := s.safety.CheckCalculationLog(log)
		resp = domain.OverrideResponse{
			Success:                     ok,
			Message:                     msg,
			CanExportNow:                res.CanExport,
			RemainingBlockingViolations: res.PendingOverrideCount,
		}
		if !ok {
			return errOverrideRejected
		}
		return nil
	})
	switch {
	case err == nil, errors.Is(err, errOverrideRejected):
		return &resp, nil
	case domain.IsNotFound(err):
		return &domain.OverrideResponse{
			Success: false,
			Message: fmt.Sprintf("calculation log %s not found", req.LogID),
		}, nil
	default:
		s.logger.Error("failed to apply override", "error", err, "op", op, "log_id", req.LogID)
		return nil, domain.Internal(err, op, "Failed to apply override")
	}
}

// Report renders the calculation transcript and the override report.
func (s *designService) Report(ctx context.Context, logID uuid.UUID) (*Report, error) {
	log, err := s.logs.Get(ctx, logID)
	if err != nil {
		return nil, err
	}
	verdict := s.safety.CheckCalculationLog(log)
	r := &Report{
		LogID:          log.ID,
		Calculation:    calc.ReportFormat(log),
		HasOverrides:   log.HasOverrides(),
		CanExport:      verdict.CanExport,
		BlockedReasons: verdict.BlockReasons,
	}
	if r.HasOverrides {
		r.Overrides = s.safety.GenerateOverrideReport(log)
	}
	return r, nil
}

// SaveVersion snapshots a stored calculation as the next project version.
func (s *designService) SaveVersion(ctx context.Context, params SaveVersionParams) (*domain.DesignVersion, error) {
	const op = "DesignService.SaveVersion"

	if strings.TrimSpace(params.ProjectID) == "" {
		return nil, domain.Invalid(op, "project ID is required")
	}
	log, err := s.logs.Get(ctx, params.LogID)
	if err != nil {
		return nil, err
	}

	var applied []domain.RuleSnapshot
	if snap, ok := s.engine.Snapshot(log.Category); ok {
		applied = append(applied, snap)
	}

	var files []domain.OutputFile
	if params.ArchiveReports && s.archive != nil {
		files, err = s.archiveReports(ctx, params.ProjectID, log)
		if err != nil {
			s.logger.Error("failed to archive reports", "error", err, "op", op, "log_id", log.ID)
			return nil, domain.Internal(err, op, "Failed to archive reports")
		}
	}

	v, err := s.versions.CreateVersion(ctx, version.CreateVersionParams{
		ProjectID:      params.ProjectID,
		InputParams:    log.Inputs,
		CalculationLog: log,
		OutputFiles:    files,
		OutputValues:   log.FinalResults,
		AppliedRules:   applied,
		Description:    params.Description,
		Tag:            params.Tag,
		CreatedBy:      params.CreatedBy,
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *designService) archiveReports(ctx context.Context, projectID string, log *domain.CalculationLog) ([]domain.OutputFile, error) {
	type artifact struct{ kind, text string }
	reports := []artifact{{storage.KindCalculationReport, calc.ReportFormat(log)}}
	if log.HasOverrides() {
		reports = append(reports, artifact{storage.KindOverrideReport, s.safety.GenerateOverrideReport(log)})
	}

	files := make([]domain.OutputFile, 0, len(reports))
	for _, r := range reports {
		key := storage.ReportKey(projectID, log.ID, r.kind)
		err := s.archive.Put(ctx, key, bytes.NewReader([]byte(r.text)), storage.PutOptions{
			ContentType: storage.ContentTypeText,
			Overwrite:   true,
		})
		if err != nil {
			return nil, err
		}
		files = append(files, domain.OutputFile{Kind: r.kind, Key: key})
	}
	return files, nil
}
