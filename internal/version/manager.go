// Package version keeps the immutable history of design iterations per
// project: numbering, hashing, comparison, approval and rollback.
package version

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/DukeRupert/designaudit/internal/domain"
	"github.com/DukeRupert/designaudit/internal/metrics"
	"github.com/DukeRupert/designaudit/internal/storage"
)

const lockStripes = 64

// CreateVersionParams holds everything captured by a new version.
type CreateVersionParams struct {
	ProjectID      string
	InputParams    domain.Params
	CalculationLog *domain.CalculationLog
	OutputFiles    []domain.OutputFile
	OutputValues   domain.Params
	AppliedRules   []domain.RuleSnapshot
	// OverrideLog carries override records made outside the calculation log.
	OverrideLog []domain.OverrideRecord
	Description string
	Tag         string
	CreatedBy   string
}

// Manager creates and queries design versions. Creations for the same
// project are serialized; different projects proceed in parallel.
type Manager struct {
	store   Store
	archive storage.Storage
	locks   [lockStripes]sync.Mutex
	now     func() time.Time
	logger  *slog.Logger
}

// NewManager creates a manager. archive may be nil, in which case version
// documents are not written to object storage.
func NewManager(store Store, archive storage.Storage, logger *slog.Logger) *Manager {
	return &Manager{
		store:   store,
		archive: archive,
		now:     time.Now,
		logger:  logger,
	}
}

func (m *Manager) lockFor(projectID string) *sync.Mutex {
	return &m.locks[xxhash.Sum64String(projectID)%lockStripes]
}

// =============================================================================
// Creation
// =============================================================================

// CreateVersion snapshots a design iteration as the next version of the
// project and makes it the current one.
func (m *Manager) CreateVersion(ctx context.Context, p CreateVersionParams) (*domain.DesignVersion, error) {
	const op = "version.create"

	if strings.TrimSpace(p.ProjectID) == "" {
		return nil, domain.Invalid(op, "project ID is required")
	}
	v, err := m.create(ctx, p, nil)
	if err != nil {
		return nil, err
	}
	metrics.VersionCreated("create")
	return v, nil
}

func (m *Manager) create(ctx context.Context, p CreateVersionParams, rolledBackFrom *uuid.UUID) (*domain.DesignVersion, error) {
	const op = "version.create"

	input := p.InputParams.Clone()
	if input == nil {
		input = domain.Params{}
	}
	rules, err := deepCopy(p.AppliedRules)
	if err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "rule snapshot cannot be encoded")
	}
	if rules == nil {
		rules = []domain.RuleSnapshot{}
	}
	calcLog, err := deepCopy(p.CalculationLog)
	if err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "calculation log cannot be encoded")
	}
	hash, err := ContentHash(input, rules, calcLog)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to hash version snapshot")
	}

	hasOverrides, reasons := overrideSummary(calcLog, p.OverrideLog)

	mu := m.lockFor(p.ProjectID)
	mu.Lock()
	defer mu.Unlock()

	latest, err := m.store.LatestVersionNumber(ctx, p.ProjectID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to read latest version number")
	}
	number := latest + 1

	tag := strings.TrimSpace(p.Tag)
	if tag == "" {
		tag = fmt.Sprintf("v%d.0", number)
	}

	v := &domain.DesignVersion{
		ID:                     uuid.New(),
		ProjectID:              p.ProjectID,
		VersionNumber:          number,
		VersionTag:             tag,
		Description:            p.Description,
		InputSnapshot:          input,
		RuleSnapshot:           rules,
		CalculationLogSnapshot: calcLog,
		OutputMetadata: domain.OutputMetadata{
			Files: append([]domain.OutputFile(nil), p.OutputFiles...),
			Extra: p.OutputValues.Clone(),
		},
		ContentHash:     hash,
		CreatedBy:       p.CreatedBy,
		CreatedAt:       m.now().UTC(),
		IsCurrent:       true,
		HasOverrides:    hasOverrides,
		OverrideReasons: reasons,
		RolledBackFrom:  rolledBackFrom,
	}

	archivedKey := m.archiveVersion(ctx, v)

	if err := m.store.Insert(ctx, v); err != nil {
		if archivedKey != "" {
			if derr := m.archive.Delete(ctx, archivedKey); derr != nil {
				m.logger.Warn("failed to remove orphaned version archive", "key", archivedKey, "error", derr)
			}
		}
		if domain.ErrorCode(err) == domain.ECONFLICT {
			return nil, err
		}
		return nil, domain.Internal(err, op, "failed to store version")
	}

	m.logger.Info("version created",
		"project_id", v.ProjectID,
		"version_id", v.ID,
		"version_number", v.VersionNumber,
		"version_tag", v.VersionTag,
		"has_overrides", v.HasOverrides,
	)
	return v, nil
}

// archiveVersion writes the version document to object storage and records
// its key in the output metadata. Failures are logged and counted; the
// stored version record stays authoritative.
func (m *Manager) archiveVersion(ctx context.Context, v *domain.DesignVersion) string {
	if m.archive == nil {
		return ""
	}
	key := storage.VersionKey(v.ProjectID, v.ID)
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("failed to encode version archive", "version_id", v.ID, "error", err)
		metrics.VersionArchiveFailures.Inc()
		return ""
	}
	err = m.archive.Put(ctx, key, bytes.NewReader(data), storage.PutOptions{
		ContentType: storage.ContentTypeJSON,
	})
	if err != nil {
		m.logger.Warn("failed to archive version", "version_id", v.ID, "key", key, "error", err)
		metrics.VersionArchiveFailures.Inc()
		return ""
	}
	v.OutputMetadata.Files = append(v.OutputMetadata.Files, domain.OutputFile{
		Kind: storage.KindVersionDocument,
		Key:  key,
	})
	return key
}

// deepCopy returns an independent copy of v through its JSON form, so later
// changes to the caller's value never reach a stored snapshot.
func deepCopy[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

func overrideSummary(log *domain.CalculationLog, extra []domain.OverrideRecord) (bool, []string) {
	reasons := []string{}
	seen := make(map[uuid.UUID]bool)
	if log != nil {
		for _, r := range log.OverrideRecords() {
			seen[r.ID] = true
			reasons = append(reasons, r.Reason)
		}
	}
	for _, r := range extra {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		reasons = append(reasons, r.Reason)
	}
	return len(reasons) > 0, reasons
}

// =============================================================================
// Queries
// =============================================================================

// GetVersion returns one version.
func (m *Manager) GetVersion(ctx context.Context, id uuid.UUID) (*domain.DesignVersion, error) {
	return m.store.Get(ctx, id)
}

// GetVersionHistory lists the versions of a project in ascending number order.
func (m *Manager) GetVersionHistory(ctx context.Context, projectID string) ([]domain.VersionSummary, error) {
	const op = "version.history"

	versions, err := m.store.ListByProject(ctx, projectID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list versions")
	}
	out := make([]domain.VersionSummary, 0, len(versions))
	for _, v := range versions {
		out = append(out, v.Summary())
	}
	return out, nil
}

func (m *Manager) pair(ctx context.Context, fromID, toID uuid.UUID) (*domain.DesignVersion, *domain.DesignVersion, error) {
	from, err := m.store.Get(ctx, fromID)
	if err != nil {
		return nil, nil, err
	}
	to, err := m.store.Get(ctx, toID)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// CompareVersions diffs the input snapshots and output values of two versions.
func (m *Manager) CompareVersions(ctx context.Context, fromID, toID uuid.UUID) (*domain.VersionDiff, error) {
	from, to, err := m.pair(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}
	d := Diff(from, to)
	return &d, nil
}

// GenerateDiffReport builds the full comparison report between two versions,
// including the step-by-step calculation diff.
func (m *Manager) GenerateDiffReport(ctx context.Context, fromID, toID uuid.UUID) (*domain.DiffReport, error) {
	from, to, err := m.pair(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}
	d := Diff(from, to)
	calc := DiffCalculations(from.CalculationLogSnapshot, to.CalculationLogSnapshot)

	var inputs, outputs int
	for _, c := range d.FieldChanges {
		if strings.HasPrefix(c.Field, outputPrefix) {
			outputs++
		} else {
			inputs++
		}
	}
	calcChanges := len(calc.StepsAdded) + len(calc.StepsRemoved) + len(calc.ResultsChanged)

	return &domain.DiffReport{
		From: from.Summary(),
		To:   to.Summary(),
		Summary: domain.DiffSummary{
			TotalChanges:       len(d.FieldChanges) + calcChanges,
			InputChanges:       inputs,
			OutputChanges:      outputs,
			CalculationChanges: calcChanges,
		},
		Diff:        d,
		Calculation: calc,
		GeneratedAt: m.now().UTC(),
	}, nil
}

// =============================================================================
// Governance
// =============================================================================

// ApproveVersion marks a version approved. It returns false when the version
// does not exist. Approval does not depend on export eligibility.
func (m *Manager) ApproveVersion(ctx context.Context, id uuid.UUID, approvedBy string) (bool, error) {
	const op = "version.approve"

	if strings.TrimSpace(approvedBy) == "" {
		return false, domain.Invalid(op, "approver is required")
	}
	ok, err := m.store.Approve(ctx, id, approvedBy, m.now().UTC())
	if err != nil {
		return false, domain.Internal(err, op, "failed to approve version")
	}
	if ok {
		m.logger.Info("version approved", "version_id", id, "approved_by", approvedBy)
	}
	return ok, nil
}

// RollbackToVersion creates a new version of the project whose snapshots are
// copied from the target version. History is never rewritten.
func (m *Manager) RollbackToVersion(ctx context.Context, projectID string, versionID uuid.UUID, createdBy string) (*domain.DesignVersion, error) {
	const op = "version.rollback"

	target, err := m.store.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if target.ProjectID != projectID {
		return nil, domain.NotFound(op, "version", versionID.String())
	}

	files := make([]domain.OutputFile, 0, len(target.OutputMetadata.Files))
	for _, f := range target.OutputMetadata.Files {
		if f.Kind != storage.KindVersionDocument {
			files = append(files, f)
		}
	}

	id := target.ID
	v, err := m.create(ctx, CreateVersionParams{
		ProjectID:      projectID,
		InputParams:    target.InputSnapshot,
		CalculationLog: target.CalculationLogSnapshot,
		OutputFiles:    files,
		OutputValues:   target.OutputMetadata.Extra,
		AppliedRules:   target.RuleSnapshot,
		Description:    fmt.Sprintf("Rollback from %s", target.VersionTag),
		Tag:            "rollback-" + target.VersionTag,
		CreatedBy:      createdBy,
	}, &id)
	if err != nil {
		return nil, err
	}
	metrics.VersionCreated("rollback")
	return v, nil
}
