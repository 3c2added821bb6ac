package version

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sqlc-dev/pqtype"

	"github.com/DukeRupert/designaudit/internal/domain"
	"github.com/DukeRupert/designaudit/internal/repository"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// PostgresStore persists versions in the design_versions table. Inserts take
// a transaction-scoped advisory lock on the project so that numbering stays
// gap-free across processes.
type PostgresStore struct {
	db      *sql.DB
	queries *repository.Queries
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, queries: repository.New(db)}
}

func (s *PostgresStore) LatestVersionNumber(ctx context.Context, projectID string) (int, error) {
	n, err := s.queries.GetLatestVersionNumber(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("get latest version number: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) Insert(ctx context.Context, v *domain.DesignVersion) error {
	const op = "version.postgres.insert"

	params, err := toCreateParams(v)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)

	if err := qtx.LockProjectVersions(ctx, v.ProjectID); err != nil {
		return fmt.Errorf("lock project versions: %w", err)
	}
	latest, err := qtx.GetLatestVersionNumber(ctx, v.ProjectID)
	if err != nil {
		return fmt.Errorf("get latest version number: %w", err)
	}
	if int(latest)+1 != v.VersionNumber {
		return domain.Conflict(op, fmt.Sprintf("version %d of project %q already exists", v.VersionNumber, v.ProjectID))
	}
	if err := qtx.ClearCurrentVersion(ctx, v.ProjectID); err != nil {
		return fmt.Errorf("clear current version: %w", err)
	}
	if err := qtx.CreateDesignVersion(ctx, params); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.Conflict(op, fmt.Sprintf("version %d of project %q already exists", v.VersionNumber, v.ProjectID))
		}
		return fmt.Errorf("create design version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*domain.DesignVersion, error) {
	const op = "version.postgres.get"

	row, err := s.queries.GetDesignVersion(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "version", id.String())
		}
		return nil, domain.Internal(err, op, "failed to get version")
	}
	v, err := fromRow(row)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to decode version")
	}
	return v, nil
}

func (s *PostgresStore) ListByProject(ctx context.Context, projectID string) ([]*domain.DesignVersion, error) {
	rows, err := s.queries.ListDesignVersionsByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list design versions: %w", err)
	}
	out := make([]*domain.DesignVersion, 0, len(rows))
	for _, row := range rows {
		v, err := fromRow(row)
		if err != nil {
			return nil, fmt.Errorf("decode version %s: %w", row.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *PostgresStore) Approve(ctx context.Context, id uuid.UUID, approvedBy string, at time.Time) (bool, error) {
	n, err := s.queries.ApproveDesignVersion(ctx, repository.ApproveDesignVersionParams{
		ID:         id,
		ApprovedBy: domain.ToNullString(approvedBy),
		ApprovedAt: sql.NullTime{Time: at, Valid: true},
	})
	if err != nil {
		return false, fmt.Errorf("approve design version: %w", err)
	}
	return n > 0, nil
}

// =============================================================================
// Row mapping
// =============================================================================

func toCreateParams(v *domain.DesignVersion) (repository.CreateDesignVersionParams, error) {
	input, err := json.Marshal(v.InputSnapshot)
	if err != nil {
		return repository.CreateDesignVersionParams{}, fmt.Errorf("encode input snapshot: %w", err)
	}
	rules, err := json.Marshal(v.RuleSnapshot)
	if err != nil {
		return repository.CreateDesignVersionParams{}, fmt.Errorf("encode rule snapshot: %w", err)
	}
	var logJSON pqtype.NullRawMessage
	if v.CalculationLogSnapshot != nil {
		data, err := json.Marshal(v.CalculationLogSnapshot)
		if err != nil {
			return repository.CreateDesignVersionParams{}, fmt.Errorf("encode calculation log: %w", err)
		}
		logJSON = pqtype.NullRawMessage{RawMessage: data, Valid: true}
	}
	meta, err := json.Marshal(v.OutputMetadata)
	if err != nil {
		return repository.CreateDesignVersionParams{}, fmt.Errorf("encode output metadata: %w", err)
	}

	reasons := v.OverrideReasons
	if reasons == nil {
		reasons = []string{}
	}

	return repository.CreateDesignVersionParams{
		ID:                     v.ID,
		ProjectID:              v.ProjectID,
		VersionNumber:          int32(v.VersionNumber),
		VersionTag:             v.VersionTag,
		Description:            v.Description,
		InputSnapshot:          input,
		RuleSnapshot:           rules,
		CalculationLogSnapshot: logJSON,
		OutputMetadata:         pqtype.NullRawMessage{RawMessage: meta, Valid: true},
		ContentHash:            v.ContentHash,
		CreatedBy:              v.CreatedBy,
		CreatedAt:              v.CreatedAt,
		IsCurrent:              true,
		HasOverrides:           v.HasOverrides,
		OverrideReasons:        reasons,
		RolledBackFrom:         domain.ToNullUUID(v.RolledBackFrom),
	}, nil
}

func fromRow(row repository.DesignVersion) (*domain.DesignVersion, error) {
	v := &domain.DesignVersion{
		ID:              row.ID,
		ProjectID:       row.ProjectID,
		VersionNumber:   int(row.VersionNumber),
		VersionTag:      row.VersionTag,
		Description:     row.Description,
		ContentHash:     row.ContentHash,
		CreatedBy:       row.CreatedBy,
		CreatedAt:       row.CreatedAt,
		IsCurrent:       row.IsCurrent,
		IsApproved:      row.IsApproved,
		ApprovedBy:      domain.NullStringValue(row.ApprovedBy),
		ApprovedAt:      domain.NullTimeValue(row.ApprovedAt),
		HasOverrides:    row.HasOverrides,
		OverrideReasons: row.OverrideReasons,
	}
	if v.OverrideReasons == nil {
		v.OverrideReasons = []string{}
	}
	if row.RolledBackFrom.Valid {
		id := row.RolledBackFrom.UUID
		v.RolledBackFrom = &id
	}
	if err := json.Unmarshal(row.InputSnapshot, &v.InputSnapshot); err != nil {
		return nil, fmt.Errorf("decode input snapshot: %w", err)
	}
	if err := json.Unmarshal(row.RuleSnapshot, &v.RuleSnapshot); err != nil {
		return nil, fmt.Errorf("decode rule snapshot: %w", err)
	}
	if row.CalculationLogSnapshot.Valid {
		v.CalculationLogSnapshot = &domain.CalculationLog{}
		if err := json.Unmarshal(row.CalculationLogSnapshot.RawMessage, v.CalculationLogSnapshot); err != nil {
			return nil, fmt.Errorf("decode calculation log: %w", err)
		}
	}
	if row.OutputMetadata.Valid {
		if err := json.Unmarshal(row.OutputMetadata.RawMessage, &v.OutputMetadata); err != nil {
			return nil, fmt.Errorf("decode output metadata: %w", err)
		}
	}
	return v, nil
}
