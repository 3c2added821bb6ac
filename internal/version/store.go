package version

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/designaudit/internal/domain"
)

// Store persists design versions.
//
// Insert must reject a version whose number is not the project's latest
// number plus one (ECONFLICT) and must clear the previous current flag in the
// same atomic write, so that at most one version per project is current.
type Store interface {
	LatestVersionNumber(ctx context.Context, projectID string) (int, error)
	Insert(ctx context.Context, v *domain.DesignVersion) error
	Get(ctx context.Context, id uuid.UUID) (*domain.DesignVersion, error)
	ListByProject(ctx context.Context, projectID string) ([]*domain.DesignVersion, error)
	Approve(ctx context.Context, id uuid.UUID, approvedBy string, at time.Time) (bool, error)
}

// MemoryStore keeps versions in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	versions  map[uuid.UUID]*domain.DesignVersion
	byProject map[string][]uuid.UUID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions:  make(map[uuid.UUID]*domain.DesignVersion),
		byProject: make(map[string][]uuid.UUID),
	}
}

func (s *MemoryStore) LatestVersionNumber(_ context.Context, projectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest(projectID), nil
}

func (s *MemoryStore) latest(projectID string) int {
	ids := s.byProject[projectID]
	if len(ids) == 0 {
		return 0
	}
	return s.versions[ids[len(ids)-1]].VersionNumber
}

func (s *MemoryStore) Insert(_ context.Context, v *domain.DesignVersion) error {
	const op = "version.memory.insert"

	s.mu.Lock()
	defer s.mu.Unlock()

	if latest := s.latest(v.ProjectID); v.VersionNumber != latest+1 {
		return domain.Conflict(op, fmt.Sprintf("version %d of project %q already exists", v.VersionNumber, v.ProjectID))
	}
	if _, exists := s.versions[v.ID]; exists {
		return domain.Conflict(op, fmt.Sprintf("version ID %s already exists", v.ID))
	}
	stored, err := deepCopy(v)
	if err != nil {
		return domain.Wrap(err, domain.EINVALID, op, "version cannot be encoded")
	}
	for _, id := range s.byProject[v.ProjectID] {
		s.versions[id].IsCurrent = false
	}
	stored.IsCurrent = true
	s.versions[v.ID] = stored
	s.byProject[v.ProjectID] = append(s.byProject[v.ProjectID], v.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*domain.DesignVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[id]
	if !ok {
		return nil, domain.NotFound("version.memory.get", "version", id.String())
	}
	return deepCopy(v)
}

func (s *MemoryStore) ListByProject(_ context.Context, projectID string) ([]*domain.DesignVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byProject[projectID]
	out := make([]*domain.DesignVersion, 0, len(ids))
	for _, id := range ids {
		v, err := deepCopy(s.versions[id])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

func (s *MemoryStore) Approve(_ context.Context, id uuid.UUID, approvedBy string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[id]
	if !ok {
		return false, nil
	}
	v.IsApproved = true
	v.ApprovedBy = approvedBy
	v.ApprovedAt = &at
	return true, nil
}
