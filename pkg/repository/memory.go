package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
)

// InMemoryCollaboratorRepository is the single-node CollaboratorRepository.
// It backs tests and deployments without a database.
type InMemoryCollaboratorRepository struct {
	mu      sync.RWMutex
	records map[string]map[string]*models.Collaborator // estimateID -> userID
}

// NewInMemoryCollaboratorRepository creates an empty repository
func NewInMemoryCollaboratorRepository() *InMemoryCollaboratorRepository {
	return &InMemoryCollaboratorRepository{records: make(map[string]map[string]*models.Collaborator)}
}

func (r *InMemoryCollaboratorRepository) Add(ctx context.Context, c *models.Collaborator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.records[c.EstimateID] == nil {
		r.records[c.EstimateID] = make(map[string]*models.Collaborator)
	}
	clone := *c
	r.records[c.EstimateID][c.UserID] = &clone
	return nil
}

func (r *InMemoryCollaboratorRepository) Get(ctx context.Context, estimateID, userID string) (*models.Collaborator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.records[estimateID][userID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (r *InMemoryCollaboratorRepository) List(ctx context.Context, estimateID string) ([]*models.Collaborator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Collaborator, 0, len(r.records[estimateID]))
	for _, c := range r.records[estimateID] {
		clone := *c
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *InMemoryCollaboratorRepository) UpdateRole(ctx context.Context, estimateID, userID string, role models.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.records[estimateID][userID]
	if !ok {
		return ErrNotFound
	}
	c.Role = role
	return nil
}

func (r *InMemoryCollaboratorRepository) Remove(ctx context.Context, estimateID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[estimateID][userID]; !ok {
		return ErrNotFound
	}
	delete(r.records[estimateID], userID)
	return nil
}

// InMemoryChangeRepository is the single-node ChangeRepository
type InMemoryChangeRepository struct {
	mu      sync.RWMutex
	changes map[string][]*models.RealTimeChange // estimateID, most recent first
}

// NewInMemoryChangeRepository creates an empty repository
func NewInMemoryChangeRepository() *InMemoryChangeRepository {
	return &InMemoryChangeRepository{changes: make(map[string][]*models.RealTimeChange)}
}

func (r *InMemoryChangeRepository) Append(ctx context.Context, change *models.RealTimeChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *change
	r.changes[change.EstimateID] = append([]*models.RealTimeChange{&clone}, r.changes[change.EstimateID]...)
	return nil
}

func (r *InMemoryChangeRepository) ListRecent(ctx context.Context, estimateID string, limit int) ([]*models.RealTimeChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.changes[estimateID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]*models.RealTimeChange, limit)
	for i := 0; i < limit; i++ {
		clone := *all[i]
		out[i] = &clone
	}
	return out, nil
}

// InMemoryConflictRepository is the single-node ConflictRepository
type InMemoryConflictRepository struct {
	mu        sync.RWMutex
	conflicts map[uuid.UUID]*models.Conflict
}

// NewInMemoryConflictRepository creates an empty repository
func NewInMemoryConflictRepository() *InMemoryConflictRepository {
	return &InMemoryConflictRepository{conflicts: make(map[uuid.UUID]*models.Conflict)}
}

func (r *InMemoryConflictRepository) Save(ctx context.Context, conflict *models.Conflict) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *conflict
	r.conflicts[conflict.ID] = &clone
	return nil
}

func (r *InMemoryConflictRepository) Get(ctx context.Context, id uuid.UUID) (*models.Conflict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conflicts[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (r *InMemoryConflictRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conflicts[id]; !ok {
		return ErrNotFound
	}
	delete(r.conflicts, id)
	return nil
}

func (r *InMemoryConflictRepository) ListOpen(ctx context.Context, estimateID string) ([]*models.Conflict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Conflict
	for _, c := range r.conflicts {
		if c.EstimateID == estimateID {
			clone := *c
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConflictTime.Before(out[j].ConflictTime) })
	return out, nil
}

func (r *InMemoryConflictRepository) OpenForField(ctx context.Context, estimateID, fieldPath string) (*models.Conflict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.conflicts {
		if c.EstimateID == estimateID && c.FieldPath == fieldPath {
			clone := *c
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}
