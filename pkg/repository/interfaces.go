// Package repository defines persistence for collaborator roles, change
// history, and conflict records, queryable by estimate.
package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// CollaboratorRepository stores estimate membership and roles
type CollaboratorRepository interface {
	Add(ctx context.Context, collaborator *models.Collaborator) error
	Get(ctx context.Context, estimateID, userID string) (*models.Collaborator, error)
	List(ctx context.Context, estimateID string) ([]*models.Collaborator, error)
	UpdateRole(ctx context.Context, estimateID, userID string, role models.Role) error
	Remove(ctx context.Context, estimateID, userID string) error
}

// ChangeRepository stores the durable change history
type ChangeRepository interface {
	Append(ctx context.Context, change *models.RealTimeChange) error
	ListRecent(ctx context.Context, estimateID string, limit int) ([]*models.RealTimeChange, error)
}

// ConflictRepository stores open conflict records
type ConflictRepository interface {
	Save(ctx context.Context, conflict *models.Conflict) error
	Get(ctx context.Context, id uuid.UUID) (*models.Conflict, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListOpen(ctx context.Context, estimateID string) ([]*models.Conflict, error)
	OpenForField(ctx context.Context, estimateID, fieldPath string) (*models.Conflict, error)
}
