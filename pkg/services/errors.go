package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
)

// PermissionError is returned when a collaborator attempts an operation
// their role does not allow.
type PermissionError struct {
	EstimateID string
	UserID     string
	Role       models.Role
	Operation  string
	FieldPath  string
}

func (e *PermissionError) Error() string {
	if e.FieldPath != "" {
		return fmt.Sprintf("user %s (role %s) cannot %s field %s on estimate %s",
			e.UserID, e.Role, e.Operation, e.FieldPath, e.EstimateID)
	}
	return fmt.Sprintf("user %s (role %s) cannot %s on estimate %s",
		e.UserID, e.Role, e.Operation, e.EstimateID)
}

// ConflictError is returned when a broadcast change collides with recent
// changes from other collaborators. The unresolved conflict is attached so
// callers can surface it for resolution.
type ConflictError struct {
	Conflict *models.Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting edits on field %s of estimate %s",
		e.Conflict.FieldPath, e.Conflict.EstimateID)
}

// ValidationError is returned when input to a service operation is malformed.
// Cross-step rule findings are reported through models.ValidationResult, not
// through this type.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NotFoundError is returned when a referenced entity does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// TransportError wraps failures of the underlying broadcast transport.
type TransportError struct {
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FieldLockConflictError is returned when a field lock is held by another
// collaborator.
type FieldLockConflictError struct {
	EstimateID    string
	FieldPath     string
	CurrentHolder string
	ExpiresAt     time.Time
}

func (e *FieldLockConflictError) Error() string {
	return fmt.Sprintf("field %s of estimate %s is locked by %s until %s",
		e.FieldPath, e.EstimateID, e.CurrentHolder, e.ExpiresAt.Format(time.RFC3339))
}

// UnauthorizedLockError is returned when a collaborator attempts to release
// or extend a lock they do not hold.
type UnauthorizedLockError struct {
	EstimateID string
	FieldPath  string
	UserID     string
	OwnerID    string
}

func (e *UnauthorizedLockError) Error() string {
	return fmt.Sprintf("user %s cannot release lock on %s of estimate %s held by %s",
		e.UserID, e.FieldPath, e.EstimateID, e.OwnerID)
}

// LockRefreshLimitError is returned when a lock has been extended too many
// times without being released.
type LockRefreshLimitError struct {
	EstimateID   string
	FieldPath    string
	RefreshCount int
	MaxRefresh   int
}

func (e *LockRefreshLimitError) Error() string {
	return fmt.Sprintf("lock refresh limit exceeded for field %s of estimate %s (%d/%d)",
		e.FieldPath, e.EstimateID, e.RefreshCount, e.MaxRefresh)
}

// conflictNotFound builds a NotFoundError for a conflict id.
func conflictNotFound(id uuid.UUID) *NotFoundError {
	return &NotFoundError{Resource: "conflict", ID: id.String()}
}
