package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies a collaborator's capability level on an estimate
type Role string

// Collaborator roles
const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ChangeType categorizes a real-time change event
type ChangeType string

const (
	ChangeTypeFieldUpdate       ChangeType = "field_update"
	ChangeTypeStepNavigation    ChangeType = "step_navigation"
	ChangeTypeFileUpload        ChangeType = "file_upload"
	ChangeTypeCalculationUpdate ChangeType = "calculation_update"
)

// FieldStatus describes how a field appears to a particular observer
type FieldStatus string

const (
	FieldStatusAvailable FieldStatus = "available"
	FieldStatusEditing   FieldStatus = "editing"
	FieldStatusLocked    FieldStatus = "locked"
)

// Cursor records which step and field a collaborator is focused on.
// FieldID is empty when the user has no field focused (cleared on blur).
type Cursor struct {
	FieldID string `json:"field_id,omitempty"`
	StepID  string `json:"step_id"`
}

// CollaboratorPresence is the live record of a connected user's activity
// on a shared estimate. One exists per connected user per estimate.
type CollaboratorPresence struct {
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	Avatar      string    `json:"avatar,omitempty"`
	CurrentStep int       `json:"current_step"`
	Role        Role      `json:"role"`
	Cursor      *Cursor   `json:"cursor,omitempty"`
	IsActive    bool      `json:"is_active"`
	LastSeen    time.Time `json:"last_seen"`
}

// ChangeMetadata carries optional provenance for a change
type ChangeMetadata struct {
	IsAIGenerated bool    `json:"is_ai_generated,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`
}

// RealTimeChange is an immutable field-level mutation record. Once created
// it is never modified; conflict resolution appends a new change instead.
type RealTimeChange struct {
	ID         uuid.UUID       `json:"id"`
	EstimateID string          `json:"estimate_id"`
	UserID     string          `json:"user_id"`
	UserName   string          `json:"user_name"`
	StepID     string          `json:"step_id"`
	FieldPath  string          `json:"field_path"`
	OldValue   interface{}     `json:"old_value"`
	NewValue   interface{}     `json:"new_value"`
	ChangeType ChangeType      `json:"change_type"`
	Timestamp  time.Time       `json:"timestamp"`
	Metadata   *ChangeMetadata `json:"metadata,omitempty"`
}

// ConflictResolution names the strategy applied to settle a conflict
type ConflictResolution string

const (
	ResolutionAcceptIncoming ConflictResolution = "accept_incoming"
	ResolutionKeepLocal      ConflictResolution = "keep_local"
	ResolutionMerge          ConflictResolution = "merge"
)

// Conflict records two uncoordinated writes to the same field. A field path
// carries at most one open conflict at a time; resolution removes it.
type Conflict struct {
	ID             uuid.UUID        `json:"id"`
	EstimateID     string           `json:"estimate_id"`
	FieldPath      string           `json:"field_path"`
	LocalChanges   []RealTimeChange `json:"local_changes"`
	IncomingChange RealTimeChange   `json:"incoming_change"`
	ConflictTime   time.Time        `json:"conflict_time"`
}

// CollaborationPermissions is the per-role permission set derived once at
// session join and re-derived only on role change.
type CollaborationPermissions struct {
	CanEdit          bool     `json:"can_edit"`
	CanComment       bool     `json:"can_comment"`
	CanShare         bool     `json:"can_share"`
	CanDelete        bool     `json:"can_delete"`
	AllowedSteps     []int    `json:"allowed_steps"`
	RestrictedFields []string `json:"restricted_fields"`
}

// Collaborator is a persisted membership record for an estimate
type Collaborator struct {
	EstimateID string    `json:"estimate_id" db:"estimate_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	UserName   string    `json:"user_name" db:"user_name"`
	Email      string    `json:"email" db:"email"`
	Role       Role      `json:"role" db:"role"`
	InvitedBy  string    `json:"invited_by,omitempty" db:"invited_by"`
	JoinedAt   time.Time `json:"joined_at" db:"joined_at"`
}

// CollaborationSession is the per-user live session on an estimate
type CollaborationSession struct {
	EstimateID   string                   `json:"estimate_id"`
	UserID       string                   `json:"user_id"`
	Role         Role                     `json:"role"`
	Permissions  CollaborationPermissions `json:"permissions"`
	Participants []CollaboratorPresence   `json:"participants"`
	StartedAt    time.Time                `json:"started_at"`
}
