// Package postgres implements the persistence interfaces over PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/observability"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/repository"
)

// Schema is the DDL for the collaboration tables
const Schema = `
CREATE TABLE IF NOT EXISTS collaborators (
    estimate_id TEXT NOT NULL,
    user_id     TEXT NOT NULL,
    user_name   TEXT NOT NULL DEFAULT '',
    email       TEXT NOT NULL DEFAULT '',
    role        TEXT NOT NULL,
    invited_by  TEXT NOT NULL DEFAULT '',
    joined_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (estimate_id, user_id)
);

CREATE TABLE IF NOT EXISTS changes (
    id          UUID PRIMARY KEY,
    estimate_id TEXT NOT NULL,
    user_id     TEXT NOT NULL,
    user_name   TEXT NOT NULL DEFAULT '',
    step_id     TEXT NOT NULL DEFAULT '',
    field_path  TEXT NOT NULL,
    old_value   JSONB,
    new_value   JSONB,
    change_type TEXT NOT NULL,
    metadata    JSONB,
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_changes_estimate ON changes (estimate_id, created_at DESC);

CREATE TABLE IF NOT EXISTS conflicts (
    id            UUID PRIMARY KEY,
    estimate_id   TEXT NOT NULL,
    field_path    TEXT NOT NULL,
    local_changes JSONB NOT NULL,
    incoming      JSONB NOT NULL,
    detected_at   TIMESTAMPTZ NOT NULL,
    UNIQUE (estimate_id, field_path)
);
`

// CollaboratorRepository is the PostgreSQL CollaboratorRepository
type CollaboratorRepository struct {
	db     *sqlx.DB
	logger observability.Logger
	tracer observability.StartSpanFunc
}

// NewCollaboratorRepository creates a repository over the given database
func NewCollaboratorRepository(db *sqlx.DB, logger observability.Logger, tracer observability.StartSpanFunc) *CollaboratorRepository {
	return &CollaboratorRepository{db: db, logger: logger, tracer: tracer}
}

func (r *CollaboratorRepository) Add(ctx context.Context, c *models.Collaborator) error {
	ctx, span := r.tracer(ctx, "CollaboratorRepository.Add")
	defer span.End()

	query := `
		INSERT INTO collaborators (estimate_id, user_id, user_name, email, role, invited_by, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (estimate_id, user_id)
		DO UPDATE SET user_name = EXCLUDED.user_name, email = EXCLUDED.email, role = EXCLUDED.role`
	_, err := r.db.ExecContext(ctx, query,
		c.EstimateID, c.UserID, c.UserName, c.Email, c.Role, c.InvitedBy, c.JoinedAt)
	return errors.Wrap(err, "failed to add collaborator")
}

func (r *CollaboratorRepository) Get(ctx context.Context, estimateID, userID string) (*models.Collaborator, error) {
	ctx, span := r.tracer(ctx, "CollaboratorRepository.Get")
	defer span.End()

	var c models.Collaborator
	query := `SELECT estimate_id, user_id, user_name, email, role, invited_by, joined_at
		FROM collaborators WHERE estimate_id = $1 AND user_id = $2`
	if err := r.db.GetContext(ctx, &c, query, estimateID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get collaborator")
	}
	return &c, nil
}

func (r *CollaboratorRepository) List(ctx context.Context, estimateID string) ([]*models.Collaborator, error) {
	ctx, span := r.tracer(ctx, "CollaboratorRepository.List")
	defer span.End()

	var out []*models.Collaborator
	query := `SELECT estimate_id, user_id, user_name, email, role, invited_by, joined_at
		FROM collaborators WHERE estimate_id = $1 ORDER BY user_id`
	if err := r.db.SelectContext(ctx, &out, query, estimateID); err != nil {
		return nil, errors.Wrap(err, "failed to list collaborators")
	}
	return out, nil
}

func (r *CollaboratorRepository) UpdateRole(ctx context.Context, estimateID, userID string, role models.Role) error {
	ctx, span := r.tracer(ctx, "CollaboratorRepository.UpdateRole")
	defer span.End()

	res, err := r.db.ExecContext(ctx,
		`UPDATE collaborators SET role = $3 WHERE estimate_id = $1 AND user_id = $2`,
		estimateID, userID, role)
	if err != nil {
		return errors.Wrap(err, "failed to update role")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *CollaboratorRepository) Remove(ctx context.Context, estimateID, userID string) error {
	ctx, span := r.tracer(ctx, "CollaboratorRepository.Remove")
	defer span.End()

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM collaborators WHERE estimate_id = $1 AND user_id = $2`,
		estimateID, userID)
	if err != nil {
		return errors.Wrap(err, "failed to remove collaborator")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type changeRow struct {
	ID         uuid.UUID       `db:"id"`
	EstimateID string          `db:"estimate_id"`
	UserID     string          `db:"user_id"`
	UserName   string          `db:"user_name"`
	StepID     string          `db:"step_id"`
	FieldPath  string          `db:"field_path"`
	OldValue   []byte          `db:"old_value"`
	NewValue   []byte          `db:"new_value"`
	ChangeType string          `db:"change_type"`
	Metadata   json.RawMessage `db:"metadata"`
	CreatedAt  time.Time       `db:"created_at"`
}

// ChangeRepository is the PostgreSQL ChangeRepository
type ChangeRepository struct {
	db     *sqlx.DB
	logger observability.Logger
	tracer observability.StartSpanFunc
}

// NewChangeRepository creates a repository over the given database
func NewChangeRepository(db *sqlx.DB, logger observability.Logger, tracer observability.StartSpanFunc) *ChangeRepository {
	return &ChangeRepository{db: db, logger: logger, tracer: tracer}
}

func (r *ChangeRepository) Append(ctx context.Context, change *models.RealTimeChange) error {
	ctx, span := r.tracer(ctx, "ChangeRepository.Append")
	defer span.End()

	oldValue, err := json.Marshal(change.OldValue)
	if err != nil {
		return errors.Wrap(err, "failed to marshal old value")
	}
	newValue, err := json.Marshal(change.NewValue)
	if err != nil {
		return errors.Wrap(err, "failed to marshal new value")
	}
	var metadata []byte
	if change.Metadata != nil {
		if metadata, err = json.Marshal(change.Metadata); err != nil {
			return errors.Wrap(err, "failed to marshal metadata")
		}
	}

	query := `
		INSERT INTO changes (id, estimate_id, user_id, user_name, step_id, field_path,
			old_value, new_value, change_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = r.db.ExecContext(ctx, query,
		change.ID, change.EstimateID, change.UserID, change.UserName, change.StepID,
		change.FieldPath, oldValue, newValue, change.ChangeType, metadata, change.Timestamp)
	return errors.Wrap(err, "failed to append change")
}

func (r *ChangeRepository) ListRecent(ctx context.Context, estimateID string, limit int) ([]*models.RealTimeChange, error) {
	ctx, span := r.tracer(ctx, "ChangeRepository.ListRecent")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	var rows []changeRow
	query := `SELECT id, estimate_id, user_id, user_name, step_id, field_path,
			old_value, new_value, change_type, metadata, created_at
		FROM changes WHERE estimate_id = $1 ORDER BY created_at DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &rows, query, estimateID, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list changes")
	}

	out := make([]*models.RealTimeChange, 0, len(rows))
	for _, row := range rows {
		change, err := row.toModel()
		if err != nil {
			r.logger.Warn("Skipping unreadable change row", map[string]interface{}{
				"change_id": row.ID,
				"error":     err.Error(),
			})
			continue
		}
		out = append(out, change)
	}
	return out, nil
}

func (row changeRow) toModel() (*models.RealTimeChange, error) {
	change := &models.RealTimeChange{
		ID:         row.ID,
		EstimateID: row.EstimateID,
		UserID:     row.UserID,
		UserName:   row.UserName,
		StepID:     row.StepID,
		FieldPath:  row.FieldPath,
		ChangeType: models.ChangeType(row.ChangeType),
		Timestamp:  row.CreatedAt,
	}
	if len(row.OldValue) > 0 {
		if err := json.Unmarshal(row.OldValue, &change.OldValue); err != nil {
			return nil, err
		}
	}
	if len(row.NewValue) > 0 {
		if err := json.Unmarshal(row.NewValue, &change.NewValue); err != nil {
			return nil, err
		}
	}
	if len(row.Metadata) > 0 {
		change.Metadata = &models.ChangeMetadata{}
		if err := json.Unmarshal(row.Metadata, change.Metadata); err != nil {
			return nil, err
		}
	}
	return change, nil
}

type conflictRow struct {
	ID           uuid.UUID `db:"id"`
	EstimateID   string    `db:"estimate_id"`
	FieldPath    string    `db:"field_path"`
	LocalChanges []byte    `db:"local_changes"`
	Incoming     []byte    `db:"incoming"`
	DetectedAt   time.Time `db:"detected_at"`
}

// ConflictRepository is the PostgreSQL ConflictRepository
type ConflictRepository struct {
	db     *sqlx.DB
	logger observability.Logger
	tracer observability.StartSpanFunc
}

// NewConflictRepository creates a repository over the given database
func NewConflictRepository(db *sqlx.DB, logger observability.Logger, tracer observability.StartSpanFunc) *ConflictRepository {
	return &ConflictRepository{db: db, logger: logger, tracer: tracer}
}

func (r *ConflictRepository) Save(ctx context.Context, conflict *models.Conflict) error {
	ctx, span := r.tracer(ctx, "ConflictRepository.Save")
	defer span.End()

	localChanges, err := json.Marshal(conflict.LocalChanges)
	if err != nil {
		return errors.Wrap(err, "failed to marshal local changes")
	}
	incoming, err := json.Marshal(conflict.IncomingChange)
	if err != nil {
		return errors.Wrap(err, "failed to marshal incoming change")
	}

	query := `
		INSERT INTO conflicts (id, estimate_id, field_path, local_changes, incoming, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (estimate_id, field_path) DO NOTHING`
	_, err = r.db.ExecContext(ctx, query,
		conflict.ID, conflict.EstimateID, conflict.FieldPath, localChanges, incoming, conflict.ConflictTime)
	return errors.Wrap(err, "failed to save conflict")
}

func (r *ConflictRepository) Get(ctx context.Context, id uuid.UUID) (*models.Conflict, error) {
	ctx, span := r.tracer(ctx, "ConflictRepository.Get")
	defer span.End()

	var row conflictRow
	query := `SELECT id, estimate_id, field_path, local_changes, incoming, detected_at
		FROM conflicts WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get conflict")
	}
	return row.toModel()
}

func (r *ConflictRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := r.tracer(ctx, "ConflictRepository.Delete")
	defer span.End()

	res, err := r.db.ExecContext(ctx, `DELETE FROM conflicts WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete conflict")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *ConflictRepository) ListOpen(ctx context.Context, estimateID string) ([]*models.Conflict, error) {
	ctx, span := r.tracer(ctx, "ConflictRepository.ListOpen")
	defer span.End()

	var rows []conflictRow
	query := `SELECT id, estimate_id, field_path, local_changes, incoming, detected_at
		FROM conflicts WHERE estimate_id = $1 ORDER BY detected_at`
	if err := r.db.SelectContext(ctx, &rows, query, estimateID); err != nil {
		return nil, errors.Wrap(err, "failed to list conflicts")
	}

	out := make([]*models.Conflict, 0, len(rows))
	for _, row := range rows {
		conflict, err := row.toModel()
		if err != nil {
			r.logger.Warn("Skipping unreadable conflict row", map[string]interface{}{
				"conflict_id": row.ID,
				"error":       err.Error(),
			})
			continue
		}
		out = append(out, conflict)
	}
	return out, nil
}

func (r *ConflictRepository) OpenForField(ctx context.Context, estimateID, fieldPath string) (*models.Conflict, error) {
	ctx, span := r.tracer(ctx, "ConflictRepository.OpenForField")
	defer span.End()

	var row conflictRow
	query := `SELECT id, estimate_id, field_path, local_changes, incoming, detected_at
		FROM conflicts WHERE estimate_id = $1 AND field_path = $2`
	if err := r.db.GetContext(ctx, &row, query, estimateID, fieldPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get open conflict")
	}
	return row.toModel()
}

func (row conflictRow) toModel() (*models.Conflict, error) {
	conflict := &models.Conflict{
		ID:           row.ID,
		EstimateID:   row.EstimateID,
		FieldPath:    row.FieldPath,
		ConflictTime: row.DetectedAt,
	}
	if err := json.Unmarshal(row.LocalChanges, &conflict.LocalChanges); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal local changes")
	}
	if err := json.Unmarshal(row.Incoming, &conflict.IncomingChange); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal incoming change")
	}
	return conflict, nil
}
