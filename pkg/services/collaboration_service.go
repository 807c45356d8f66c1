package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/collaboration"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/collaboration/crdt"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/events"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/repository"
)

// CollaborationService coordinates presence, change broadcasting, conflict
// detection and resolution, and membership for shared estimates.
type CollaborationService interface {
	// InitializeCollaboration joins a user to an estimate's live session.
	// The first user to ever join an estimate becomes its owner.
	InitializeCollaboration(ctx context.Context, estimateID string, profile models.CollaboratorPresence) (*models.CollaborationSession, error)

	// BroadcastChange validates, conflict-checks, commits, persists, and
	// publishes one field-level change. An empty changeType means a field
	// update. A detected conflict is saved and returned inside a
	// ConflictError; the change is not committed.
	BroadcastChange(ctx context.Context, estimateID, userID, stepID, fieldPath string, oldValue, newValue interface{}, changeType models.ChangeType) (*models.RealTimeChange, error)

	// ScheduleChange debounces BroadcastChange per (estimate, field): only
	// the final value of a burst is committed as a field update.
	// Fire-and-forget.
	ScheduleChange(estimateID, userID, stepID, fieldPath string, oldValue, newValue interface{})

	// UpdatePresence applies a presence patch. Fire-and-forget: failures
	// are logged, never returned.
	UpdatePresence(ctx context.Context, estimateID, userID string, patch collaboration.PresencePatch)

	// ResolveConflict settles an open conflict and appends an audit change.
	ResolveConflict(ctx context.Context, estimateID string, conflictID uuid.UUID, resolution models.ConflictResolution, mergedValue interface{}, resolverID string) (*models.RealTimeChange, error)

	// InviteCollaborator records membership for a user by email.
	InviteCollaborator(ctx context.Context, estimateID, inviterID, email string, role models.Role) (*models.Collaborator, error)

	// RemoveCollaborator revokes membership and drops the user's presence.
	RemoveCollaborator(ctx context.Context, estimateID, requesterID, userID string) error

	// LeaveSession drops a user's presence, clears their pending timers and
	// locks, and tears the estimate session down when nobody remains.
	LeaveSession(ctx context.Context, estimateID, userID string) error

	GetUserCursor(ctx context.Context, estimateID, userID string) (*models.Cursor, error)
	GetFieldStatus(ctx context.Context, estimateID, observerID, fieldPath string) (models.FieldStatus, error)
	GetRecentChanges(ctx context.Context, estimateID string, limit int) ([]models.RealTimeChange, error)
	ListOpenConflicts(ctx context.Context, estimateID string) ([]*models.Conflict, error)

	// GetFieldValue returns the converged committed value of one field.
	GetFieldValue(ctx context.Context, estimateID, fieldPath string) (interface{}, bool, error)
	// GetFieldValues returns the converged committed value of every field
	// touched in the session.
	GetFieldValues(ctx context.Context, estimateID string) (map[string]interface{}, error)

	Close()
}

// ChangeEnvelope is the EventChangeBroadcast payload: the committed change
// plus the sending session's vector clock, so receiving sessions can fold
// both into their own state.
type ChangeEnvelope struct {
	Change models.RealTimeChange `json:"change"`
	Clock  crdt.VectorClock      `json:"clock,omitempty"`
}

// estimateSession is the in-process live state for one estimate.
type estimateSession struct {
	presence        *collaboration.PresenceTracker
	log             *collaboration.ChangeLog
	fields          *collaboration.FieldStateStore
	cancelTransport context.CancelFunc
}

type collaborationService struct {
	BaseService
	gate     *collaboration.PermissionGate
	detector *collaboration.ConflictDetector

	collaborators repository.CollaboratorRepository
	changes       repository.ChangeRepository
	conflicts     repository.ConflictRepository

	bus       events.Bus
	transport events.TransportPublisher
	remote    events.TransportSubscriber
	locks     FieldLockService

	breaker  *gobreaker.CircuitBreaker
	debounce *debouncer

	// instanceID marks events this session publishes so the remote pump can
	// drop its own pub/sub echo.
	instanceID string

	heartbeatTimeout time.Duration
	historyLimit     int

	mu       sync.Mutex
	sessions map[string]*estimateSession

	sweepStop chan struct{}
	stopOnce  sync.Once
}

// CollaborationDeps bundles the service's collaborators.
type CollaborationDeps struct {
	Collaborators repository.CollaboratorRepository
	Changes       repository.ChangeRepository
	Conflicts     repository.ConflictRepository
	Bus           events.Bus
	Transport     events.TransportPublisher
	Remote        events.TransportSubscriber
	Locks         FieldLockService

	// HeartbeatTimeout marks a participant inactive when their presence has
	// not refreshed within it. Zero means the 45s default.
	HeartbeatTimeout time.Duration

	// DebounceWindow is the ScheduleChange coalescing window. Zero means
	// the 300ms default.
	DebounceWindow time.Duration

	// HistoryLimit caps the retained per-estimate change history. Zero
	// means collaboration.DefaultHistoryLimit.
	HistoryLimit int
}

// NewCollaborationService creates the collaboration service and starts its
// presence sweeper.
func NewCollaborationService(config ServiceConfig, deps CollaborationDeps) CollaborationService {
	if deps.HeartbeatTimeout <= 0 {
		deps.HeartbeatTimeout = 45 * time.Second
	}
	if deps.DebounceWindow <= 0 {
		deps.DebounceWindow = 300 * time.Millisecond
	}
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = collaboration.DefaultHistoryLimit
	}

	s := &collaborationService{
		BaseService:      NewBaseService(config),
		gate:             collaboration.NewPermissionGate(),
		detector:         collaboration.NewConflictDetector(),
		collaborators:    deps.Collaborators,
		changes:          deps.Changes,
		conflicts:        deps.Conflicts,
		bus:              deps.Bus,
		transport:        deps.Transport,
		remote:           deps.Remote,
		locks:            deps.Locks,
		debounce:         newDebouncer(deps.DebounceWindow),
		instanceID:       uuid.New().String(),
		heartbeatTimeout: deps.HeartbeatTimeout,
		historyLimit:     deps.HistoryLimit,
		sessions:         make(map[string]*estimateSession),
		sweepStop:        make(chan struct{}),
	}

	if config.CircuitBreaker != nil {
		s.breaker = gobreaker.NewCircuitBreaker(*config.CircuitBreaker)
	}

	go s.sweepLoop()

	return s
}

func (s *collaborationService) InitializeCollaboration(ctx context.Context, estimateID string, profile models.CollaboratorPresence) (*models.CollaborationSession, error) {
	ctx, span := s.config.Tracer(ctx, "CollaborationService.InitializeCollaboration")
	defer span.End()

	role, err := s.resolveRole(ctx, estimateID, &profile)
	if err != nil {
		return nil, err
	}
	profile.Role = role

	sess := s.session(ctx, estimateID)
	presence := sess.presence.Join(profile.UserID, profile)

	s.publish(ctx, events.NewEvent(events.EventParticipantJoined, estimateID, profile.UserID, presence))
	s.config.Metrics.IncrementCounter("collaboration.session.joined", 1)

	return &models.CollaborationSession{
		EstimateID:   estimateID,
		UserID:       profile.UserID,
		Role:         role,
		Permissions:  s.gate.PermissionsForRole(role),
		Participants: sess.presence.List(),
		StartedAt:    time.Now(),
	}, nil
}

func (s *collaborationService) BroadcastChange(ctx context.Context, estimateID, userID, stepID, fieldPath string, oldValue, newValue interface{}, changeType models.ChangeType) (*models.RealTimeChange, error) {
	ctx, span := s.config.Tracer(ctx, "CollaborationService.BroadcastChange")
	defer span.End()

	if changeType == "" {
		changeType = models.ChangeTypeFieldUpdate
	}
	switch changeType {
	case models.ChangeTypeFieldUpdate, models.ChangeTypeStepNavigation,
		models.ChangeTypeFileUpload, models.ChangeTypeCalculationUpdate:
	default:
		return nil, &ValidationError{Field: "change_type", Message: "unknown change type " + string(changeType)}
	}

	sess := s.session(ctx, estimateID)

	presence, ok := sess.presence.Get(userID)
	if !ok {
		return nil, &NotFoundError{Resource: "session participant", ID: userID}
	}

	if !s.gate.CanEdit(presence.Role, fieldPath) {
		return nil, &PermissionError{
			EstimateID: estimateID,
			UserID:     userID,
			Role:       presence.Role,
			Operation:  "edit",
			FieldPath:  fieldPath,
		}
	}

	if open, err := s.openConflictForField(ctx, estimateID, fieldPath); err == nil && open != nil {
		return nil, &ConflictError{Conflict: open}
	}

	change := models.RealTimeChange{
		ID:         uuid.New(),
		EstimateID: estimateID,
		UserID:     userID,
		UserName:   presence.UserName,
		StepID:     stepID,
		FieldPath:  fieldPath,
		OldValue:   oldValue,
		NewValue:   newValue,
		ChangeType: changeType,
		Timestamp:  time.Now(),
	}

	if conflict := s.detector.Check(change, sess.log.ForField(fieldPath)); conflict != nil {
		if err := s.saveConflict(ctx, conflict); err != nil {
			s.config.Logger.Error("Failed to persist conflict", map[string]interface{}{
				"estimate_id": estimateID,
				"field_path":  fieldPath,
				"error":       err.Error(),
			})
		}
		s.publish(ctx, events.NewEvent(events.EventConflictDetected, estimateID, userID, conflict))
		s.config.Metrics.IncrementCounter("collaboration.conflict.detected", 1)
		return nil, &ConflictError{Conflict: conflict}
	}

	s.commitChange(ctx, sess, change)
	return &change, nil
}

func (s *collaborationService) ScheduleChange(estimateID, userID, stepID, fieldPath string, oldValue, newValue interface{}) {
	key := estimateID + "/" + userID + "/" + fieldPath
	s.debounce.Schedule(key, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := s.BroadcastChange(ctx, estimateID, userID, stepID, fieldPath, oldValue, newValue, models.ChangeTypeFieldUpdate); err != nil {
			s.config.Logger.Warn("Debounced change broadcast failed", map[string]interface{}{
				"estimate_id": estimateID,
				"user_id":     userID,
				"field_path":  fieldPath,
				"error":       err.Error(),
			})
		}
	})
}

func (s *collaborationService) UpdatePresence(ctx context.Context, estimateID, userID string, patch collaboration.PresencePatch) {
	ctx, span := s.config.Tracer(ctx, "CollaborationService.UpdatePresence")
	defer span.End()

	sess := s.session(ctx, estimateID)
	sess.presence.Update(userID, patch)

	if presence, ok := sess.presence.Get(userID); ok {
		s.publish(ctx, events.NewEvent(events.EventPresenceUpdated, estimateID, userID, presence))
	}
}

func (s *collaborationService) ResolveConflict(ctx context.Context, estimateID string, conflictID uuid.UUID, resolution models.ConflictResolution, mergedValue interface{}, resolverID string) (*models.RealTimeChange, error) {
	ctx, span := s.config.Tracer(ctx, "CollaborationService.ResolveConflict")
	defer span.End()

	conflict, err := s.getConflict(ctx, conflictID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, conflictNotFound(conflictID)
		}
		return nil, errors.Wrap(err, "failed to load conflict")
	}

	var resolvedValue interface{}
	switch resolution {
	case models.ResolutionAcceptIncoming:
		resolvedValue = conflict.IncomingChange.NewValue
	case models.ResolutionKeepLocal:
		if len(conflict.LocalChanges) == 0 {
			return nil, &ValidationError{Field: "resolution", Message: "conflict has no local change to keep"}
		}
		resolvedValue = conflict.LocalChanges[0].NewValue
	case models.ResolutionMerge:
		if isBlank(mergedValue) {
			return nil, &ValidationError{Field: "merged_value", Message: "merge resolution requires a non-blank merged value"}
		}
		resolvedValue = mergedValue
	default:
		return nil, &ValidationError{Field: "resolution", Message: "unknown resolution strategy " + string(resolution)}
	}

	sess := s.session(ctx, estimateID)

	resolverName := resolverID
	if presence, ok := sess.presence.Get(resolverID); ok {
		resolverName = presence.UserName
	}

	// The audit change keeps history complete; the conflict record itself
	// is removed from the open set.
	change := models.RealTimeChange{
		ID:         uuid.New(),
		EstimateID: estimateID,
		UserID:     resolverID,
		UserName:   resolverName,
		StepID:     conflict.IncomingChange.StepID,
		FieldPath:  conflict.FieldPath,
		OldValue:   conflict.IncomingChange.NewValue,
		NewValue:   resolvedValue,
		ChangeType: models.ChangeTypeFieldUpdate,
		Timestamp:  time.Now(),
	}

	if err := s.deleteConflict(ctx, conflictID); err != nil {
		return nil, errors.Wrap(err, "failed to close conflict")
	}

	s.commitChange(ctx, sess, change)
	s.publish(ctx, events.NewEvent(events.EventConflictResolved, estimateID, resolverID, map[string]interface{}{
		"conflict_id": conflictID,
		"resolution":  resolution,
		"change":      change,
	}))
	s.config.Metrics.IncrementCounter("collaboration.conflict.resolved", 1)

	return &change, nil
}

func (s *collaborationService) InviteCollaborator(ctx context.Context, estimateID, inviterID, email string, role models.Role) (*models.Collaborator, error) {
	ctx, span := s.config.Tracer(ctx, "CollaborationService.InviteCollaborator")
	defer span.End()

	inviter, err := s.getCollaborator(ctx, estimateID, inviterID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "collaborator", ID: inviterID}
		}
		return nil, errors.Wrap(err, "failed to load inviter")
	}
	if !s.gate.PermissionsForRole(inviter.Role).CanShare {
		return nil, &PermissionError{
			EstimateID: estimateID,
			UserID:     inviterID,
			Role:       inviter.Role,
			Operation:  "invite",
		}
	}
	if role != models.RoleOwner && role != models.RoleEditor && role != models.RoleViewer {
		return nil, &ValidationError{Field: "role", Message: "unknown role " + string(role)}
	}

	collaborator := &models.Collaborator{
		EstimateID: estimateID,
		UserID:     uuid.New().String(),
		Email:      email,
		Role:       role,
		InvitedBy:  inviterID,
		JoinedAt:   time.Now(),
	}
	if err := s.addCollaborator(ctx, collaborator); err != nil {
		return nil, errors.Wrap(err, "failed to record invitation")
	}

	s.config.Metrics.IncrementCounter("collaboration.invited", 1)
	return collaborator, nil
}

func (s *collaborationService) RemoveCollaborator(ctx context.Context, estimateID, requesterID, userID string) error {
	ctx, span := s.config.Tracer(ctx, "CollaborationService.RemoveCollaborator")
	defer span.End()

	requester, err := s.getCollaborator(ctx, estimateID, requesterID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Resource: "collaborator", ID: requesterID}
		}
		return errors.Wrap(err, "failed to load requester")
	}
	if !s.gate.PermissionsForRole(requester.Role).CanShare {
		return &PermissionError{
			EstimateID: estimateID,
			UserID:     requesterID,
			Role:       requester.Role,
			Operation:  "remove collaborator",
		}
	}

	if err := s.removeCollaboratorRecord(ctx, estimateID, userID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return errors.Wrap(err, "failed to remove collaborator")
	}

	return s.LeaveSession(ctx, estimateID, userID)
}

func (s *collaborationService) LeaveSession(ctx context.Context, estimateID, userID string) error {
	ctx, span := s.config.Tracer(ctx, "CollaborationService.LeaveSession")
	defer span.End()

	s.debounce.CancelPrefix(estimateID + "/" + userID + "/")

	if s.locks != nil {
		if err := s.locks.ReleaseAllLocks(ctx, estimateID, userID); err != nil {
			s.config.Logger.Warn("Failed to release field locks on leave", map[string]interface{}{
				"estimate_id": estimateID,
				"user_id":     userID,
				"error":       err.Error(),
			})
		}
	}

	s.mu.Lock()
	sess, ok := s.sessions[estimateID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	sess.presence.Leave(userID)
	s.publish(ctx, events.NewEvent(events.EventParticipantLeft, estimateID, userID, nil))

	if len(sess.presence.List()) == 0 {
		s.teardown(estimateID)
	}

	return nil
}

func (s *collaborationService) GetUserCursor(ctx context.Context, estimateID, userID string) (*models.Cursor, error) {
	sess := s.session(ctx, estimateID)
	presence, ok := sess.presence.Get(userID)
	if !ok {
		return nil, &NotFoundError{Resource: "session participant", ID: userID}
	}
	return presence.Cursor, nil
}

func (s *collaborationService) GetFieldStatus(ctx context.Context, estimateID, observerID, fieldPath string) (models.FieldStatus, error) {
	sess := s.session(ctx, estimateID)
	observer, ok := sess.presence.Get(observerID)
	if !ok {
		return "", &NotFoundError{Resource: "session participant", ID: observerID}
	}
	return s.gate.FieldStatusFor(observer, fieldPath, sess.presence.List()), nil
}

func (s *collaborationService) GetFieldValue(ctx context.Context, estimateID, fieldPath string) (interface{}, bool, error) {
	sess := s.session(ctx, estimateID)
	value, ok := sess.fields.Value(fieldPath)
	return value, ok, nil
}

func (s *collaborationService) GetFieldValues(ctx context.Context, estimateID string) (map[string]interface{}, error) {
	sess := s.session(ctx, estimateID)
	return sess.fields.Snapshot(), nil
}

func (s *collaborationService) GetRecentChanges(ctx context.Context, estimateID string, limit int) ([]models.RealTimeChange, error) {
	s.mu.Lock()
	sess, ok := s.sessions[estimateID]
	s.mu.Unlock()
	if ok && sess.log.Len() > 0 {
		return sess.log.Recent(limit), nil
	}

	stored, err := s.listChanges(ctx, estimateID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load change history")
	}
	result := make([]models.RealTimeChange, 0, len(stored))
	for _, c := range stored {
		result = append(result, *c)
	}
	return result, nil
}

func (s *collaborationService) ListOpenConflicts(ctx context.Context, estimateID string) ([]*models.Conflict, error) {
	return s.conflicts.ListOpen(ctx, estimateID)
}

func (s *collaborationService) Close() {
	s.stopOnce.Do(func() { close(s.sweepStop) })
	s.debounce.Close()

	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.teardown(id)
	}
}

// session returns the live state for an estimate, creating it on first use
// and wiring the remote transport subscription.
func (s *collaborationService) session(ctx context.Context, estimateID string) *estimateSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[estimateID]; ok {
		return sess
	}

	sess := &estimateSession{
		presence: collaboration.NewPresenceTracker(s.heartbeatTimeout),
		log:      collaboration.NewChangeLog(s.historyLimit),
		fields:   collaboration.NewFieldStateStore(s.instanceID),
	}
	s.sessions[estimateID] = sess

	if s.remote != nil {
		remoteCtx, cancel := context.WithCancel(context.Background())
		sess.cancelTransport = cancel
		go s.pumpRemote(remoteCtx, estimateID)
	}

	return sess
}

func (s *collaborationService) teardown(estimateID string) {
	s.mu.Lock()
	sess, ok := s.sessions[estimateID]
	if ok {
		delete(s.sessions, estimateID)
	}
	s.mu.Unlock()

	if ok && sess.cancelTransport != nil {
		sess.cancelTransport()
	}
}

// pumpRemote folds events arriving from other sessions of the same estimate
// into the local session state and republishes them onto the local bus.
// Events this session published itself come back over pub/sub and are
// dropped by origin.
func (s *collaborationService) pumpRemote(ctx context.Context, estimateID string) {
	ch, err := s.remote.Subscribe(ctx, estimateID)
	if err != nil {
		s.config.Logger.Warn("Remote subscription failed", map[string]interface{}{
			"estimate_id": estimateID,
			"error":       err.Error(),
		})
		return
	}

	for event := range ch {
		if event.Origin == s.instanceID {
			continue
		}
		if event.Type == events.EventChangeBroadcast {
			if envelope, ok := decodeChangeEnvelope(event.Payload); ok {
				s.applyRemoteChange(estimateID, envelope)
			}
		}
		if s.bus != nil {
			s.bus.Publish(ctx, event)
		}
	}
}

// applyRemoteChange commits a change made in another session so local
// conflict detection and field reads see it. The LWW register orders
// concurrent commits; the change ID dedupes redelivery.
func (s *collaborationService) applyRemoteChange(estimateID string, envelope ChangeEnvelope) {
	s.mu.Lock()
	sess, ok := s.sessions[estimateID]
	s.mu.Unlock()
	if !ok || sess.log.Contains(envelope.Change.ID) {
		return
	}

	sess.fields.MergeRemote(envelope.Clock)
	sess.fields.Commit(envelope.Change)
	sess.log.Append(envelope.Change)
	s.config.Metrics.IncrementCounter("collaboration.change.remote_applied", 1)
}

// decodeChangeEnvelope recovers a ChangeEnvelope from an event payload,
// which is the typed struct in process and a decoded JSON map off the wire.
func decodeChangeEnvelope(payload interface{}) (ChangeEnvelope, bool) {
	switch p := payload.(type) {
	case ChangeEnvelope:
		return p, true
	case *ChangeEnvelope:
		return *p, true
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return ChangeEnvelope{}, false
	}
	var envelope ChangeEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Change.ID == uuid.Nil {
		return ChangeEnvelope{}, false
	}
	return envelope, true
}

func (s *collaborationService) commitChange(ctx context.Context, sess *estimateSession, change models.RealTimeChange) {
	sess.fields.Commit(change)
	sess.log.Append(change)

	if err := s.appendChange(ctx, &change); err != nil {
		s.config.Logger.Error("Failed to persist change", map[string]interface{}{
			"estimate_id": change.EstimateID,
			"field_path":  change.FieldPath,
			"error":       err.Error(),
		})
	}

	s.publish(ctx, events.NewEvent(events.EventChangeBroadcast, change.EstimateID, change.UserID, ChangeEnvelope{
		Change: change,
		Clock:  sess.fields.Clock(),
	}))
	s.config.Metrics.IncrementCounter("collaboration.change.broadcast", 1)
}

// publish fans an event out to the local bus and the remote transport.
// Transport failures degrade to logged warnings.
func (s *collaborationService) publish(ctx context.Context, event *events.Event) {
	event.Origin = s.instanceID
	if s.bus != nil {
		s.bus.Publish(ctx, event)
	}
	if s.transport != nil {
		if err := s.transport.Publish(ctx, event); err != nil {
			terr := &TransportError{Operation: "publish", Err: err}
			s.config.Logger.Warn("Event transport degraded", map[string]interface{}{
				"estimate_id": event.EstimateID,
				"event_type":  string(event.Type),
				"error":       terr.Error(),
			})
			s.config.Metrics.IncrementCounter("collaboration.transport.degraded", 1)
		}
	}
}

// resolveRole finds or establishes the joining user's membership role.
func (s *collaborationService) resolveRole(ctx context.Context, estimateID string, profile *models.CollaboratorPresence) (models.Role, error) {
	record, err := s.getCollaborator(ctx, estimateID, profile.UserID)
	if err == nil {
		return record.Role, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", errors.Wrap(err, "failed to load membership")
	}

	existing, err := s.listCollaborators(ctx, estimateID)
	if err != nil {
		return "", errors.Wrap(err, "failed to list membership")
	}
	if len(existing) > 0 {
		return "", &PermissionError{
			EstimateID: estimateID,
			UserID:     profile.UserID,
			Role:       profile.Role,
			Operation:  "join",
		}
	}

	owner := &models.Collaborator{
		EstimateID: estimateID,
		UserID:     profile.UserID,
		UserName:   profile.UserName,
		Role:       models.RoleOwner,
		JoinedAt:   time.Now(),
	}
	if err := s.addCollaborator(ctx, owner); err != nil {
		return "", errors.Wrap(err, "failed to record owner")
	}
	return models.RoleOwner, nil
}

// Repository writes go through the circuit breaker when one is configured.
// Point lookups bypass it: ErrNotFound is an expected signal there, not a
// backend failure.

func (s *collaborationService) execute(fn func() (interface{}, error)) (interface{}, error) {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Execute(fn)
}

func (s *collaborationService) getCollaborator(ctx context.Context, estimateID, userID string) (*models.Collaborator, error) {
	return s.collaborators.Get(ctx, estimateID, userID)
}

func (s *collaborationService) listCollaborators(ctx context.Context, estimateID string) ([]*models.Collaborator, error) {
	v, err := s.execute(func() (interface{}, error) {
		return s.collaborators.List(ctx, estimateID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*models.Collaborator), nil
}

func (s *collaborationService) addCollaborator(ctx context.Context, collaborator *models.Collaborator) error {
	_, err := s.execute(func() (interface{}, error) {
		return nil, s.collaborators.Add(ctx, collaborator)
	})
	return err
}

func (s *collaborationService) removeCollaboratorRecord(ctx context.Context, estimateID, userID string) error {
	_, err := s.execute(func() (interface{}, error) {
		return nil, s.collaborators.Remove(ctx, estimateID, userID)
	})
	return err
}

func (s *collaborationService) appendChange(ctx context.Context, change *models.RealTimeChange) error {
	_, err := s.execute(func() (interface{}, error) {
		return nil, s.changes.Append(ctx, change)
	})
	return err
}

func (s *collaborationService) listChanges(ctx context.Context, estimateID string, limit int) ([]*models.RealTimeChange, error) {
	v, err := s.execute(func() (interface{}, error) {
		return s.changes.ListRecent(ctx, estimateID, limit)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*models.RealTimeChange), nil
}

func (s *collaborationService) saveConflict(ctx context.Context, conflict *models.Conflict) error {
	_, err := s.execute(func() (interface{}, error) {
		return nil, s.conflicts.Save(ctx, conflict)
	})
	return err
}

func (s *collaborationService) getConflict(ctx context.Context, id uuid.UUID) (*models.Conflict, error) {
	return s.conflicts.Get(ctx, id)
}

func (s *collaborationService) deleteConflict(ctx context.Context, id uuid.UUID) error {
	_, err := s.execute(func() (interface{}, error) {
		return nil, s.conflicts.Delete(ctx, id)
	})
	return err
}

func (s *collaborationService) openConflictForField(ctx context.Context, estimateID, fieldPath string) (*models.Conflict, error) {
	return s.conflicts.OpenForField(ctx, estimateID, fieldPath)
}

func (s *collaborationService) sweepLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepPresence()
		case <-s.sweepStop:
			return
		}
	}
}

func (s *collaborationService) sweepPresence() {
	s.mu.Lock()
	sessions := make(map[string]*estimateSession, len(s.sessions))
	for id, sess := range s.sessions {
		sessions[id] = sess
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for estimateID, sess := range sessions {
		for _, userID := range sess.presence.SweepInactive() {
			if presence, ok := sess.presence.Get(userID); ok {
				s.publish(ctx, events.NewEvent(events.EventPresenceUpdated, estimateID, userID, presence))
			}
		}
	}
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	if str, ok := v.(string); ok {
		return strings.TrimSpace(str) == ""
	}
	return false
}
