package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/collaboration"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/services"
)

type joinSessionRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	UserName string `json:"user_name" binding:"required"`
	Avatar   string `json:"avatar"`
}

func (s *Server) handleJoinSession(c *gin.Context) {
	var req joinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.collab.InitializeCollaboration(c.Request.Context(), c.Param("estimateID"), models.CollaboratorPresence{
		UserID:   req.UserID,
		UserName: req.UserName,
		Avatar:   req.Avatar,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (s *Server) handleLeaveSession(c *gin.Context) {
	if err := s.collab.LeaveSession(c.Request.Context(), c.Param("estimateID"), c.Param("userID")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type presenceRequest struct {
	UserName      *string `json:"user_name"`
	Avatar        *string `json:"avatar"`
	CurrentStep   *int    `json:"current_step"`
	CursorStepID  *string `json:"cursor_step_id"`
	CursorFieldID *string `json:"cursor_field_id"`
	IsActive      *bool   `json:"is_active"`
}

func (s *Server) handleUpdatePresence(c *gin.Context) {
	var req presenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.collab.UpdatePresence(c.Request.Context(), c.Param("estimateID"), c.Param("userID"), collaboration.PresencePatch{
		UserName:      req.UserName,
		Avatar:        req.Avatar,
		CurrentStep:   req.CurrentStep,
		CursorStepID:  req.CursorStepID,
		CursorFieldID: req.CursorFieldID,
		IsActive:      req.IsActive,
	})
	c.Status(http.StatusAccepted)
}

func (s *Server) handleGetCursor(c *gin.Context) {
	cursor, err := s.collab.GetUserCursor(c.Request.Context(), c.Param("estimateID"), c.Param("userID"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cursor": cursor})
}

func (s *Server) handleFieldStatus(c *gin.Context) {
	userID := c.Query("user_id")
	fieldPath := c.Query("field_path")
	if userID == "" || fieldPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and field_path are required"})
		return
	}

	status, err := s.collab.GetFieldStatus(c.Request.Context(), c.Param("estimateID"), userID, fieldPath)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"field_path": fieldPath, "status": status})
}

type broadcastChangeRequest struct {
	UserID     string      `json:"user_id" binding:"required"`
	StepID     string      `json:"step_id"`
	FieldPath  string      `json:"field_path" binding:"required"`
	OldValue   interface{} `json:"old_value"`
	NewValue   interface{} `json:"new_value"`
	ChangeType string      `json:"change_type"`
	Debounce   bool        `json:"debounce"`
}

func (s *Server) handleBroadcastChange(c *gin.Context) {
	var req broadcastChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	estimateID := c.Param("estimateID")
	if req.Debounce {
		s.collab.ScheduleChange(estimateID, req.UserID, req.StepID, req.FieldPath, req.OldValue, req.NewValue)
		c.Status(http.StatusAccepted)
		return
	}

	change, err := s.collab.BroadcastChange(c.Request.Context(), estimateID, req.UserID, req.StepID, req.FieldPath, req.OldValue, req.NewValue, models.ChangeType(req.ChangeType))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, change)
}

// handleFieldValues serves the converged committed field state, either the
// whole snapshot or one field when field_path is given.
func (s *Server) handleFieldValues(c *gin.Context) {
	estimateID := c.Param("estimateID")

	if fieldPath := c.Query("field_path"); fieldPath != "" {
		value, ok, err := s.collab.GetFieldValue(c.Request.Context(), estimateID, fieldPath)
		if err != nil {
			s.writeError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "field has no committed value"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"field_path": fieldPath, "value": value})
		return
	}

	values, err := s.collab.GetFieldValues(c.Request.Context(), estimateID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"values": values})
}

func (s *Server) handleRecentChanges(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	changes, err := s.collab.GetRecentChanges(c.Request.Context(), c.Param("estimateID"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

func (s *Server) handleListConflicts(c *gin.Context) {
	conflicts, err := s.collab.ListOpenConflicts(c.Request.Context(), c.Param("estimateID"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": conflicts})
}

type resolveConflictRequest struct {
	Resolution  models.ConflictResolution `json:"resolution" binding:"required"`
	MergedValue interface{}               `json:"merged_value"`
	ResolverID  string                    `json:"resolver_id" binding:"required"`
}

func (s *Server) handleResolveConflict(c *gin.Context) {
	conflictID, err := uuid.Parse(c.Param("conflictID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conflict id"})
		return
	}

	var req resolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	change, err := s.collab.ResolveConflict(c.Request.Context(), c.Param("estimateID"), conflictID, req.Resolution, req.MergedValue, req.ResolverID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, change)
}

type inviteRequest struct {
	InviterID string      `json:"inviter_id" binding:"required"`
	Email     string      `json:"email" binding:"required,email"`
	Role      models.Role `json:"role" binding:"required"`
}

func (s *Server) handleInviteCollaborator(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	collaborator, err := s.collab.InviteCollaborator(c.Request.Context(), c.Param("estimateID"), req.InviterID, req.Email, req.Role)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, collaborator)
}

func (s *Server) handleRemoveCollaborator(c *gin.Context) {
	requesterID := c.Query("requester_id")
	if requesterID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "requester_id is required"})
		return
	}

	if err := s.collab.RemoveCollaborator(c.Request.Context(), c.Param("estimateID"), requesterID, c.Param("userID")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type lockRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	FieldPath   string `json:"field_path" binding:"required"`
	DurationSec int    `json:"duration_seconds"`
}

func (s *Server) handleLockField(c *gin.Context) {
	if s.locks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "field locking is not configured"})
		return
	}

	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lock, err := s.locks.LockField(c.Request.Context(), c.Param("estimateID"), req.FieldPath, req.UserID, secondsToDuration(req.DurationSec))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lock)
}

func (s *Server) handleUnlockField(c *gin.Context) {
	if s.locks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "field locking is not configured"})
		return
	}

	userID := c.Query("user_id")
	fieldPath := c.Query("field_path")
	if userID == "" || fieldPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and field_path are required"})
		return
	}

	if err := s.locks.UnlockField(c.Request.Context(), c.Param("estimateID"), fieldPath, userID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListLocks(c *gin.Context) {
	if s.locks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "field locking is not configured"})
		return
	}

	locks, err := s.locks.GetEstimateLocks(c.Request.Context(), c.Param("estimateID"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locks": locks})
}

// writeError maps the service error taxonomy onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	switch e := err.(type) {
	case *services.PermissionError:
		c.JSON(http.StatusForbidden, gin.H{"error": e.Error()})
	case *services.NotFoundError:
		c.JSON(http.StatusNotFound, gin.H{"error": e.Error()})
	case *services.ValidationError:
		c.JSON(http.StatusBadRequest, gin.H{"error": e.Error()})
	case *services.ConflictError:
		c.JSON(http.StatusConflict, gin.H{"error": e.Error(), "conflict": e.Conflict})
	case *services.FieldLockConflictError:
		c.JSON(http.StatusConflict, gin.H{"error": e.Error()})
	case *services.UnauthorizedLockError:
		c.JSON(http.StatusForbidden, gin.H{"error": e.Error()})
	case *services.LockRefreshLimitError:
		c.JSON(http.StatusConflict, gin.H{"error": e.Error()})
	default:
		s.logger.Error("Unhandled service error", map[string]interface{}{
			"path":  c.Request.URL.Path,
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
