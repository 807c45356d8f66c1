package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
)

type validateRequest struct {
	Flow        models.GuidedFlowData `json:"flow"`
	ChangedStep string                `json:"changed_step"`

	// DebounceMs > 0 schedules a coalesced run instead of validating inline.
	DebounceMs int `json:"debounce_ms"`
}

func (s *Server) handleValidate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	estimateID := c.Param("estimateID")
	if req.DebounceMs > 0 {
		s.validation.ScheduleValidation(&req.Flow, estimateID, time.Duration(req.DebounceMs)*time.Millisecond)
		c.Status(http.StatusAccepted)
		return
	}

	result := s.validation.ValidateCrossStepData(c.Request.Context(), &req.Flow, estimateID, req.ChangedStep)
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleLastValidation(c *gin.Context) {
	result := s.validation.GetLastResult(c.Request.Context(), c.Param("estimateID"))
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no validation result for estimate"})
		return
	}
	c.JSON(http.StatusOK, result)
}

type pricingRequest struct {
	Flow models.GuidedFlowData `json:"flow"`
}

func (s *Server) handleCalculatePricing(c *gin.Context) {
	var req pricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := s.pricing.CalculateRealTimePricing(c.Request.Context(), &req.Flow, c.Param("estimateID"))
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleLastPricing(c *gin.Context) {
	result := s.pricing.GetLastResult(c.Request.Context(), c.Param("estimateID"))
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pricing result for estimate"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
