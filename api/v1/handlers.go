package v1

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/skywatch/backend/internal/orchestrator"
	"github.com/skywatch/backend/pkg/assessment"
	"github.com/skywatch/backend/pkg/common"
	"github.com/skywatch/backend/pkg/threat"
)

// Handler carries the API surface dependencies.
type Handler struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

// NewHandler creates the v1 handler set.
func NewHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *Handler {
	return &Handler{orch: orch, logger: logger}
}

// startRequest is the body of POST /assessments. A caller may pin its own
// session id for idempotent retries; include_predictions defaults to true.
type startRequest struct {
	Events             []*threat.Event `json:"events" binding:"required"`
	Sources            []string        `json:"sources"`
	LookbackDays       int             `json:"lookback_days"`
	SessionID          string          `json:"session_id"`
	IncludePredictions *bool           `json:"include_predictions"`
}

// StartAssessment launches a session and returns its id immediately.
func (h *Handler) StartAssessment(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "malformed request body",
			"code":  common.CodeValidation,
		})
		return
	}

	includePredictions := true
	if req.IncludePredictions != nil {
		includePredictions = *req.IncludePredictions
	}

	sessionID, err := h.orch.Start(req.Events, orchestrator.StartOptions{
		SessionID:          req.SessionID,
		Sources:            req.Sources,
		LookbackDays:       req.LookbackDays,
		IncludePredictions: includePredictions,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"session_id": sessionID,
		"status":     string(assessment.StatusPending),
	})
}

// GetStatus returns the session's phase, status, and metrics without the
// full result payload.
func (h *Handler) GetStatus(c *gin.Context) {
	session, err := h.orch.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": session.SessionID,
		"phase":      session.Phase,
		"status":     session.Status,
		"metrics":    session.Metrics,
		"errors":     session.Errors,
		"warnings":   session.Warnings,
		"started_at": session.StartedAt,
		"ended_at":   session.EndedAt,
	})
}

// GetResults returns the session once it is terminal. ?format=full (the
// default) returns the whole session; ?format=summary returns the per-threat
// final levels without the underlying engine output.
func (h *Handler) GetResults(c *gin.Context) {
	format := c.DefaultQuery("format", "full")
	if format != "full" && format != "summary" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "format must be full or summary",
			"code":  common.CodeValidation,
		})
		return
	}

	session, err := h.orch.GetResults(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	if format == "summary" {
		c.JSON(http.StatusOK, summarizeSession(session))
		return
	}
	c.JSON(http.StatusOK, session)
}

// threatSummary is the condensed per-threat result shape.
type threatSummary struct {
	FinalPriority      assessment.PriorityLevel `json:"final_priority"`
	FinalRisk          assessment.RiskLevel     `json:"final_risk"`
	FinalSeverity      float64                  `json:"final_severity"`
	RequiresMonitoring bool                     `json:"requires_monitoring"`
	ActionItems        []string                 `json:"action_items,omitempty"`
}

func summarizeSession(session *assessment.OrchestrationSession) gin.H {
	threats := make(map[string]threatSummary, len(session.Assessments))
	for id, ca := range session.Assessments {
		threats[id] = threatSummary{
			FinalPriority:      ca.FinalPriority,
			FinalRisk:          ca.FinalRisk,
			FinalSeverity:      ca.FinalSeverity,
			RequiresMonitoring: ca.RequiresMonitoring,
			ActionItems:        ca.ActionItems,
		}
	}
	return gin.H{
		"session_id": session.SessionID,
		"status":     session.Status,
		"metrics":    session.Metrics,
		"threats":    threats,
	}
}

// cleanupRequest is the body of POST /assessments/cleanup.
type cleanupRequest struct {
	MaxAgeHours float64 `json:"max_age_hours"`
}

// Cleanup removes finished sessions older than the requested age.
func (h *Handler) Cleanup(c *gin.Context) {
	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MaxAgeHours <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "max_age_hours must be a positive number",
			"code":  common.CodeValidation,
		})
		return
	}
	removed := h.orch.Cleanup(time.Duration(req.MaxAgeHours * float64(time.Hour)))
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// TopPriorities returns the n highest-ranked threats from the queue.
func (h *Handler) TopPriorities(c *gin.Context) {
	n := 10
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "n must be a positive integer",
				"code":  common.CodeValidation,
			})
			return
		}
		n = parsed
	}
	c.JSON(http.StatusOK, gin.H{"priorities": h.orch.Queue().Top(n)})
}

// PrioritiesByLevel lists every queued threat at the given level.
func (h *Handler) PrioritiesByLevel(c *gin.Context) {
	level := assessment.PriorityLevel(c.Param("level"))
	switch level {
	case assessment.PriorityCritical, assessment.PriorityHigh, assessment.PriorityMedium,
		assessment.PriorityLow, assessment.PriorityMinimal:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown priority level",
			"code":  common.CodeValidation,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"priorities": h.orch.Queue().ByLevel(level)})
}

// Health reports pipeline liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Health(c.Request.Context()))
}

// respondError maps the error taxonomy onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := common.CodeFatal

	var perr *common.PipelineError
	if errors.As(err, &perr) {
		code = perr.Code
		switch perr.Code {
		case common.CodeValidation:
			status = http.StatusBadRequest
		case common.CodeNotFound:
			status = http.StatusNotFound
		case common.CodeNotReady:
			// Polling a running session is not a client error.
			status = http.StatusConflict
		case common.CodeProvider:
			status = http.StatusServiceUnavailable
		}
	}

	h.logger.Warn("request failed",
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.String("code", code),
		zap.Error(err),
	)
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
