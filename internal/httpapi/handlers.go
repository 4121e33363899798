package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"voiceagent-platform/internal/audit"
	"voiceagent-platform/internal/auth"
	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/reporting"
	"voiceagent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth    *auth.Manager
	Calls   *calls.Service
	Audit   *audit.Service
	Reports *reporting.Service
}

// auditLog appends an operator action best-effort. Audit failures are logged
// and never surface to the caller.
func (h Handlers) auditLog(c *gin.Context, fn func(operatorID, role, ip string) error) {
	if h.Audit == nil {
		return
	}
	oid, _ := auth.OperatorID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	if err := fn(oid, role, c.ClientIP()); err != nil {
		logger.FromGin(c).Warn("audit append failed", "err", err)
	}
}

// --- Auth ---

type loginRequest struct {
	OperatorID string `json:"operator_id"`
	Role       string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.OperatorID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "operator_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.OperatorID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

// StartCall dials a customer and returns the new session.
func (h Handlers) StartCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	var req calls.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := h.Calls.Start(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, calls.ErrInvalidPhone):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid phone number"})
		case errors.Is(err, calls.ErrTooManyCalls):
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "concurrent call limit reached"})
		default:
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "call initiation failed"})
		}
		return
	}
	h.auditLog(c, func(operatorID, role, ip string) error {
		return h.Audit.LogCallStarted(c.Request.Context(), operatorID, role, ip, res.SessionID, req.PhoneNumber)
	})
	c.JSON(http.StatusCreated, res)
}

// ListCalls snapshots every registered session.
func (h Handlers) ListCalls(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": h.Calls.List(c.Request.Context())})
}

// GetCall snapshots one session.
func (h Handlers) GetCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	info, err := h.Calls.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// GetConversation returns the user-visible transcript for a call.
func (h Handlers) GetConversation(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	conv, err := h.Calls.Conversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, calls.ErrCallNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "transcript lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

// TerminateCall hangs up a live call on operator request.
func (h Handlers) TerminateCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	err := h.Calls.Terminate(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, calls.ErrCallNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		case errors.Is(err, calls.ErrCallEnded):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already ended"})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "terminate failed"})
		}
		return
	}
	h.auditLog(c, func(operatorID, role, ip string) error {
		return h.Audit.LogCallTerminated(c.Request.Context(), operatorID, role, ip, c.Param("id"))
	})
	c.Status(http.StatusNoContent)
}

// --- Reporting ---

// GetReportSummary aggregates completed calls. Defaults to the last 24 hours
// when no range is given; from/to are RFC 3339 query parameters.
func (h Handlers) GetReportSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}

	now := time.Now().UTC()
	rng := reporting.TimeRange{From: now.Add(-24 * time.Hour), To: now}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return
		}
		rng.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return
		}
		rng.To = t
	}

	sum, err := h.Reports.Summary(c.Request.Context(), reporting.SummaryRequest{Range: rng})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// --- Audit ---

// ListAuditEvents returns the newest operator actions. Admin only.
func (h Handlers) ListAuditEvents(c *gin.Context) {
	if h.Audit == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit not configured"})
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	evs, err := h.Audit.Recent(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}
