package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/helix-markets/agentfleet/src/data"
	"github.com/helix-markets/agentfleet/src/orchestrator"
	"github.com/helix-markets/agentfleet/src/vault"
)

type handlers struct {
	sup   *orchestrator.Supervisor
	store *data.Store
	log   *log.Logger
}

// apiError maps expected conditions onto machine-readable codes; unexpected
// failures become INTERNAL.
func apiError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrAgentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "UNKNOWN_AGENT", "error": err.Error()})
	case errors.Is(err, orchestrator.ErrApprovalNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "UNKNOWN_APPROVAL", "error": err.Error()})
	case errors.Is(err, orchestrator.ErrApprovalExpired):
		c.JSON(http.StatusConflict, gin.H{"code": "APPROVAL_EXPIRED", "error": err.Error()})
	case errors.Is(err, orchestrator.ErrApprovalNotPending):
		c.JSON(http.StatusConflict, gin.H{"code": "APPROVAL_NOT_PENDING", "error": err.Error()})
	case errors.Is(err, orchestrator.ErrApprovalExists):
		c.JSON(http.StatusConflict, gin.H{"code": "APPROVAL_EXISTS", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": err.Error()})
	}
}

func (h *handlers) initialize(c *gin.Context) {
	if err := h.sup.Initialize(c.Request.Context()); err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type activateRequest struct {
	IntervalMs int64 `json:"interval_ms"`
}

func (h *handlers) activate(c *gin.Context) {
	var req activateRequest
	_ = c.ShouldBindJSON(&req)

	st, err := h.sup.Activate(c.Request.Context(), c.Param("id"), time.Duration(req.IntervalMs)*time.Millisecond)
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handlers) deactivate(c *gin.Context) {
	if err := h.sup.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) health(c *gin.Context) {
	st, err := h.sup.Health(c.Request.Context(), c.Param("id"))
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handlers) healthAll(c *gin.Context) {
	states, err := h.sup.HealthAll(c.Request.Context())
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, states)
}

func (h *handlers) autoHeal(c *gin.Context) {
	res, err := h.sup.AutoHeal(c.Request.Context())
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) stopAll(c *gin.Context) {
	h.sup.StopAll()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) tick(c *gin.Context) {
	rep, err := h.sup.TriggerTick(c.Request.Context(), c.Param("id"))
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *handlers) trades(c *gin.Context) {
	logs, err := h.store.TradeLogs(c.Request.Context(), c.Param("id"), 50)
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (h *handlers) approve(c *gin.Context) {
	rep, err := h.sup.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *handlers) reject(c *gin.Context) {
	rep, err := h.sup.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// maxWithdrawable is the withdrawal pre-check. Callers must re-derive at the
// moment of withdrawal; the response is never cacheable across sessions.
func (h *handlers) maxWithdrawable(c *gin.Context) {
	owner, err := decimal.NewFromString(c.Query("owner_shares"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "error": "owner_shares must be a decimal"})
		return
	}
	total, err := decimal.NewFromString(c.Query("total_shares"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "error": "total_shares must be a decimal"})
		return
	}
	max := vault.MaxWithdrawableShares(owner, total)
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"max_withdrawable_shares": max.String(),
		"floor_percent":           vault.FloorPercent,
	})
}
