package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"trolley-pm/internal/analyzer"
	"trolley-pm/internal/model"
	"trolley-pm/internal/scheduler"
	"trolley-pm/internal/store"
)

// ListTrolleys handles GET /api/trolleys.
func (h *Handler) ListTrolleys(c *gin.Context) {
	asOf, ok := h.asOf(c)
	if !ok {
		return
	}
	fleet, err := h.engine.Fleet(c.Request.Context(), asOf)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fleet)
}

type registerRequest struct {
	ID string `json:"id" binding:"required"`
}

// RegisterTrolley handles POST /api/trolleys.
func (h *Handler) RegisterTrolley(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	identity, err := h.engine.Register(c.Request.Context(), req.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, identity)
}

// GetTrolley handles GET /api/trolleys/:id. Historical aliases resolve to
// the same lineage as the current id.
func (h *Handler) GetTrolley(c *gin.Context) {
	identity, err := h.engine.Identity(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, identity)
}

type remapRequest struct {
	NewID         string `json:"new_id" binding:"required"`
	EffectiveDate string `json:"effective_date"`
	Reason        string `json:"reason"`
	Note          string `json:"note"`
}

// RemapTrolley handles POST /api/trolleys/:id/remap.
func (h *Handler) RemapTrolley(c *gin.Context) {
	var req remapRequest
	if !bindJSON(c, &req) {
		return
	}
	effective, err := dateOr(req.EffectiveDate, h.engine.Today())
	if err != nil {
		badRequest(c, "effective_date: %v", err)
		return
	}
	identity, err := h.engine.Remap(c.Request.Context(), store.RemapInput{
		OldID:         c.Param("id"),
		NewID:         req.NewID,
		EffectiveDate: effective,
		Reason:        req.Reason,
		Note:          req.Note,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, identity)
}

// LookupTrolley handles GET /api/trolleys/:id/lookup.
func (h *Handler) LookupTrolley(c *gin.Context) {
	asOf, ok := h.asOf(c)
	if !ok {
		return
	}
	lookup, err := h.engine.Lookup(c.Request.Context(), c.Param("id"), asOf)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lookup)
}

type statusResponse struct {
	TrolleyID string           `json:"trolley_id"`
	AsOf      time.Time        `json:"as_of"`
	Status    scheduler.Status `json:"status"`
	NextDue   *time.Time       `json:"next_due"`
}

// GetStatus handles GET /api/trolleys/:id/status.
func (h *Handler) GetStatus(c *gin.Context) {
	asOf, ok := h.asOf(c)
	if !ok {
		return
	}
	ctx, id := c.Request.Context(), c.Param("id")
	status, err := h.engine.Status(ctx, id, asOf)
	if err != nil {
		writeError(c, err)
		return
	}
	due, err := h.engine.NextDue(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{TrolleyID: id, AsOf: asOf, Status: status, NextDue: due})
}

// GetNextDue handles GET /api/trolleys/:id/next_due. next_due is null for
// never-serviced and scrapped trolleys.
func (h *Handler) GetNextDue(c *gin.Context) {
	due, err := h.engine.NextDue(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trolley_id": c.Param("id"), "next_due": due})
}

type failureCountResponse struct {
	TrolleyID      string          `json:"trolley_id"`
	Category       *model.Category `json:"category"`
	Count          int             `json:"count"`
	Threshold      int             `json:"threshold"`
	RepeatOffender bool            `json:"repeat_offender"`
}

// GetFailureCount handles GET /api/trolleys/:id/failures/count. The optional
// category narrows the count; threshold overrides the configured one.
func (h *Handler) GetFailureCount(c *gin.Context) {
	cat, ok := category(c)
	if !ok {
		return
	}
	threshold, ok := intQuery(c, "threshold")
	if !ok {
		return
	}
	ctx, id := c.Request.Context(), c.Param("id")
	count, err := h.engine.FailureCount(ctx, id, cat)
	if err != nil {
		writeError(c, err)
		return
	}
	repeat, err := h.engine.IsRepeatOffender(ctx, id, threshold)
	if err != nil {
		writeError(c, err)
		return
	}
	if threshold == 0 {
		threshold = h.engine.RepeatThreshold()
	}
	c.JSON(http.StatusOK, failureCountResponse{
		TrolleyID:      id,
		Category:       cat,
		Count:          count,
		Threshold:      threshold,
		RepeatOffender: repeat,
	})
}

// GetAlert handles GET /api/trolleys/:id/alert. alert is null below the
// repeat threshold.
func (h *Handler) GetAlert(c *gin.Context) {
	alert, err := h.engine.Alert(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, struct {
		Alert *analyzer.Alert `json:"alert"`
	}{alert})
}

// GetRisk handles GET /api/trolleys/:id/risk.
func (h *Handler) GetRisk(c *gin.Context) {
	asOf, ok := h.asOf(c)
	if !ok {
		return
	}
	assessment, err := h.engine.RiskAssessment(c.Request.Context(), c.Param("id"), asOf)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}

// GetRecords handles GET /api/trolleys/:id/records. kind is required; the
// range is half-open and either bound may be omitted.
func (h *Handler) GetRecords(c *gin.Context) {
	kind, err := store.ParseRecordKind(c.Query("kind"))
	if err != nil {
		writeError(c, err)
		return
	}
	r, ok := dateRange(c)
	if !ok {
		return
	}
	records, err := h.engine.Query(c.Request.Context(), c.Param("id"), kind, r)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetTrolleyCost handles GET /api/trolleys/:id/cost.
func (h *Handler) GetTrolleyCost(c *gin.Context) {
	r, ok := dateRange(c)
	if !ok {
		return
	}
	total, err := h.engine.TotalCost(c.Request.Context(), c.Param("id"), r)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trolley_id": c.Param("id"), "total": total})
}
