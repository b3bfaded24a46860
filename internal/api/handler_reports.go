package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"trolley-pm/internal/cost"
	"trolley-pm/internal/model"
	"trolley-pm/internal/store"
)

// GetDashboard handles GET /api/dashboard?timeframe=week|month|year.
func (h *Handler) GetDashboard(c *gin.Context) {
	raw := c.DefaultQuery("timeframe", string(cost.Week))
	g, err := cost.ParseGranularity(raw)
	if err != nil {
		writeError(c, err)
		return
	}
	d, err := h.engine.Dashboard(c.Request.Context(), g, h.engine.Today())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GetReminders handles GET /api/reminders.
func (h *Handler) GetReminders(c *gin.Context) {
	asOf, ok := h.asOf(c)
	if !ok {
		return
	}
	r, err := h.engine.Reminders(c.Request.Context(), asOf)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// GetAlerts handles GET /api/alerts.
func (h *Handler) GetAlerts(c *gin.Context) {
	alerts, err := h.engine.Alerts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

type costResponse struct {
	TrolleyID   string          `json:"trolley_id,omitempty"`
	Start       *time.Time      `json:"start"`
	End         *time.Time      `json:"end"`
	Total       decimal.Decimal `json:"total"`
	Granularity string          `json:"granularity,omitempty"`
	Buckets     []cost.Bucket   `json:"buckets,omitempty"`
}

// costRange resolves the window of a cost query: timeframe selects a
// window ending today, otherwise start and end are used as given.
func (h *Handler) costRange(c *gin.Context) (store.DateRange, bool) {
	if raw := c.Query("timeframe"); raw != "" {
		g, err := cost.ParseGranularity(raw)
		if err != nil {
			writeError(c, err)
			return store.DateRange{}, false
		}
		r, err := cost.Window(g, h.engine.Today())
		if err != nil {
			writeError(c, err)
			return store.DateRange{}, false
		}
		return r, true
	}
	return dateRange(c)
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// GetCosts handles GET /api/costs. Without trolley_id the fleet total is
// returned; granularity adds a per-period breakdown.
func (h *Handler) GetCosts(c *gin.Context) {
	r, ok := h.costRange(c)
	if !ok {
		return
	}
	ctx, id := c.Request.Context(), c.Query("trolley_id")
	total, err := h.engine.TotalCost(ctx, id, r)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := costResponse{TrolleyID: id, Start: optionalTime(r.Start), End: optionalTime(r.End), Total: total}

	if raw := c.Query("granularity"); raw != "" {
		g, err := cost.ParseGranularity(raw)
		if err != nil {
			writeError(c, err)
			return
		}
		buckets, err := h.engine.CostBreakdown(ctx, id, r, g)
		if err != nil {
			writeError(c, err)
			return
		}
		resp.Granularity = string(g)
		resp.Buckets = buckets
	}
	c.JSON(http.StatusOK, resp)
}

// GetCostsPerTrolley handles GET /api/costs/trolleys, highest spend first.
func (h *Handler) GetCostsPerTrolley(c *gin.Context) {
	r, ok := h.costRange(c)
	if !ok {
		return
	}
	totals, err := h.engine.CostPerTrolley(c.Request.Context(), r)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

// GetHistory handles GET /api/history: fleet-wide records of one kind,
// newest first.
func (h *Handler) GetHistory(c *gin.Context) {
	kind, err := store.ParseRecordKind(c.DefaultQuery("kind", string(store.KindMaintenance)))
	if err != nil {
		writeError(c, err)
		return
	}
	r, ok := dateRange(c)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	records, err := h.engine.History(c.Request.Context(), kind, r, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetCategories handles GET /api/categories.
func GetCategories(c *gin.Context) {
	c.JSON(http.StatusOK, model.Categories)
}
