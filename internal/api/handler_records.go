package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trolley-pm/internal/model"
	"trolley-pm/internal/scheduler"
	"trolley-pm/internal/store"
)

type maintenanceRequest struct {
	PerformedDate string `json:"performed_date"`
	Technician    string `json:"technician"`
	Cost          amount `json:"cost"`
	Notes         string `json:"notes"`
}

// LogMaintenance handles POST /api/trolleys/:id/maintenance. The performed
// date defaults to today.
func (h *Handler) LogMaintenance(c *gin.Context) {
	var req maintenanceRequest
	if !bindJSON(c, &req) {
		return
	}
	performed, err := dateOr(req.PerformedDate, h.engine.Today())
	if err != nil {
		badRequest(c, "performed_date: %v", err)
		return
	}
	cost, err := req.Cost.value()
	if err != nil {
		badRequest(c, "cost: %v", err)
		return
	}
	rec, err := h.engine.LogMaintenance(c.Request.Context(), store.MaintenanceInput{
		TrolleyID:     c.Param("id"),
		PerformedDate: performed,
		Technician:    req.Technician,
		Cost:          cost,
		Notes:         req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

type failureRequest struct {
	ReportedDate string `json:"reported_date"`
	Category     string `json:"category" binding:"required"`
	Technician   string `json:"technician"`
	RepairCost   amount `json:"repair_cost"`
	Notes        string `json:"notes"`
}

// ReportFailure handles POST /api/trolleys/:id/failures. The response carries
// the linked maintenance record and the alert when the threshold is reached.
func (h *Handler) ReportFailure(c *gin.Context) {
	var req failureRequest
	if !bindJSON(c, &req) {
		return
	}
	reported, err := dateOr(req.ReportedDate, h.engine.Today())
	if err != nil {
		badRequest(c, "reported_date: %v", err)
		return
	}
	cat, err := model.ParseCategory(req.Category)
	if err != nil {
		badRequest(c, "%v", err)
		return
	}
	repair, err := req.RepairCost.value()
	if err != nil {
		badRequest(c, "repair_cost: %v", err)
		return
	}
	report, err := h.engine.ReportFailure(c.Request.Context(), store.FailureInput{
		TrolleyID:    c.Param("id"),
		ReportedDate: reported,
		Category:     cat,
		Technician:   req.Technician,
		RepairCost:   repair,
		Notes:        req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

type scrapRequest struct {
	ScrapDate  string `json:"scrap_date"`
	Reason     string `json:"reason"`
	RecordedBy string `json:"recorded_by"`
}

// ScrapTrolley handles POST /api/trolleys/:id/scrap.
func (h *Handler) ScrapTrolley(c *gin.Context) {
	var req scrapRequest
	if !bindJSON(c, &req) {
		return
	}
	scrapped, err := dateOr(req.ScrapDate, h.engine.Today())
	if err != nil {
		badRequest(c, "scrap_date: %v", err)
		return
	}
	rec, err := h.engine.Scrap(c.Request.Context(), store.ScrapInput{
		TrolleyID:  c.Param("id"),
		ScrapDate:  scrapped,
		Reason:     req.Reason,
		RecordedBy: req.RecordedBy,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

type markDoneRequest struct {
	AsOf       string `json:"as_of"`
	Technician string `json:"technician"`
	Cost       amount `json:"cost"`
	Notes      string `json:"notes"`
}

// MarkDone handles POST /api/trolleys/:id/mark_done: logs today's PM for a
// trolley, typically one listed as overdue.
func (h *Handler) MarkDone(c *gin.Context) {
	var req markDoneRequest
	if !bindJSON(c, &req) {
		return
	}
	asOf, err := dateOr(req.AsOf, h.engine.Today())
	if err != nil {
		badRequest(c, "as_of: %v", err)
		return
	}
	cost, err := req.Cost.value()
	if err != nil {
		badRequest(c, "cost: %v", err)
		return
	}
	rec, err := h.engine.MarkDone(c.Request.Context(), c.Param("id"), asOf, scheduler.MarkDoneInput{
		Technician: req.Technician,
		Cost:       cost,
		Notes:      req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}
