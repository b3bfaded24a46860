package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"trolley-pm/internal/analyzer"
	"trolley-pm/internal/cost"
	"trolley-pm/internal/model"
	"trolley-pm/internal/risk"
	"trolley-pm/internal/scheduler"
	"trolley-pm/internal/store"
)

// Lookup is everything known about one trolley, read from a single snapshot.
type Lookup struct {
	Identity       *store.TrolleyIdentity    `json:"identity"`
	AsOf           time.Time                 `json:"as_of"`
	Status         scheduler.Status          `json:"status"`
	Risk           risk.Assessment           `json:"risk"`
	LastService    *model.MaintenanceRecord  `json:"last_service"`
	NextDue        *time.Time                `json:"next_due"`
	FailureCount   int                       `json:"failure_count"`
	Alert          *analyzer.Alert           `json:"alert"`
	CategoryAlerts []analyzer.CategoryAlert  `json:"category_alerts"`
	TotalCost      decimal.Decimal           `json:"total_cost"`
	Scrap          *model.ScrapRecord        `json:"scrap"`
	Maintenance    []model.MaintenanceRecord `json:"maintenance"`
	Failures       []model.FailureRecord     `json:"failures"`
}

// Lookup assembles the trolley's lookup view on asOf.
func (e *Engine) Lookup(ctx context.Context, id string, asOf time.Time) (*Lookup, error) {
	identity, err := e.store.Identity(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := e.store.Snapshot(ctx, identity.LineageKey)
	if err != nil {
		return nil, err
	}
	// The snapshot may be newer than identity if a remap landed in between.
	identity.CurrentID = snap.Trolley.CurrentID

	threshold := e.analyzer.Threshold()
	l := &Lookup{
		Identity:       identity,
		AsOf:           asOf,
		Status:         scheduler.Classify(snap, asOf, e.scheduler.Policy()),
		Risk:           risk.Classify(snap, asOf, e.risk.Policy()),
		LastService:    scheduler.LastService(snap),
		NextDue:        scheduler.NextDue(snap),
		FailureCount:   analyzer.Count(snap, nil),
		Alert:          analyzer.BuildAlert(snap, threshold),
		CategoryAlerts: analyzer.BuildCategoryAlerts(snap, threshold),
		TotalCost:      cost.Sum(cost.SnapshotEntries(snap, store.DateRange{})),
		Scrap:          snap.Scrap,
		Maintenance:    snap.Maintenance,
		Failures:       snap.Failures,
	}
	if l.Maintenance == nil {
		l.Maintenance = []model.MaintenanceRecord{}
	}
	if l.Failures == nil {
		l.Failures = []model.FailureRecord{}
	}
	return l, nil
}
