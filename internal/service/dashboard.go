package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"trolley-pm/internal/analyzer"
	"trolley-pm/internal/cost"
	"trolley-pm/internal/risk"
	"trolley-pm/internal/scheduler"
	"trolley-pm/internal/store"
)

// Dashboard is the fleet summary for one timeframe.
type Dashboard struct {
	Timeframe  cost.Granularity `json:"timeframe"`
	Start      time.Time        `json:"start"`
	End        time.Time        `json:"end"`
	Trolleys   int              `json:"trolleys"`
	Maintained int              `json:"maintained"`
	Overdue    int              `json:"overdue"`
	Upcoming   int              `json:"upcoming"`
	Damages    int              `json:"damages"`
	Scrapped   int              `json:"scrapped"`
	TotalCost  decimal.Decimal  `json:"total_cost"`
	Alerts     []analyzer.Alert `json:"alerts"`
}

// Dashboard summarizes the fleet over the g window ending today. Overdue and
// upcoming counts are as of today regardless of the window.
func (e *Engine) Dashboard(ctx context.Context, g cost.Granularity, today time.Time) (*Dashboard, error) {
	r, err := cost.Window(g, today)
	if err != nil {
		return nil, err
	}
	snaps, err := e.store.Snapshots(ctx)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{Timeframe: g, Start: r.Start, End: r.End, TotalCost: decimal.Zero}
	var entries []store.CostEntry
	for i := range snaps {
		snap := &snaps[i]
		d.Trolleys++

		for _, m := range snap.Maintenance {
			if r.Contains(m.PerformedDate) {
				d.Maintained++
				break
			}
		}
		for _, f := range snap.Failures {
			if r.Contains(f.ReportedDate) {
				d.Damages++
			}
		}
		if snap.Scrap != nil && r.Contains(snap.Scrap.ScrapDate) {
			d.Scrapped++
		}
		switch scheduler.Classify(snap, today, e.scheduler.Policy()) {
		case scheduler.StatusOverdue:
			d.Overdue++
		case scheduler.StatusUpcoming:
			d.Upcoming++
		}
		entries = append(entries, cost.SnapshotEntries(snap, r)...)
	}
	d.TotalCost = cost.Sum(entries)
	d.Alerts = analyzer.CollectAlerts(snaps, e.analyzer.Threshold())
	return d, nil
}

// FleetEntry is one row of the trolley list.
type FleetEntry struct {
	LineageKey string           `json:"lineage_key"`
	TrolleyID  string           `json:"trolley_id"`
	Status     scheduler.Status `json:"status"`
	NextDue    *time.Time       `json:"next_due"`
	Failures   int              `json:"failures"`
	Risk       risk.Level       `json:"risk"`
}

// Fleet lists every trolley, scrapped ones included, with its state on asOf.
func (e *Engine) Fleet(ctx context.Context, asOf time.Time) ([]FleetEntry, error) {
	snaps, err := e.store.Snapshots(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]FleetEntry, 0, len(snaps))
	for i := range snaps {
		snap := &snaps[i]
		entries = append(entries, FleetEntry{
			LineageKey: snap.Trolley.LineageKey,
			TrolleyID:  snap.Trolley.CurrentID,
			Status:     scheduler.Classify(snap, asOf, e.scheduler.Policy()),
			NextDue:    scheduler.NextDue(snap),
			Failures:   analyzer.Count(snap, nil),
			Risk:       risk.Classify(snap, asOf, e.risk.Policy()).Level,
		})
	}
	return entries, nil
}
