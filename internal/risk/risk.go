// Package risk derives a LOW, MEDIUM or HIGH tier from a trolley's failure
// frequency, recency and repair cost.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trolley-pm/config"
	"trolley-pm/internal/model"
	"trolley-pm/internal/parse"
	"trolley-pm/internal/store"
)

// Level is a risk tier. Levels compare by Rank.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Rank orders levels from LOW (0) to HIGH (2).
func (l Level) Rank() int {
	switch l {
	case LevelHigh:
		return 2
	case LevelMedium:
		return 1
	}
	return 0
}

// Reasons reported with an assessment.
const (
	ReasonRecentRepeat   = "repeat failures with a recent one"
	ReasonCostCeiling    = "repair cost above ceiling"
	ReasonWindowFailures = "failures clustered in trailing window"
	ReasonFailed         = "has failed before"
	ReasonOverdue        = "preventive maintenance overdue"
)

// Policy holds the tier boundaries.
type Policy struct {
	HighFailureCount   int
	RecentDays         int
	WindowDays         int
	WindowFailureCount int
	// CostCeiling of zero disables the cost rule.
	CostCeiling decimal.Decimal
}

// PolicyFrom converts the configured boundaries.
func PolicyFrom(cfg config.RiskConfig) (Policy, error) {
	ceiling, err := cfg.Ceiling()
	if err != nil {
		return Policy{}, err
	}
	return Policy{
		HighFailureCount:   cfg.HighFailureCount,
		RecentDays:         cfg.RecentDays,
		WindowDays:         cfg.WindowDays,
		WindowFailureCount: cfg.WindowFailureCount,
		CostCeiling:        ceiling,
	}, nil
}

// DefaultPolicy returns the boundaries of config.DefaultPolicy.
func DefaultPolicy() Policy {
	p, _ := PolicyFrom(config.DefaultPolicy().Risk)
	return p
}

// Assessment is a risk level together with the signals it was derived from.
type Assessment struct {
	Level                Level           `json:"level"`
	Reasons              []string        `json:"reasons"`
	Failures             int             `json:"failures"`
	WindowFailures       int             `json:"window_failures"`
	DaysSinceLastFailure *int            `json:"days_since_last_failure"`
	RepairCost           decimal.Decimal `json:"repair_cost"`
	Overdue              bool            `json:"overdue"`
}

// Classify assesses a lineage on asOf. Records dated after asOf are ignored.
func Classify(snap *store.LineageSnapshot, asOf time.Time, p Policy) Assessment {
	today := parse.Day(asOf)
	a := Assessment{Level: LevelLow, Reasons: []string{}, RepairCost: decimal.Zero}

	var last *model.FailureRecord
	for i := range snap.Failures {
		f := &snap.Failures[i]
		if f.ReportedDate.After(today) {
			continue
		}
		a.Failures++
		if f.RepairCost.Valid {
			a.RepairCost = a.RepairCost.Add(f.RepairCost.Decimal)
		}
		if parse.DaysBetween(f.ReportedDate, today) <= p.WindowDays {
			a.WindowFailures++
		}
		if last == nil || !f.ReportedDate.Before(last.ReportedDate) {
			last = f
		}
	}
	if last != nil {
		days := parse.DaysBetween(last.ReportedDate, today)
		a.DaysSinceLastFailure = &days
	}
	a.Overdue = overdue(snap, today)

	if a.Failures >= p.HighFailureCount && a.DaysSinceLastFailure != nil && *a.DaysSinceLastFailure <= p.RecentDays {
		a.Reasons = append(a.Reasons, ReasonRecentRepeat)
	}
	if p.CostCeiling.IsPositive() && a.RepairCost.GreaterThan(p.CostCeiling) {
		a.Reasons = append(a.Reasons, ReasonCostCeiling)
	}
	if p.WindowFailureCount > 0 && a.WindowFailures >= p.WindowFailureCount {
		a.Reasons = append(a.Reasons, ReasonWindowFailures)
	}
	if len(a.Reasons) > 0 {
		a.Level = LevelHigh
		return a
	}

	if a.Failures >= 1 {
		a.Reasons = append(a.Reasons, ReasonFailed)
	}
	if a.Overdue {
		a.Reasons = append(a.Reasons, ReasonOverdue)
	}
	if len(a.Reasons) > 0 {
		a.Level = LevelMedium
	}
	return a
}

// overdue reports whether the latest PM performed by today was due before
// today. A lineage scrapped by today is never overdue.
func overdue(snap *store.LineageSnapshot, today time.Time) bool {
	if snap.Scrap != nil && !snap.Scrap.ScrapDate.After(today) {
		return false
	}
	var last *model.MaintenanceRecord
	for i := range snap.Maintenance {
		m := &snap.Maintenance[i]
		if m.PerformedDate.After(today) {
			continue
		}
		if last == nil || m.PerformedDate.After(last.PerformedDate) ||
			(m.PerformedDate.Equal(last.PerformedDate) && m.ID > last.ID) {
			last = m
		}
	}
	return last != nil && last.NextDueDate.Before(today)
}

// Classifier assesses trolleys against the record store.
type Classifier struct {
	store  store.Store
	policy Policy
}

// New creates a Classifier.
func New(s store.Store, p Policy) *Classifier {
	return &Classifier{store: s, policy: p}
}

// Assess returns the full assessment of the trolley id resolves to.
func (c *Classifier) Assess(ctx context.Context, id string, asOf time.Time) (*Assessment, error) {
	if asOf.IsZero() {
		return nil, fmt.Errorf("%w: as-of date is required", store.ErrValidation)
	}
	key, err := c.store.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := c.store.Snapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	a := Classify(snap, asOf, c.policy)
	return &a, nil
}

// RiskLevel returns the tier of the trolley id resolves to on asOf.
func (c *Classifier) RiskLevel(ctx context.Context, id string, asOf time.Time) (Level, error) {
	a, err := c.Assess(ctx, id, asOf)
	if err != nil {
		return "", err
	}
	return a.Level, nil
}

// Policy returns the boundaries in effect.
func (c *Classifier) Policy() Policy {
	return c.policy
}
