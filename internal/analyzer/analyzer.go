// Package analyzer counts failures along a trolley lineage and raises
// repeat-failure alerts.
package analyzer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"trolley-pm/config"
	"trolley-pm/internal/model"
	"trolley-pm/internal/store"
)

// Alert describes a repeat offender.
type Alert struct {
	LineageKey   string         `json:"lineage_key"`
	CurrentID    string         `json:"current_id"`
	Count        int            `json:"count"`
	LastCategory model.Category `json:"last_category"`
	LastDate     time.Time      `json:"last_date"`
}

// CategoryAlert is a single category that reached the threshold on its own.
type CategoryAlert struct {
	Category model.Category `json:"category"`
	Count    int            `json:"count"`
	LastDate time.Time      `json:"last_date"`
}

// Count returns the number of failures in the snapshot. A nil category counts
// every failure.
func Count(snap *store.LineageSnapshot, category *model.Category) int {
	if category == nil {
		return len(snap.Failures)
	}
	n := 0
	for _, f := range snap.Failures {
		if f.Category == *category {
			n++
		}
	}
	return n
}

// LastFailure returns the latest failure, ties going to the one inserted last.
func LastFailure(snap *store.LineageSnapshot) *model.FailureRecord {
	var last *model.FailureRecord
	for i := range snap.Failures {
		f := &snap.Failures[i]
		if last == nil || f.ReportedDate.After(last.ReportedDate) ||
			(f.ReportedDate.Equal(last.ReportedDate) && f.ID > last.ID) {
			last = f
		}
	}
	return last
}

// BuildAlert returns an alert when the snapshot has at least threshold
// failures, nil otherwise.
func BuildAlert(snap *store.LineageSnapshot, threshold int) *Alert {
	count := Count(snap, nil)
	if count == 0 || count < threshold {
		return nil
	}
	last := LastFailure(snap)
	return &Alert{
		LineageKey:   snap.Trolley.LineageKey,
		CurrentID:    snap.Trolley.CurrentID,
		Count:        count,
		LastCategory: last.Category,
		LastDate:     last.ReportedDate,
	}
}

// BuildCategoryAlerts lists the categories whose own count reaches threshold,
// in the fixed category order.
func BuildCategoryAlerts(snap *store.LineageSnapshot, threshold int) []CategoryAlert {
	alerts := []CategoryAlert{}
	for _, c := range model.Categories {
		ca := CategoryAlert{Category: c}
		for _, f := range snap.Failures {
			if f.Category != c {
				continue
			}
			ca.Count++
			if f.ReportedDate.After(ca.LastDate) {
				ca.LastDate = f.ReportedDate
			}
		}
		if ca.Count > 0 && ca.Count >= threshold {
			alerts = append(alerts, ca)
		}
	}
	return alerts
}

// Analyzer answers failure questions against the record store.
type Analyzer struct {
	store     store.Store
	threshold int
}

// New creates an Analyzer. A non-positive threshold falls back to the default.
func New(s store.Store, threshold int) *Analyzer {
	if threshold <= 0 {
		threshold = config.DefaultPolicy().RepeatThreshold
	}
	return &Analyzer{store: s, threshold: threshold}
}

// Threshold returns the configured repeat-failure threshold.
func (a *Analyzer) Threshold() int {
	return a.threshold
}

func (a *Analyzer) snapshot(ctx context.Context, id string) (*store.LineageSnapshot, error) {
	key, err := a.store.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.store.Snapshot(ctx, key)
}

// FailureCount counts failures across every identifier the trolley has had.
func (a *Analyzer) FailureCount(ctx context.Context, id string, category *model.Category) (int, error) {
	if category != nil && !category.Valid() {
		return 0, fmt.Errorf("%w: unknown failure category %q", store.ErrValidation, *category)
	}
	snap, err := a.snapshot(ctx, id)
	if err != nil {
		return 0, err
	}
	return Count(snap, category), nil
}

// IsRepeatOffender reports whether the trolley has at least threshold
// failures. A non-positive threshold uses the configured one.
func (a *Analyzer) IsRepeatOffender(ctx context.Context, id string, threshold int) (bool, error) {
	if threshold <= 0 {
		threshold = a.threshold
	}
	n, err := a.FailureCount(ctx, id, nil)
	if err != nil {
		return false, err
	}
	return n >= threshold, nil
}

// Alert returns the repeat-failure alert of the trolley, or nil.
func (a *Analyzer) Alert(ctx context.Context, id string) (*Alert, error) {
	snap, err := a.snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return BuildAlert(snap, a.threshold), nil
}

// CategoryAlerts returns the per-category alerts of the trolley.
func (a *Analyzer) CategoryAlerts(ctx context.Context, id string) ([]CategoryAlert, error) {
	snap, err := a.snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return BuildCategoryAlerts(snap, a.threshold), nil
}

// CollectAlerts returns the alerts of every trolley still in service, highest
// count first.
func CollectAlerts(snaps []store.LineageSnapshot, threshold int) []Alert {
	alerts := []Alert{}
	for i := range snaps {
		if snaps[i].Scrapped() {
			continue
		}
		if alert := BuildAlert(&snaps[i], threshold); alert != nil {
			alerts = append(alerts, *alert)
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Count != alerts[j].Count {
			return alerts[i].Count > alerts[j].Count
		}
		return alerts[i].CurrentID < alerts[j].CurrentID
	})
	return alerts
}

// Alerts lists every repeat offender in the fleet.
func (a *Analyzer) Alerts(ctx context.Context) ([]Alert, error) {
	snaps, err := a.store.Snapshots(ctx)
	if err != nil {
		return nil, err
	}
	return CollectAlerts(snaps, a.threshold), nil
}
