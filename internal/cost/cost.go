// Package cost sums maintenance and repair costs over date windows.
package cost

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trolley-pm/internal/parse"
	"trolley-pm/internal/store"
)

// Granularity is the width of a reporting bucket.
type Granularity string

const (
	Week  Granularity = "week"
	Month Granularity = "month"
	Year  Granularity = "year"
)

// ParseGranularity accepts week, month or year in any letter case.
func ParseGranularity(raw string) (Granularity, error) {
	g := Granularity(strings.ToLower(strings.TrimSpace(raw)))
	switch g {
	case Week, Month, Year:
		return g, nil
	}
	return "", fmt.Errorf("%w: unknown granularity %q", store.ErrValidation, raw)
}

// Window returns the dashboard range ending with today: the last seven days
// plus today for Week, month to date for Month and year to date for Year.
func Window(g Granularity, today time.Time) (store.DateRange, error) {
	d := parse.Day(today)
	end := parse.AddDays(d, 1)
	switch g {
	case Week:
		return store.DateRange{Start: parse.AddDays(d, -7), End: end}, nil
	case Month:
		return store.DateRange{Start: time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC), End: end}, nil
	case Year:
		return store.DateRange{Start: time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), End: end}, nil
	}
	return store.DateRange{}, fmt.Errorf("%w: unknown granularity %q", store.ErrValidation, g)
}

// BucketStart returns the first day of the bucket containing day. Weeks start
// on Monday.
func BucketStart(g Granularity, day time.Time) time.Time {
	d := parse.Day(day)
	switch g {
	case Week:
		offset := (int(d.Weekday()) + 6) % 7
		return parse.AddDays(d, -offset)
	case Month:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
}

func bucketEnd(g Granularity, start time.Time) time.Time {
	switch g {
	case Week:
		return parse.AddDays(start, 7)
	case Month:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(1, 0, 0)
	}
}

// Sum adds up entries, counting each underlying record once.
func Sum(entries []store.CostEntry) decimal.Decimal {
	total := decimal.Zero
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Key()]; dup {
			continue
		}
		seen[e.Key()] = struct{}{}
		total = total.Add(e.Amount)
	}
	return total
}

// SnapshotEntries lists the cost-bearing records of a snapshot dated inside r.
func SnapshotEntries(snap *store.LineageSnapshot, r store.DateRange) []store.CostEntry {
	var entries []store.CostEntry
	for _, m := range snap.Maintenance {
		if m.Cost.Valid && r.Contains(m.PerformedDate) {
			entries = append(entries, store.CostEntry{
				Kind: store.KindMaintenance, RecordID: m.ID, LineageKey: m.LineageKey,
				TrolleyID: m.TrolleyID, Date: m.PerformedDate, Amount: m.Cost.Decimal,
			})
		}
	}
	for _, f := range snap.Failures {
		if f.RepairCost.Valid && r.Contains(f.ReportedDate) {
			entries = append(entries, store.CostEntry{
				Kind: store.KindFailure, RecordID: f.ID, LineageKey: f.LineageKey,
				TrolleyID: f.TrolleyID, Date: f.ReportedDate, Amount: f.RepairCost.Decimal,
			})
		}
	}
	return entries
}

// Bucket is the total of one reporting period [Start, End).
type Bucket struct {
	Start time.Time       `json:"start"`
	End   time.Time       `json:"end"`
	Total decimal.Decimal `json:"total"`
}

// Buckets groups entries by period, oldest first. Periods without cost are
// omitted.
func Buckets(entries []store.CostEntry, g Granularity) []Bucket {
	grouped := make(map[time.Time][]store.CostEntry)
	for _, e := range entries {
		start := BucketStart(g, e.Date)
		grouped[start] = append(grouped[start], e)
	}
	buckets := make([]Bucket, 0, len(grouped))
	for start, group := range grouped {
		buckets = append(buckets, Bucket{Start: start, End: bucketEnd(g, start), Total: Sum(group)})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Start.Before(buckets[j].Start)
	})
	return buckets
}

// TrolleyTotal is the spend on one lineage.
type TrolleyTotal struct {
	LineageKey string          `json:"lineage_key"`
	TrolleyID  string          `json:"trolley_id"`
	Total      decimal.Decimal `json:"total"`
}

// Aggregator answers cost questions against the record store.
type Aggregator struct {
	store store.Store
}

// New creates an Aggregator.
func New(s store.Store) *Aggregator {
	return &Aggregator{store: s}
}

func (a *Aggregator) entries(ctx context.Context, id string, r store.DateRange) ([]store.CostEntry, error) {
	key := ""
	if id != "" {
		var err error
		if key, err = a.store.Resolve(ctx, id); err != nil {
			return nil, err
		}
	}
	return a.store.CostEntries(ctx, key, r)
}

// TotalCost sums every cost dated inside r. An empty id covers the fleet.
func (a *Aggregator) TotalCost(ctx context.Context, id string, r store.DateRange) (decimal.Decimal, error) {
	entries, err := a.entries(ctx, id, r)
	if err != nil {
		return decimal.Zero, err
	}
	return Sum(entries), nil
}

// Breakdown returns the costs inside r bucketed by g.
func (a *Aggregator) Breakdown(ctx context.Context, id string, r store.DateRange, g Granularity) ([]Bucket, error) {
	if _, err := ParseGranularity(string(g)); err != nil {
		return nil, err
	}
	entries, err := a.entries(ctx, id, r)
	if err != nil {
		return nil, err
	}
	return Buckets(entries, g), nil
}

// PerTrolley returns the spend of every lineage with cost inside r, highest
// first.
func (a *Aggregator) PerTrolley(ctx context.Context, r store.DateRange) ([]TrolleyTotal, error) {
	entries, err := a.store.CostEntries(ctx, "", r)
	if err != nil {
		return nil, err
	}
	lineages, err := a.store.Lineages(ctx)
	if err != nil {
		return nil, err
	}
	current := make(map[string]string, len(lineages))
	for _, l := range lineages {
		current[l.LineageKey] = l.CurrentID
	}

	grouped := make(map[string][]store.CostEntry)
	for _, e := range entries {
		grouped[e.LineageKey] = append(grouped[e.LineageKey], e)
	}
	totals := make([]TrolleyTotal, 0, len(grouped))
	for key, group := range grouped {
		totals = append(totals, TrolleyTotal{LineageKey: key, TrolleyID: current[key], Total: Sum(group)})
	}
	sort.Slice(totals, func(i, j int) bool {
		if c := totals[i].Total.Cmp(totals[j].Total); c != 0 {
			return c > 0
		}
		return totals[i].TrolleyID < totals[j].TrolleyID
	})
	return totals, nil
}
