package store

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trolley-pm/internal/model"
	"trolley-pm/internal/parse"
)

// RecordKind names one of the append-only record tables.
type RecordKind string

const (
	KindMaintenance RecordKind = "maintenance"
	KindFailure     RecordKind = "failure"
	KindScrap       RecordKind = "scrap"
	KindRemap       RecordKind = "remap"
)

// ParseRecordKind validates a kind received at the boundary.
func ParseRecordKind(raw string) (RecordKind, error) {
	switch k := RecordKind(raw); k {
	case KindMaintenance, KindFailure, KindScrap, KindRemap:
		return k, nil
	}
	return "", validationf("unknown record kind %q", raw)
}

// DateRange is the half-open interval [Start, End). A zero bound is open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether day falls inside the range.
func (r DateRange) Contains(day time.Time) bool {
	if !r.Start.IsZero() && day.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && !day.Before(r.End) {
		return false
	}
	return true
}

// Normalize truncates both bounds to calendar dates and rejects inverted
// ranges.
func (r DateRange) Normalize() (DateRange, error) {
	out := DateRange{}
	if !r.Start.IsZero() {
		out.Start = parse.Day(r.Start)
	}
	if !r.End.IsZero() {
		out.End = parse.Day(r.End)
	}
	if !out.Start.IsZero() && !out.End.IsZero() && out.End.Before(out.Start) {
		return DateRange{}, validationf("range end %s is before start %s",
			out.End.Format("2006-01-02"), out.Start.Format("2006-01-02"))
	}
	return out, nil
}

// TrolleyIdentity is a lineage with its current id and remap history.
type TrolleyIdentity struct {
	LineageKey   string               `json:"lineage_key"`
	CurrentID    string               `json:"current_id"`
	RegisteredOn time.Time            `json:"registered_on"`
	Aliases      []string             `json:"aliases"`
	History      []model.TrolleyRemap `json:"history"`
}

// RemapInput describes one identifier change.
type RemapInput struct {
	OldID         string
	NewID         string
	EffectiveDate time.Time
	Reason        string
	Note          string
}

// MaintenanceInput describes one PM action.
type MaintenanceInput struct {
	TrolleyID     string
	PerformedDate time.Time
	Technician    string
	Cost          *decimal.Decimal
	Notes         string
}

// FailureInput describes one failure report.
type FailureInput struct {
	TrolleyID    string
	ReportedDate time.Time
	Category     model.Category
	Technician   string
	RepairCost   *decimal.Decimal
	Notes        string
}

// ScrapInput describes the terminal scrap action.
type ScrapInput struct {
	TrolleyID  string
	ScrapDate  time.Time
	Reason     string
	RecordedBy string
}

// Record is one entry of a Query result. Exactly one of the typed pointers is
// set, matching Kind.
type Record struct {
	Kind        RecordKind               `json:"kind"`
	ID          int64                    `json:"id"`
	Date        time.Time                `json:"date"`
	TrolleyID   string                   `json:"trolley_id"`
	Maintenance *model.MaintenanceRecord `json:"maintenance,omitempty"`
	Failure     *model.FailureRecord     `json:"failure,omitempty"`
	Scrap       *model.ScrapRecord       `json:"scrap,omitempty"`
	Remap       *model.TrolleyRemap      `json:"remap,omitempty"`
}

// LineageSnapshot is every record of one lineage, read in one transaction.
// Slices are ordered by event date, then insertion order.
type LineageSnapshot struct {
	Trolley     model.Trolley
	Maintenance []model.MaintenanceRecord
	Failures    []model.FailureRecord
	Scrap       *model.ScrapRecord
	Remaps      []model.TrolleyRemap
}

// Scrapped reports whether the lineage has a scrap record.
func (s *LineageSnapshot) Scrapped() bool {
	return s.Scrap != nil
}

// CostEntry is one cost-bearing record.
type CostEntry struct {
	Kind       RecordKind
	RecordID   int64
	LineageKey string
	TrolleyID  string
	Date       time.Time
	Amount     decimal.Decimal
}

// Key identifies the underlying record; the same key is never summed twice.
func (e CostEntry) Key() string {
	return fmt.Sprintf("%s/%d", e.Kind, e.RecordID)
}
