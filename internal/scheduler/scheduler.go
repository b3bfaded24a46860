package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"trolley-pm/config"
	"trolley-pm/internal/model"
	"trolley-pm/internal/parse"
	"trolley-pm/internal/store"
)

// Status is the PM state of a trolley on a given day.
type Status string

const (
	StatusOverdue       Status = "OVERDUE"
	StatusUpcoming      Status = "UPCOMING"
	StatusCurrent       Status = "CURRENT"
	StatusScrapped      Status = "SCRAPPED"
	StatusNeverServiced Status = "NEVER_SERVICED"
)

// Policy holds the scheduling thresholds.
type Policy struct {
	UpcomingWindowDays int
}

// PolicyFrom extracts the scheduling thresholds from the engine policy.
func PolicyFrom(cfg config.PolicyConfig) Policy {
	return Policy{UpcomingWindowDays: cfg.UpcomingWindowDays}
}

// LastService returns the most recent maintenance record: latest performed
// date, and among equal dates the one inserted last.
func LastService(snap *store.LineageSnapshot) *model.MaintenanceRecord {
	if len(snap.Maintenance) == 0 {
		return nil
	}
	best := &snap.Maintenance[0]
	for i := 1; i < len(snap.Maintenance); i++ {
		m := &snap.Maintenance[i]
		if m.PerformedDate.After(best.PerformedDate) ||
			(m.PerformedDate.Equal(best.PerformedDate) && m.ID > best.ID) {
			best = m
		}
	}
	return best
}

// NextDue returns the due date of the lineage's most recent maintenance, or
// nil when it was never serviced or is scrapped.
func NextDue(snap *store.LineageSnapshot) *time.Time {
	if snap.Scrapped() {
		return nil
	}
	last := LastService(snap)
	if last == nil {
		return nil
	}
	due := parse.Day(last.NextDueDate)
	return &due
}

// Classify derives the PM status of a lineage on asOf.
func Classify(snap *store.LineageSnapshot, asOf time.Time, p Policy) Status {
	if snap.Scrapped() {
		return StatusScrapped
	}
	due := NextDue(snap)
	if due == nil {
		return StatusNeverServiced
	}
	today := parse.Day(asOf)
	if due.Before(today) {
		return StatusOverdue
	}
	if parse.DaysBetween(today, *due) <= p.UpcomingWindowDays {
		return StatusUpcoming
	}
	return StatusCurrent
}

// Scheduler answers due-date questions against the record store.
type Scheduler struct {
	store  store.Store
	policy Policy
}

// New creates a Scheduler.
func New(s store.Store, p Policy) *Scheduler {
	if p.UpcomingWindowDays <= 0 {
		p.UpcomingWindowDays = config.DefaultPolicy().UpcomingWindowDays
	}
	return &Scheduler{store: s, policy: p}
}

// Policy returns the thresholds in effect.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

func (s *Scheduler) snapshot(ctx context.Context, id string) (*store.LineageSnapshot, error) {
	key, err := s.store.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.store.Snapshot(ctx, key)
}

// NextDue returns the next PM date of the trolley id resolves to.
func (s *Scheduler) NextDue(ctx context.Context, id string) (*time.Time, error) {
	snap, err := s.snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return NextDue(snap), nil
}

// Status classifies the trolley id resolves to on asOf.
func (s *Scheduler) Status(ctx context.Context, id string, asOf time.Time) (Status, error) {
	if asOf.IsZero() {
		return "", fmt.Errorf("%w: as-of date is required", store.ErrValidation)
	}
	snap, err := s.snapshot(ctx, id)
	if err != nil {
		return "", err
	}
	return Classify(snap, asOf, s.policy), nil
}

// MarkDoneInput carries the optional details of a completed reminder.
type MarkDoneInput struct {
	Technician string
	Cost       *decimal.Decimal
	Notes      string
}

// MarkDone logs a PM dated asOf, which restarts the interval from that day.
func (s *Scheduler) MarkDone(ctx context.Context, id string, asOf time.Time, in MarkDoneInput) (*model.MaintenanceRecord, error) {
	return s.store.AppendMaintenance(ctx, store.MaintenanceInput{
		TrolleyID:     id,
		PerformedDate: asOf,
		Technician:    in.Technician,
		Cost:          in.Cost,
		Notes:         in.Notes,
	})
}

// Reminder is one trolley that needs attention.
type Reminder struct {
	LineageKey string    `json:"lineage_key"`
	TrolleyID  string    `json:"trolley_id"`
	NextDue    time.Time `json:"next_due"`
	Status     Status    `json:"status"`
	// DaysUntil is negative for overdue trolleys.
	DaysUntil int `json:"days_until"`
}

// Reminders groups the overdue and upcoming trolleys of a day.
type Reminders struct {
	AsOf     time.Time  `json:"as_of"`
	Overdue  []Reminder `json:"overdue"`
	Upcoming []Reminder `json:"upcoming"`
}

// BuildReminders classifies every snapshot and keeps those that are overdue
// or upcoming, earliest due date first.
func BuildReminders(snaps []store.LineageSnapshot, asOf time.Time, p Policy) *Reminders {
	today := parse.Day(asOf)
	out := &Reminders{AsOf: today, Overdue: []Reminder{}, Upcoming: []Reminder{}}
	for i := range snaps {
		snap := &snaps[i]
		status := Classify(snap, today, p)
		if status != StatusOverdue && status != StatusUpcoming {
			continue
		}
		due := NextDue(snap)
		r := Reminder{
			LineageKey: snap.Trolley.LineageKey,
			TrolleyID:  snap.Trolley.CurrentID,
			NextDue:    *due,
			Status:     status,
			DaysUntil:  parse.DaysBetween(today, *due),
		}
		if status == StatusOverdue {
			out.Overdue = append(out.Overdue, r)
		} else {
			out.Upcoming = append(out.Upcoming, r)
		}
	}
	byDue := func(list []Reminder) {
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].NextDue.Equal(list[j].NextDue) {
				return list[i].NextDue.Before(list[j].NextDue)
			}
			return list[i].TrolleyID < list[j].TrolleyID
		})
	}
	byDue(out.Overdue)
	byDue(out.Upcoming)
	return out
}

// Reminders lists overdue and upcoming trolleys across the fleet on asOf.
func (s *Scheduler) Reminders(ctx context.Context, asOf time.Time) (*Reminders, error) {
	snaps, err := s.store.Snapshots(ctx)
	if err != nil {
		return nil, err
	}
	return BuildReminders(snaps, asOf, s.policy), nil
}
