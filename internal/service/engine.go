// Package service wires the record store and the analysis components into
// the single facade the HTTP layer and background jobs call.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"trolley-pm/config"
	"trolley-pm/internal/analyzer"
	"trolley-pm/internal/cost"
	"trolley-pm/internal/logging"
	"trolley-pm/internal/metrics"
	"trolley-pm/internal/model"
	"trolley-pm/internal/parse"
	"trolley-pm/internal/risk"
	"trolley-pm/internal/scheduler"
	"trolley-pm/internal/store"
)

// Engine is the PM lifecycle engine.
type Engine struct {
	store     store.Store
	scheduler *scheduler.Scheduler
	analyzer  *analyzer.Analyzer
	risk      *risk.Classifier
	cost      *cost.Aggregator
	metrics   *metrics.Registry
	loc       *time.Location
	now       func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the plant's time zone used to decide what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithMetrics records business counters on m.
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Engine) { e.metrics = m }
}

// New builds an Engine over s with the given policy.
func New(s store.Store, policy config.PolicyConfig, opts ...Option) (*Engine, error) {
	rp, err := risk.PolicyFrom(policy.Risk)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		store:     s,
		scheduler: scheduler.New(s, scheduler.PolicyFrom(policy)),
		analyzer:  analyzer.New(s, policy.RepeatThreshold),
		risk:      risk.New(s, rp),
		cost:      cost.New(s),
		loc:       time.UTC,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Today is the current calendar date in the plant's time zone.
func (e *Engine) Today() time.Time {
	return parse.Day(e.now().In(e.loc))
}

// Store returns the underlying record store.
func (e *Engine) Store() store.Store {
	return e.store
}

func (e *Engine) appended(kind store.RecordKind) {
	if e.metrics != nil {
		e.metrics.RecordsAppendedTotal.WithLabelValues(string(kind)).Inc()
	}
}

// Register adds a new trolley, registered today.
func (e *Engine) Register(ctx context.Context, id string) (*store.TrolleyIdentity, error) {
	identity, err := e.store.Register(ctx, id, e.Today())
	if err != nil {
		return nil, err
	}
	e.appended(store.KindRemap)
	logging.Info("trolley registered", "trolley_id", identity.CurrentID, "lineage_key", identity.LineageKey)
	return identity, nil
}

// Remap moves a trolley to a new id and returns the updated identity. The
// remap is committed once the store accepts it; if reading the identity back
// fails, only the new current id is returned.
func (e *Engine) Remap(ctx context.Context, in store.RemapInput) (*store.TrolleyIdentity, error) {
	if err := e.store.Remap(ctx, in); err != nil {
		return nil, err
	}
	e.appended(store.KindRemap)
	identity, err := e.store.Identity(ctx, in.NewID)
	if err != nil {
		logging.Error("failed to read identity after remap", "old_id", in.OldID, "new_id", in.NewID, "error", err)
		return &store.TrolleyIdentity{CurrentID: in.NewID, Aliases: []string{}, History: []model.TrolleyRemap{}}, nil
	}
	logging.Info("trolley remapped", "old_id", in.OldID, "new_id", identity.CurrentID, "lineage_key", identity.LineageKey)
	return identity, nil
}

// Identity returns the lineage id resolves to, with its aliases and history.
func (e *Engine) Identity(ctx context.Context, id string) (*store.TrolleyIdentity, error) {
	return e.store.Identity(ctx, id)
}

// LogMaintenance records a PM action.
func (e *Engine) LogMaintenance(ctx context.Context, in store.MaintenanceInput) (*model.MaintenanceRecord, error) {
	rec, err := e.store.AppendMaintenance(ctx, in)
	if err != nil {
		return nil, err
	}
	e.appended(store.KindMaintenance)
	logging.Info("maintenance logged", "trolley_id", rec.TrolleyID, "performed", rec.PerformedDate.Format("2006-01-02"),
		"next_due", rec.NextDueDate.Format("2006-01-02"))
	return rec, nil
}

// FailureReport is the outcome of reporting a failure.
type FailureReport struct {
	Failure     *model.FailureRecord     `json:"failure"`
	Maintenance *model.MaintenanceRecord `json:"maintenance"`
	// Alert is set when the trolley is now a repeat offender.
	Alert *analyzer.Alert `json:"alert"`
}

// ReportFailure records a failure and its linked maintenance, then evaluates
// the repeat-failure alert. Both records are committed before the alert is
// evaluated, so an evaluation error leaves Alert nil instead of failing.
func (e *Engine) ReportFailure(ctx context.Context, in store.FailureInput) (*FailureReport, error) {
	f, m, err := e.store.AppendFailure(ctx, in)
	if err != nil {
		return nil, err
	}
	e.appended(store.KindFailure)
	e.appended(store.KindMaintenance)
	logging.Info("failure reported", "trolley_id", f.TrolleyID, "category", f.Category,
		"reported", f.ReportedDate.Format("2006-01-02"))

	alert, err := e.analyzer.Alert(ctx, f.TrolleyID)
	if err != nil {
		logging.Error("failed to evaluate repeat-failure alert", "trolley_id", f.TrolleyID, "error", err)
	}
	if alert != nil {
		if e.metrics != nil {
			e.metrics.RepeatAlertsTotal.Inc()
		}
		logging.Warn("repeat failure threshold reached", "trolley_id", alert.CurrentID, "count", alert.Count)
	}
	return &FailureReport{Failure: f, Maintenance: m, Alert: alert}, nil
}

// Scrap retires a trolley.
func (e *Engine) Scrap(ctx context.Context, in store.ScrapInput) (*model.ScrapRecord, error) {
	rec, err := e.store.AppendScrap(ctx, in)
	if err != nil {
		return nil, err
	}
	e.appended(store.KindScrap)
	logging.Info("trolley scrapped", "trolley_id", rec.TrolleyID, "reason", rec.Reason)
	return rec, nil
}

// Status classifies the trolley's PM state on asOf.
func (e *Engine) Status(ctx context.Context, id string, asOf time.Time) (scheduler.Status, error) {
	return e.scheduler.Status(ctx, id, asOf)
}

// NextDue returns the trolley's next PM date, nil if none applies.
func (e *Engine) NextDue(ctx context.Context, id string) (*time.Time, error) {
	return e.scheduler.NextDue(ctx, id)
}

// MarkDone logs a PM dated asOf for a reminder.
func (e *Engine) MarkDone(ctx context.Context, id string, asOf time.Time, in scheduler.MarkDoneInput) (*model.MaintenanceRecord, error) {
	rec, err := e.scheduler.MarkDone(ctx, id, asOf, in)
	if err != nil {
		return nil, err
	}
	e.appended(store.KindMaintenance)
	logging.Info("reminder marked done", "trolley_id", rec.TrolleyID, "next_due", rec.NextDueDate.Format("2006-01-02"))
	return rec, nil
}

// Reminders lists overdue and upcoming trolleys on asOf.
func (e *Engine) Reminders(ctx context.Context, asOf time.Time) (*scheduler.Reminders, error) {
	return e.scheduler.Reminders(ctx, asOf)
}

// FailureCount counts the trolley's failures, optionally for one category.
func (e *Engine) FailureCount(ctx context.Context, id string, category *model.Category) (int, error) {
	return e.analyzer.FailureCount(ctx, id, category)
}

// IsRepeatOffender reports whether the trolley reached threshold failures.
func (e *Engine) IsRepeatOffender(ctx context.Context, id string, threshold int) (bool, error) {
	return e.analyzer.IsRepeatOffender(ctx, id, threshold)
}

// RepeatThreshold is the configured failure count that raises an alert.
func (e *Engine) RepeatThreshold() int {
	return e.analyzer.Threshold()
}

// Alert returns the trolley's repeat-failure alert, or nil.
func (e *Engine) Alert(ctx context.Context, id string) (*analyzer.Alert, error) {
	return e.analyzer.Alert(ctx, id)
}

// Alerts lists every repeat offender still in service.
func (e *Engine) Alerts(ctx context.Context) ([]analyzer.Alert, error) {
	return e.analyzer.Alerts(ctx)
}

// RiskLevel returns the trolley's risk tier on asOf.
func (e *Engine) RiskLevel(ctx context.Context, id string, asOf time.Time) (risk.Level, error) {
	return e.risk.RiskLevel(ctx, id, asOf)
}

// RiskAssessment returns the trolley's risk tier with the signals behind it.
func (e *Engine) RiskAssessment(ctx context.Context, id string, asOf time.Time) (*risk.Assessment, error) {
	return e.risk.Assess(ctx, id, asOf)
}

// TotalCost sums costs inside r; an empty id covers the fleet.
func (e *Engine) TotalCost(ctx context.Context, id string, r store.DateRange) (decimal.Decimal, error) {
	return e.cost.TotalCost(ctx, id, r)
}

// CostBreakdown buckets costs inside r by g.
func (e *Engine) CostBreakdown(ctx context.Context, id string, r store.DateRange, g cost.Granularity) ([]cost.Bucket, error) {
	return e.cost.Breakdown(ctx, id, r, g)
}

// CostPerTrolley returns per-lineage spend inside r.
func (e *Engine) CostPerTrolley(ctx context.Context, r store.DateRange) ([]cost.TrolleyTotal, error) {
	return e.cost.PerTrolley(ctx, r)
}

// Query returns the trolley's records of one kind inside r, oldest first.
func (e *Engine) Query(ctx context.Context, id string, kind store.RecordKind, r store.DateRange) ([]store.Record, error) {
	key, err := e.store.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.store.Query(ctx, key, kind, r)
}

// History returns fleet-wide records of one kind inside r, newest first.
func (e *Engine) History(ctx context.Context, kind store.RecordKind, r store.DateRange, limit int) ([]store.Record, error) {
	return e.store.History(ctx, kind, r, limit)
}
