package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trolley-pm/config"
	"trolley-pm/internal/analyzer"
	"trolley-pm/internal/logging"
	"trolley-pm/internal/metrics"
	"trolley-pm/internal/notification"
	"trolley-pm/internal/scheduler"
)

// Source is the read side of the engine the sweep needs.
type Source interface {
	Today() time.Time
	Reminders(ctx context.Context, asOf time.Time) (*scheduler.Reminders, error)
	Alerts(ctx context.Context) ([]analyzer.Alert, error)
}

// Dispatcher queues a push notification. Dispatch reports false when the
// job was not queued because ctx is done.
type Dispatcher interface {
	Dispatch(ctx context.Context, job notification.Job) bool
}

// Result summarizes one sweep.
type Result struct {
	AsOf     time.Time
	Overdue  int
	Upcoming int
	Alerts   int
	Notified int
}

// Service periodically looks for overdue trolleys and repeat offenders and
// notifies subscribers once per change.
type Service struct {
	cfg        config.ReminderConfig
	source     Source
	dispatcher Dispatcher
	metrics    *metrics.Registry

	mu sync.Mutex
	// due date last notified per lineage
	overdue map[string]time.Time
	// failure count last notified per lineage
	alerts map[string]int
}

// NewService creates a sweep service. dispatcher may be nil when push is
// disabled; the sweep then only updates metrics and logs.
func NewService(cfg config.ReminderConfig, source Source, dispatcher Dispatcher, m *metrics.Registry) *Service {
	return &Service{
		cfg:        cfg,
		source:     source,
		dispatcher: dispatcher,
		metrics:    m,
		overdue:    make(map[string]time.Time),
		alerts:     make(map[string]int),
	}
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		logging.Info("reminder sweep is disabled, not starting")
		return nil
	}
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	logging.Info("starting reminder sweep", "interval", interval.String())

	s.sweepAndLog(ctx)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info("reminder sweep shutting down")
			return nil
		case <-timer.C:
			s.sweepAndLog(ctx)
			timer.Reset(interval)
		}
	}
}

func (s *Service) sweepAndLog(ctx context.Context) {
	res, err := s.SweepOnce(ctx)
	if err != nil {
		logging.Error("reminder sweep failed", "error", err)
		return
	}
	logging.Info("reminder sweep finished", "as_of", res.AsOf.Format("2006-01-02"),
		"overdue", res.Overdue, "upcoming", res.Upcoming, "alerts", res.Alerts, "notified", res.Notified)
}

// SweepOnce runs a single sweep for the engine's today.
func (s *Service) SweepOnce(ctx context.Context) (*Result, error) {
	start := time.Now()
	if s.metrics != nil {
		defer func() { s.metrics.ReminderSweepDuration.Observe(time.Since(start).Seconds()) }()
	}

	asOf := s.source.Today()
	reminders, err := s.source.Reminders(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to compute reminders: %w", err)
	}
	alerts, err := s.source.Alerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute alerts: %w", err)
	}

	res := &Result{AsOf: asOf, Overdue: len(reminders.Overdue), Upcoming: len(reminders.Upcoming), Alerts: len(alerts)}
	if s.metrics != nil {
		s.metrics.OverdueTrolleys.Set(float64(res.Overdue))
		s.metrics.UpcomingTrolleys.Set(float64(res.Upcoming))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	overdueNow := make(map[string]time.Time, len(reminders.Overdue))
	for _, r := range reminders.Overdue {
		overdueNow[r.LineageKey] = r.NextDue
		if last, ok := s.overdue[r.LineageKey]; ok && last.Equal(r.NextDue) {
			continue
		}
		queued, dropped := s.notify(ctx, notification.Job{
			LineageKey: r.LineageKey,
			TrolleyID:  r.TrolleyID,
			Kind:       notification.KindOverdue,
			Title:      fmt.Sprintf("Trolley %s is overdue for PM", r.TrolleyID),
			Body:       fmt.Sprintf("Preventive maintenance was due on %s (%d days ago).", r.NextDue.Format("2006-01-02"), -r.DaysUntil),
		})
		if queued {
			res.Notified++
		}
		if dropped {
			// retried on the next sweep
			delete(overdueNow, r.LineageKey)
		}
	}
	s.overdue = overdueNow

	alertsNow := make(map[string]int, len(alerts))
	for _, a := range alerts {
		alertsNow[a.LineageKey] = a.Count
		if s.alerts[a.LineageKey] >= a.Count {
			continue
		}
		queued, dropped := s.notify(ctx, notification.Job{
			LineageKey: a.LineageKey,
			TrolleyID:  a.CurrentID,
			Kind:       notification.KindRepeatFailure,
			Title:      fmt.Sprintf("Trolley %s keeps failing", a.CurrentID),
			Body:       fmt.Sprintf("%d failures recorded, latest %s on %s.", a.Count, a.LastCategory, a.LastDate.Format("2006-01-02")),
		})
		if queued {
			res.Notified++
		}
		if dropped {
			if last, ok := s.alerts[a.LineageKey]; ok {
				alertsNow[a.LineageKey] = last
			} else {
				delete(alertsNow, a.LineageKey)
			}
		}
	}
	s.alerts = alertsNow

	return res, nil
}

// notify reports whether the job was queued and whether it was dropped
// because ctx ended. Without a dispatcher a job is neither.
func (s *Service) notify(ctx context.Context, job notification.Job) (queued, dropped bool) {
	if s.dispatcher == nil {
		return false, false
	}
	if s.dispatcher.Dispatch(ctx, job) {
		return true, false
	}
	return false, true
}
