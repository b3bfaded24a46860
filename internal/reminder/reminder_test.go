package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trolley-pm/config"
	"trolley-pm/internal/analyzer"
	"trolley-pm/internal/metrics"
	"trolley-pm/internal/model"
	"trolley-pm/internal/notification"
	"trolley-pm/internal/scheduler"
)

// mockSource is a mock implementation of the Source interface.
type mockSource struct {
	TodayFunc     func() time.Time
	RemindersFunc func(ctx context.Context, asOf time.Time) (*scheduler.Reminders, error)
	AlertsFunc    func(ctx context.Context) ([]analyzer.Alert, error)
}

func (m *mockSource) Today() time.Time { return m.TodayFunc() }

func (m *mockSource) Reminders(ctx context.Context, asOf time.Time) (*scheduler.Reminders, error) {
	return m.RemindersFunc(ctx, asOf)
}

func (m *mockSource) Alerts(ctx context.Context) ([]analyzer.Alert, error) {
	return m.AlertsFunc(ctx)
}

// recorder collects dispatched jobs.
type recorder struct {
	mu   sync.Mutex
	jobs []notification.Job
}

func (r *recorder) Dispatch(ctx context.Context, job notification.Job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return true
}

func (r *recorder) take() []notification.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := r.jobs
	r.jobs = nil
	return jobs
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSweepOnce_NotifiesOncePerChange(t *testing.T) {
	today := day(2024, 4, 5)
	overdue := []scheduler.Reminder{
		{LineageKey: "L1", TrolleyID: "T-101", NextDue: day(2024, 3, 31), Status: scheduler.StatusOverdue, DaysUntil: -5},
	}
	alerts := []analyzer.Alert{
		{LineageKey: "L2", CurrentID: "T-202", Count: 3, LastCategory: model.CategoryWheelIssue, LastDate: day(2024, 3, 10)},
	}
	src := &mockSource{
		TodayFunc: func() time.Time { return today },
		RemindersFunc: func(ctx context.Context, asOf time.Time) (*scheduler.Reminders, error) {
			assert.Equal(t, today, asOf)
			return &scheduler.Reminders{AsOf: asOf, Overdue: overdue, Upcoming: []scheduler.Reminder{{LineageKey: "L3"}}}, nil
		},
		AlertsFunc: func(ctx context.Context) ([]analyzer.Alert, error) { return alerts, nil },
	}
	rec := &recorder{}
	m := metrics.New()
	svc := NewService(config.ReminderConfig{Enabled: true}, src, rec, m)
	ctx := context.Background()

	res, err := svc.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Overdue)
	assert.Equal(t, 1, res.Upcoming)
	assert.Equal(t, 2, res.Notified)

	jobs := rec.take()
	require.Len(t, jobs, 2)
	assert.Equal(t, notification.KindOverdue, jobs[0].Kind)
	assert.Equal(t, "T-101", jobs[0].TrolleyID)
	assert.Contains(t, jobs[0].Body, "2024-03-31")
	assert.Contains(t, jobs[0].Body, "5 days ago")
	assert.Equal(t, notification.KindRepeatFailure, jobs[1].Kind)
	assert.Contains(t, jobs[1].Body, "WHEEL_ISSUE")

	// nothing changed
	res, err = svc.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Notified)
	assert.Empty(t, rec.take())

	// a fourth failure and a mark-done followed by a new overdue date
	alerts[0].Count = 4
	overdue[0].NextDue = day(2024, 4, 1)
	res, err = svc.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Notified)
	assert.Len(t, rec.take(), 2)

	// resolved, then overdue again on the same date
	saved := overdue
	overdue = nil
	_, err = svc.SweepOnce(ctx)
	require.NoError(t, err)
	overdue = saved
	res, err = svc.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Notified)
}

func TestSweepOnce_WithoutDispatcher(t *testing.T) {
	src := &mockSource{
		TodayFunc: func() time.Time { return day(2024, 1, 1) },
		RemindersFunc: func(ctx context.Context, asOf time.Time) (*scheduler.Reminders, error) {
			return &scheduler.Reminders{Overdue: []scheduler.Reminder{{LineageKey: "L1", TrolleyID: "T-1"}}}, nil
		},
		AlertsFunc: func(ctx context.Context) ([]analyzer.Alert, error) { return nil, nil },
	}
	svc := NewService(config.ReminderConfig{Enabled: true}, src, nil, nil)

	res, err := svc.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Overdue)
	assert.Equal(t, 0, res.Notified)
}

func TestSweepOnce_PropagatesErrors(t *testing.T) {
	boom := errors.New("database is locked")
	src := &mockSource{
		TodayFunc: func() time.Time { return day(2024, 1, 1) },
		RemindersFunc: func(ctx context.Context, asOf time.Time) (*scheduler.Reminders, error) {
			return nil, boom
		},
		AlertsFunc: func(ctx context.Context) ([]analyzer.Alert, error) { return nil, nil },
	}
	svc := NewService(config.ReminderConfig{Enabled: true}, src, &recorder{}, nil)

	_, err := svc.SweepOnce(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRun_DisabledReturnsImmediately(t *testing.T) {
	svc := NewService(config.ReminderConfig{Enabled: false}, &mockSource{}, nil, nil)
	assert.NoError(t, svc.Run(context.Background()))
}

func TestRun_StopsOnCancel(t *testing.T) {
	var mu sync.Mutex
	sweeps := 0
	src := &mockSource{
		TodayFunc: func() time.Time { return day(2024, 1, 1) },
		RemindersFunc: func(ctx context.Context, asOf time.Time) (*scheduler.Reminders, error) {
			mu.Lock()
			sweeps++
			mu.Unlock()
			return &scheduler.Reminders{}, nil
		},
		AlertsFunc: func(ctx context.Context) ([]analyzer.Alert, error) { return nil, nil },
	}
	svc := NewService(config.ReminderConfig{Enabled: true, Interval: 10 * time.Millisecond}, src, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sweeps >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestSweepOnce_ReturnsWhenCancelledWithFullQueue(t *testing.T) {
	var overdue []scheduler.Reminder
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("L%d", i)
		overdue = append(overdue, scheduler.Reminder{LineageKey: key, TrolleyID: "T-" + key, NextDue: day(2024, 3, 1), Status: scheduler.StatusOverdue})
	}
	src := &mockSource{
		TodayFunc: func() time.Time { return day(2024, 4, 5) },
		RemindersFunc: func(ctx context.Context, asOf time.Time) (*scheduler.Reminders, error) {
			return &scheduler.Reminders{AsOf: asOf, Overdue: overdue}, nil
		},
		AlertsFunc: func(ctx context.Context) ([]analyzer.Alert, error) { return nil, nil },
	}
	// no workers drain the queue, it holds a single job
	pool := notification.NewWorkerPool(1, nil, nil, nil)
	svc := NewService(config.ReminderConfig{Enabled: true}, src, pool, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan *Result, 1)
	go func() {
		res, err := svc.SweepOnce(ctx)
		assert.NoError(t, err)
		done <- res
	}()

	select {
	case res := <-done:
		require.NotNil(t, res)
		assert.Equal(t, 5, res.Overdue)
		assert.LessOrEqual(t, res.Notified, 1)
	case <-time.After(time.Second):
		t.Fatal("SweepOnce blocked after the context was cancelled")
	}
}

// droppingDispatcher refuses everything until open is set.
type droppingDispatcher struct {
	recorder
	open bool
}

func (d *droppingDispatcher) Dispatch(ctx context.Context, job notification.Job) bool {
	if !d.open {
		return false
	}
	return d.recorder.Dispatch(ctx, job)
}

func TestSweepOnce_RetriesDroppedNotifications(t *testing.T) {
	src := &mockSource{
		TodayFunc: func() time.Time { return day(2024, 4, 5) },
		RemindersFunc: func(ctx context.Context, asOf time.Time) (*scheduler.Reminders, error) {
			return &scheduler.Reminders{Overdue: []scheduler.Reminder{{LineageKey: "L1", TrolleyID: "T-1", NextDue: day(2024, 3, 1)}}}, nil
		},
		AlertsFunc: func(ctx context.Context) ([]analyzer.Alert, error) {
			return []analyzer.Alert{{LineageKey: "L2", CurrentID: "T-2", Count: 3}}, nil
		},
	}
	d := &droppingDispatcher{}
	svc := NewService(config.ReminderConfig{Enabled: true}, src, d, nil)

	res, err := svc.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Notified)

	d.open = true
	res, err = svc.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Notified)
	assert.Len(t, d.take(), 2)
}
