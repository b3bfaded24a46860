package notification

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trolley-pm/internal/logging"
	"trolley-pm/internal/metrics"
	"trolley-pm/internal/model"
)

// Kind says why a trolley notification is sent.
type Kind string

const (
	KindOverdue       Kind = "overdue"
	KindRepeatFailure Kind = "repeat_failure"
)

// Job is one notification about one trolley lineage.
type Job struct {
	LineageKey string `json:"lineage_key"`
	TrolleyID  string `json:"trolley_id"`
	Kind       Kind   `json:"kind"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	metrics *metrics.Registry
}

// NewWorkerPool creates a new worker pool. m may be nil.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, m *metrics.Registry) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		metrics: m,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	logging.Debug("notification worker started", "worker", id)
	for {
		select {
		case job := <-wp.jobs:
			logging.Debug("notification worker processing job", "worker", id, "trolley_id", job.TrolleyID, "kind", job.Kind)
			wp.sendNotificationsForTrolley(ctx, job)
		case <-ctx.Done():
			logging.Debug("notification worker shutting down", "worker", id)
			return
		}
	}
}

// Dispatch queues a job for the workers. It gives up and reports false once
// ctx is done, since the workers may already have stopped.
func (wp *WorkerPool) Dispatch(ctx context.Context, job Job) bool {
	select {
	case wp.jobs <- job:
		return true
	case <-ctx.Done():
		logging.Warn("notification dropped on shutdown", "trolley_id", job.TrolleyID, "kind", job.Kind)
		return false
	}
}

// sendNotificationsForTrolley notifies every subscriber following the
// trolley, plus every subscriber that follows no trolley in particular.
func (wp *WorkerPool) sendNotificationsForTrolley(ctx context.Context, job Job) {
	following := wp.db.Table("subscription_trolley_mapping").
		Select("push_subscription_endpoint").
		Where("trolley_lineage_key = ?", job.LineageKey)
	anyMapping := wp.db.Table("subscription_trolley_mapping").
		Select("push_subscription_endpoint")

	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Where("endpoint IN (?)", following).
		Or("endpoint NOT IN (?)", anyMapping).
		Find(&subscriptions).Error
	if err != nil {
		logging.Error("failed to fetch subscriptions", "trolley_id", job.TrolleyID, "error", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(job)
	if err != nil {
		logging.Error("failed to encode notification", "trolley_id", job.TrolleyID, "error", err)
		return
	}

	logging.Info("sending notifications", "count", len(subscriptions), "trolley_id", job.TrolleyID, "kind", job.Kind)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) count(result string) {
	if wp.metrics != nil {
		wp.metrics.NotificationsSentTotal.WithLabelValues(result).Inc()
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.count("error")
		logging.Warn("failed to send notification", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		wp.count("expired")
		logging.Info("subscription expired, deleting", "endpoint", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Select(clause.Associations).Delete(&sub).Error; err != nil {
			logging.Error("failed to delete expired subscription", "endpoint", sub.Endpoint, "error", err)
		}
		return
	}
	wp.count("sent")
}
