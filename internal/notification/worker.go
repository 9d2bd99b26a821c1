package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"care-pulse-backend/internal/escalation"
	"care-pulse-backend/internal/model"
	"care-pulse-backend/internal/parse"
)

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

// WorkerPool manages a pool of workers delivering escalation alerts to the
// care circle. Delivery is best-effort: a failed send is logged and dropped.
type WorkerPool struct {
	size    int
	jobs    chan escalation.Event
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan escalation.Event, size), // Buffered channel
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Notification worker %d started", id)
	for {
		select {
		case ev := <-wp.jobs:
			log.Printf("Worker %d processing escalation for user %d (log entry %d)", id, ev.UserID, ev.LogEntryID)
			wp.sendAlertsForEscalation(ctx, ev)
		case <-ctx.Done():
			log.Printf("Notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch hands an escalation event to the worker pool. Delivery is
// fire-and-forget: when the queue is full the event is dropped rather than
// blocking the poller's cycle.
func (wp *WorkerPool) Dispatch(ev escalation.Event) {
	select {
	case wp.jobs <- ev:
	default:
		log.Printf("Notification queue full; dropping alert for user %d (log entry %d)", ev.UserID, ev.LogEntryID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan escalation.Event {
	return wp.jobs
}

// sendAlertsForEscalation fetches the care-circle subscriptions watching the
// user and pushes one alert to each.
func (wp *WorkerPool) sendAlertsForEscalation(ctx context.Context, ev escalation.Event) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_user_mapping sm ON sm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sm.user_id = ?", ev.UserID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for user %d: %v", ev.UserID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d escalation alerts for user %d", len(subscriptions), ev.UserID)

	var user model.User
	userLabel := fmt.Sprintf("user %d", ev.UserID)
	if err := wp.db.WithContext(ctx).
		Select("display_name").
		First(&user, ev.UserID).Error; err != nil {
		log.Printf("Error fetching user %d: %v", ev.UserID, err)
	} else if user.DisplayName != "" {
		userLabel = user.DisplayName
	}

	message := fmt.Sprintf("%s has not responded since an emergency check-in at %s and needs immediate attention.",
		userLabel, ev.EffectiveAt.Format("15:04"))

	var entry model.LogEntry
	if err := wp.db.WithContext(ctx).
		Select("source").
		First(&entry, ev.LogEntryID).Error; err == nil {
		if src, err := parse.ParseSource(entry.Source); err == nil {
			message = fmt.Sprintf("%s Last check-in came from %s.", message, src.Channel)
		}
	}

	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	// Manually construct the webpush.Subscription object
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == 410 {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
