package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type EventType string

const (
	EventBookingDisplaced    EventType = "booking.displaced"
	EventArrangementPending  EventType = "arrangement.ack_pending"
	EventChangeRequested     EventType = "arrangement.change_requested"
	EventCaseRunningLate     EventType = "case.running_late"
	EventNextPatientReady    EventType = "room.next_patient_ready"
	EventBookingStatusChange EventType = "booking.status_changed"
)

// Event is a scheduling occurrence that downstream parties should hear about
type Event struct {
	Type       EventType              `json:"type"`
	BookingID  uuid.UUID              `json:"booking_id"`
	CaseCode   string                 `json:"case_code"`
	RoomID     uuid.UUID              `json:"room_id"`
	Recipients []uuid.UUID            `json:"recipients,omitempty"`
	Message    string                 `json:"message"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Notifier delivers scheduling events. Delivery is out of the core's hands,
// so implementations only report failures.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// =============================================================================
// Log notifier
// =============================================================================

type logNotifier struct {
	log *logrus.Logger
}

func NewLogNotifier(log *logrus.Logger) Notifier {
	return &logNotifier{log: log}
}

func (n *logNotifier) Notify(ctx context.Context, event Event) error {
	n.log.WithFields(logrus.Fields{
		"event":      event.Type,
		"booking_id": event.BookingID,
		"case_code":  event.CaseCode,
		"recipients": len(event.Recipients),
	}).Info(event.Message)
	return nil
}

// =============================================================================
// Redis pub/sub notifier
// =============================================================================

type redisNotifier struct {
	client  *redis.Client
	channel string
	log     *logrus.Logger
}

// NewRedisNotifier publishes events as JSON on a redis channel for realtime consumers.
func NewRedisNotifier(client *redis.Client, channel string, log *logrus.Logger) Notifier {
	return &redisNotifier{client: client, channel: channel, log: log}
}

func (n *redisNotifier) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	if err := n.client.Publish(ctx, n.channel, body).Err(); err != nil {
		n.log.Warnf("Failed to publish %s for booking %s: %+v", event.Type, event.BookingID, err)
		return fmt.Errorf("publish event %s: %w", event.Type, err)
	}
	return nil
}

// =============================================================================
// Webhook notifier
// =============================================================================

type webhookNotifier struct {
	client *resty.Client
	log    *logrus.Logger
}

// NewWebhookNotifier posts events to an external notification service.
func NewWebhookNotifier(url string, timeout time.Duration, log *logrus.Logger) Notifier {
	client := resty.New().
		SetBaseURL(url).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &webhookNotifier{client: client, log: log}
}

func (n *webhookNotifier) Notify(ctx context.Context, event Event) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(event).
		Post("")
	if err != nil {
		n.log.Warnf("Failed to deliver %s webhook for booking %s: %+v", event.Type, event.BookingID, err)
		return fmt.Errorf("deliver webhook %s: %w", event.Type, err)
	}
	if resp.IsError() {
		return fmt.Errorf("deliver webhook %s: status %d", event.Type, resp.StatusCode())
	}
	return nil
}

// =============================================================================
// Fan-out
// =============================================================================

type multiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier delivers every event to all notifiers, collecting failures.
func NewMultiNotifier(notifiers ...Notifier) Notifier {
	return &multiNotifier{notifiers: notifiers}
}

func (n *multiNotifier) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, notifier := range n.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyAll delivers events and logs, rather than returns, delivery failures.
func NotifyAll(ctx context.Context, notifier Notifier, log *logrus.Logger, events []Event) {
	for _, event := range events {
		if err := notifier.Notify(ctx, event); err != nil {
			log.Warnf("Notification %s for booking %s not delivered: %+v", event.Type, event.BookingID, err)
		}
	}
}
