package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

// SubjectPrefix is prepended to every event type.
const SubjectPrefix = "notifications.procurement."

// Publisher is the transport the notification publisher writes to.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, msgID string) error
}

// NotificationPublisher publishes procurement workflow events to NATS
// JetStream for the notifications service.
//
// Subject convention: notifications.procurement.<event_type>
//
// Publishing is non-fatal: errors are logged and reported to the caller's
// failure hook but never returned, so a notification outage never undoes a
// committed transition. The event ID is the JetStream message ID, so a retried
// publish inside the stream's duplicate window is dropped.
type NotificationPublisher struct {
	nats      Publisher
	log       zerolog.Logger
	onFailure func(eventType string)
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// client. A nil client turns publishing into a no-op.
func NewNotificationPublisher(nats Publisher, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nats, log: log}
}

// OnFailure registers a hook called for every event that could not be published.
func (p *NotificationPublisher) OnFailure(fn func(eventType string)) {
	p.onFailure = fn
}

// Subject returns the subject an event type is published on.
func Subject(eventType string) string {
	return SubjectPrefix + eventType
}

// Publish sends one workflow event.
func (p *NotificationPublisher) Publish(ctx context.Context, event *domain.NotificationEvent) {
	if p == nil || p.nats == nil || event == nil {
		return
	}
	if len(event.Recipients) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.fail(event, err, "notification: failed to marshal event")
		return
	}

	subject := Subject(event.EventType)
	if err := p.nats.Publish(ctx, subject, data, event.ID); err != nil {
		p.fail(event, err, fmt.Sprintf("notification: failed to publish to %s (non-fatal)", subject))
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("request_id", event.RequestID).
		Int("recipients", len(event.Recipients)).
		Msg("notification: event published")
}

func (p *NotificationPublisher) fail(event *domain.NotificationEvent, err error, msg string) {
	p.log.Warn().Err(err).
		Str("event_type", event.EventType).
		Str("request_id", event.RequestID).
		Msg(msg)
	if p.onFailure != nil {
		p.onFailure(event.EventType)
	}
}
