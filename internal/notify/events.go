package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/nerrad567/gatekeeper/internal/auth"
	"github.com/nerrad567/gatekeeper/internal/infrastructure/mqtt"
)

// eventMessage is the public shape of an authentication event.
type eventMessage struct {
	Kind      string    `json:"kind"`
	AccountID string    `json:"account_id,omitempty"`
	UserType  string    `json:"user_type,omitempty"`
	Platform  string    `json:"platform,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Time      time.Time `json:"time"`
}

// EventPublisher mirrors authentication events onto
// gatekeeper/event/auth/{kind} for monitoring consumers. Publish failures
// are logged and dropped; the login path never waits on a retry.
type EventPublisher struct {
	pub    Publisher
	topics mqtt.Topics
	logger *slog.Logger
}

// NewEventPublisher creates an EventPublisher on pub.
func NewEventPublisher(pub Publisher, logger *slog.Logger) (*EventPublisher, error) {
	if pub == nil {
		return nil, ErrNoPublisher
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{pub: pub, logger: logger}, nil
}

// RecordAuthEvent implements auth.EventRecorder.
func (p *EventPublisher) RecordAuthEvent(_ context.Context, e auth.Event) {
	msg := eventMessage{
		Kind:      string(e.Kind),
		AccountID: e.AccountID,
		UserType:  string(e.UserType),
		Platform:  string(e.Platform),
		Reason:    e.Reason,
		Time:      e.Time.UTC(),
	}
	if err := p.pub.PublishJSON(p.topics.AuthEvent(msg.Kind), msg); err != nil {
		p.logger.Warn("auth event publish failed", "kind", msg.Kind, "error", err)
	}
}

// Fanout delivers each event to every recorder in order.
type Fanout []auth.EventRecorder

// RecordAuthEvent implements auth.EventRecorder.
func (f Fanout) RecordAuthEvent(ctx context.Context, e auth.Event) {
	for _, r := range f {
		r.RecordAuthEvent(ctx, e)
	}
}
