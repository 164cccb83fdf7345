package auth

import (
	"context"
	"time"
)

// EventKind names an authentication outcome worth recording.
type EventKind string

const (
	EventLoginSucceeded  EventKind = "login_succeeded"
	EventLoginFailed     EventKind = "login_failed"
	EventLoginRejected   EventKind = "login_rejected"
	EventAccountLocked   EventKind = "account_locked"
	EventRegistered      EventKind = "account_registered"
	EventAccountCreated  EventKind = "account_created"
	EventAccountUpdated  EventKind = "account_updated"
	EventPasswordChanged EventKind = "password_changed"
	EventPasswordReset   EventKind = "password_reset"
)

// Event describes one authentication outcome. It never carries credentials.
type Event struct {
	Kind      EventKind
	AccountID string
	UserType  UserType
	Platform  Platform
	Reason    string
	Time      time.Time
}

// EventRecorder receives authentication events. Implementations must not
// block the caller for long; slow sinks should buffer.
type EventRecorder interface {
	RecordAuthEvent(ctx context.Context, e Event)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthEvent(context.Context, Event) {}
