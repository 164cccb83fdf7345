package audit

import (
	"context"
	"log/slog"

	"github.com/nerrad567/gatekeeper/internal/auth"
)

// DefaultBufferSize is the buffer size for the async audit channel.
// Entries beyond this are dropped (best-effort) to avoid back-pressure on requests.
const DefaultBufferSize = 256

// Recorder queues audit entries and writes them serially from one goroutine.
// That avoids unbounded goroutine creation and is kinder to SQLite's serial
// write model.
type Recorder struct {
	repo   Repository
	ch     chan *AuditLog
	logger *slog.Logger
}

// NewRecorder creates a recorder. Call Run to start writing.
func NewRecorder(repo Repository, size int, logger *slog.Logger) *Recorder {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		repo:   repo,
		ch:     make(chan *AuditLog, size),
		logger: logger,
	}
}

// Record enqueues an entry. If the buffer is full the entry is dropped and a
// warning is logged.
func (r *Recorder) Record(entry *AuditLog) {
	select {
	case r.ch <- entry:
	default:
		r.logger.Warn("audit channel full, dropping entry",
			"action", entry.Action,
			"entity_type", entry.EntityType,
		)
	}
}

// RecordAuthEvent turns an authentication event into an audit entry.
func (r *Recorder) RecordAuthEvent(_ context.Context, e auth.Event) {
	details := map[string]any{}
	if e.UserType != "" {
		details["user_type"] = string(e.UserType)
	}
	if e.Platform != "" {
		details["platform"] = string(e.Platform)
	}
	if e.Reason != "" {
		details["reason"] = e.Reason
	}
	if len(details) == 0 {
		details = nil
	}

	r.Record(&AuditLog{
		Action:     string(e.Kind),
		EntityType: "account",
		EntityID:   e.AccountID,
		AccountID:  e.AccountID,
		Source:     "auth",
		Details:    details,
		CreatedAt:  e.Time,
	})
}

// Run writes queued entries until ctx is cancelled, then drains what is
// left before returning.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case entry := <-r.ch:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.ch:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(entry *AuditLog) {
	// Detached from the request context: the request may be long gone.
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("audit log write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err,
		)
	}
}
