package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nerrad567/gatekeeper/internal/auth"
)

// DefaultQueueSize is the number of reset notices a Queue holds before it
// starts refusing new ones.
const DefaultQueueSize = 64

// ErrQueueFull is returned by Queue.NotifyReset when the buffer is full.
var ErrQueueFull = errors.New("notify: reset queue full")

// Queue hands reset notices to a delivery Notifier from one goroutine, so a
// forgot-password request never waits on the broker.
type Queue struct {
	next   auth.Notifier
	ch     chan auth.ResetNotice
	logger *slog.Logger
}

// NewQueue creates a queue in front of next. Call Run to start delivering.
func NewQueue(next auth.Notifier, size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		next:   next,
		ch:     make(chan auth.ResetNotice, size),
		logger: logger,
	}
}

// NotifyReset implements auth.Notifier. It only enqueues.
func (q *Queue) NotifyReset(_ context.Context, notice auth.ResetNotice) error {
	select {
	case q.ch <- notice:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued notices until ctx is cancelled, then drains what is
// left before returning.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case notice := <-q.ch:
			q.deliver(notice)
		case <-ctx.Done():
			for {
				select {
				case notice := <-q.ch:
					q.deliver(notice)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) deliver(notice auth.ResetNotice) {
	// The request that queued the notice has usually returned by now.
	if err := q.next.NotifyReset(context.Background(), notice); err != nil {
		q.logger.Error("reset notice delivery failed",
			"account_id", notice.AccountID,
			"channel", notice.Channel,
			"error", err,
		)
	}
}
