// Package notify delivers password reset codes and authentication events
// to the MQTT bus, where delivery workers turn them into email or SMS.
//
// Gatekeeper never talks to a mail or SMS provider itself. When MQTT is
// disabled the LogNotifier records that a code was issued, without the code.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nerrad567/gatekeeper/internal/auth"
	"github.com/nerrad567/gatekeeper/internal/infrastructure/mqtt"
)

// ErrNoPublisher is returned by NewMQTTNotifier without a publisher.
var ErrNoPublisher = errors.New("notify: publisher is required")

// Publisher sends a JSON document to an MQTT topic.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// resetMessage is the payload a delivery worker receives.
type resetMessage struct {
	AccountID string    `json:"account_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Channel   string    `json:"channel"`
	OTP       string    `json:"otp"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MQTTNotifier publishes reset codes on gatekeeper/notify/{channel}/{account}.
type MQTTNotifier struct {
	pub    Publisher
	topics mqtt.Topics
	logger *slog.Logger
}

// NewMQTTNotifier creates a notifier on pub.
func NewMQTTNotifier(pub Publisher, logger *slog.Logger) (*MQTTNotifier, error) {
	if pub == nil {
		return nil, ErrNoPublisher
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTNotifier{pub: pub, logger: logger}, nil
}

// NotifyReset implements auth.Notifier.
func (n *MQTTNotifier) NotifyReset(_ context.Context, notice auth.ResetNotice) error {
	topic := n.topics.NotifyReset(notice.Channel, notice.AccountID)
	err := n.pub.PublishJSON(topic, resetMessage{
		AccountID: notice.AccountID,
		Username:  notice.Username,
		Email:     notice.Email,
		Channel:   notice.Channel,
		OTP:       notice.OTP,
		ExpiresAt: notice.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("publishing reset notice to %s: %w", topic, err)
	}

	n.logger.Debug("reset notice published", "account_id", notice.AccountID, "channel", notice.Channel)
	return nil
}

// LogNotifier stands in for the bus when MQTT is off. The code itself is
// never written anywhere; an operator sees only that one was issued.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// NotifyReset implements auth.Notifier.
func (n *LogNotifier) NotifyReset(_ context.Context, notice auth.ResetNotice) error {
	n.logger.Warn("reset code issued but no delivery channel is connected",
		"account_id", notice.AccountID,
		"channel", notice.Channel,
		"expires_at", notice.ExpiresAt.UTC().Format(time.RFC3339),
	)
	return nil
}
