package mqtt

import (
	"encoding/json"
	"fmt"
)

// maxPayloadSize caps a single message. Notices and events are a few
// hundred bytes; anything near this is a bug.
const maxPayloadSize = 64 << 10

// Publish sends a message to topic.
//
// QoS 0 is fire and forget, 1 is at least once, 2 exactly once. Retained
// messages are kept by the broker for late subscribers; use them for status
// topics only, never for notifications carrying reset codes.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return waitToken(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// PublishJSON marshals v and publishes it, not retained, at the configured QoS.
func (c *Client) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrPublishFailed, err)
	}
	return c.Publish(topic, payload, byte(c.cfg.QoS), false) //nolint:gosec // G115: QoS validated to 0-2 by config
}
