package mqtt

import "fmt"

// TopicPrefix is the root of every Gatekeeper topic.
const TopicPrefix = "gatekeeper"

// Topics provides builders for Gatekeeper MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topic := mqtt.Topics{}.NotifyReset("email", "acc-1a2b3c4d")
//	// Returns: "gatekeeper/notify/email/acc-1a2b3c4d"
type Topics struct{}

// NotifyReset returns the topic a delivery worker consumes for one channel.
// The payload carries the reset code, so broker ACLs must restrict it to
// the delivery worker.
//
// Example: gatekeeper/notify/email/acc-1a2b3c4d
func (Topics) NotifyReset(channel, accountID string) string {
	return fmt.Sprintf("%s/notify/%s/%s", TopicPrefix, channel, accountID)
}

// AuthEvent returns the topic authentication events are published on.
//
// Example: gatekeeper/event/auth/account_locked
func (Topics) AuthEvent(kind string) string {
	return fmt.Sprintf("%s/event/auth/%s", TopicPrefix, kind)
}

// RegistrySyncCommand returns the topic that triggers a route registry
// resynchronisation.
//
// Example: gatekeeper/command/registry/sync
func (Topics) RegistrySyncCommand() string {
	return TopicPrefix + "/command/registry/sync"
}

// RegistrySynced returns the topic a sync report is published on.
//
// Example: gatekeeper/event/registry/synced
func (Topics) RegistrySynced() string {
	return TopicPrefix + "/event/registry/synced"
}

// SystemStatus returns the online/offline status topic.
//
// Example: gatekeeper/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllNotifications returns a pattern matching every delivery channel.
//
// Pattern: gatekeeper/notify/+/+
func (Topics) AllNotifications() string {
	return TopicPrefix + "/notify/+/+"
}

// AllAuthEvents returns a pattern matching every authentication event.
//
// Pattern: gatekeeper/event/auth/+
func (Topics) AllAuthEvents() string {
	return TopicPrefix + "/event/auth/+"
}

// AllTopics returns a pattern matching all Gatekeeper topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: gatekeeper/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
