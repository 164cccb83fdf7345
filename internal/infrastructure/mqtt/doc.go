// Package mqtt provides the MQTT client Gatekeeper uses as its side channel.
//
// Gatekeeper publishes on MQTT:
//   - reset codes for delivery workers (gatekeeper/notify/{channel}/{account})
//   - authentication events for monitoring (gatekeeper/event/auth/{kind})
//   - its own online/offline status, with a Last Will for crashes
//
// and listens for gatekeeper/command/registry/sync to resynchronise the route
// registry without a restart.
//
// # Security Considerations
//
//   - Notification topics carry plaintext reset codes; broker ACLs must
//     restrict them to the delivery worker
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Notification messages are never retained
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.RegistrySyncCommand(), 1,
//	    func(topic string, payload []byte) error {
//	        _, err := registry.Sync(ctx, manifest)
//	        return err
//	    })
package mqtt
