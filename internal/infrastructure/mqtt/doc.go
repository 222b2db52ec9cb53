// Package mqtt provides MQTT client connectivity for a cloud4rpi device.
//
// This package manages:
//   - Connection to the cloud4rpi broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Connection health monitoring
//
// # Architecture
//
// Each device talks to the broker under its own topic root:
//
//	devices/{token}/config       → variable configuration
//	devices/{token}/data         → variable values
//	devices/{token}/diagnostics  → diagnostics
//	devices/{token}/commands     ← remote commands
//
// The device token doubles as client ID and the session is persistent, so
// commands sent while the device is offline are delivered on reconnect.
//
// # Security Considerations
//
//   - TLS should be enabled outside development (cfg.Broker.TLS=true)
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, token)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Token: token}
//	err = client.Subscribe(topics.Commands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish(ctx, topics.Data(), payload)
package mqtt
