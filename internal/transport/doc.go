// Package transport connects a device to the cloud4rpi service.
//
// A Conn delivers Messages (config, data, diagnostics) and reports remote
// commands. Two implementations exist:
//
//   - MQTT publishes to devices/{token}/{kind} and receives commands on
//     devices/{token}/commands. The client id is the token and the broker
//     session is persistent.
//   - HTTP posts to {base}/devices/{token}/{kind} and polls
//     {base}/devices/{token}/commands/latest.
//
// Data and diagnostics always travel in the envelope
//
//	{"ts": "2024-01-02T03:04:05.678Z", "payload": {...}}
//
// Config uses the same envelope over MQTT and the bare list over HTTP.
//
// Adapter turns any Conn into a device.Transport. Tee copies delivered
// messages to sinks such as the InfluxDB mirror, and ConnectWithRetry
// wraps the dial functions with bounded, growing retries:
//
//	conn, err := transport.ConnectWithRetry(ctx, policy, log, func() (*transport.MQTT, error) {
//	    return transport.DialMQTT(cfg.MQTT, cfg.Device.Token, log)
//	})
//	dev := device.New(transport.NewAdapter(conn))
package transport
