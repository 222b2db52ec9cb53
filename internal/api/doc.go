// Package api implements the local HTTP API of the cloud4rpi daemon.
//
// This package provides:
//   - read-only endpoints for the variable configuration, stored values
//     and diagnostics
//   - POST /api/v1/commands, which applies a command the same way a command
//     from the cloud is applied
//   - a WebSocket feed of every config, data and diagnostics message the
//     device publishes
//   - runtime and driver loop metrics
//   - middleware for request IDs, logging, panic recovery and body limits
//
// The server is meant for the device itself and the local network operator.
// It listens on loopback by default and has no authentication.
//
//	server, err := api.New(api.Deps{Config: cfg.API, Logger: log, Device: dev})
//	server.Start(ctx)
//	defer server.Close()
//
// Feed clients connect to /api/v1/ws and send
//
//	{"type":"subscribe","id":"1","channels":["data"]}
//
// The hub acks, sends the stored values at once and then every data
// message as it is published.
package api
