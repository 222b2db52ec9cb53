// Package spool keeps telemetry that could not reach cloud4rpi.
//
// Spool wraps a transport.Conn. When a data or diagnostics publish fails
// the message is written to the spooled_messages table with its original
// timestamp and JSON payload, and Send reports success. Flush replays the
// table oldest first and stops at the first failure, so a link that is
// still down loses nothing.
//
// Config is never spooled: the daemon re-sends it on every diagnostics
// tick anyway.
//
//	sp := spool.New(conn, db, cfg.Spool.MaxMessages)
//	dev := device.New(transport.NewAdapter(sp))
//	...
//	n, err := sp.Flush(ctx)
package spool
