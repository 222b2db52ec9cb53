// Package runner drives a device on a fixed cadence.
//
// On start the runner publishes config, data and diagnostics once. After
// that it publishes data every data interval, config and diagnostics every
// diagnostics interval, and on every poll tick asks the HTTP transport for
// commands and replays the offline spool. A failed tick is logged and the
// next one proceeds as normal.
//
//	r, err := runner.New(dev, runner.Config{
//	    DataInterval:        cfg.DataInterval(),
//	    DiagnosticsInterval: cfg.DiagnosticsInterval(),
//	    PollInterval:        cfg.PollInterval(),
//	}, runner.WithSpool(sp), runner.WithLogger(log))
//	...
//	err = r.Run(ctx)
package runner
