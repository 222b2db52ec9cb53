// Package logging is the daemon's slog setup.
//
// Every entry carries service=cloud4rpi and the build version. The format
// (json or text), the minimum level and the destination come from the
// logging section of config.yaml:
//
//	logging:
//	  level: info        # debug, info, warn, error
//	  format: json       # json, text
//	  output: file       # stdout, stderr, file
//	  file: /var/log/cloud4rpi.log
//
// The level is shared between a logger and its With children, so
// ToggleDebug (bound to SIGUSR1 in the daemon) affects all of them at once.
//
// Do not log the device token or broker password.
package logging
