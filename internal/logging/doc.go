// Package logging provides structured logging with per-module log levels.
//
// Output goes to stdout when it is a terminal, pipe or file, and to the
// systemd journal when journald is reachable; both are used when both are
// available.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"lifecycle": "debug",
//			"api":       "warn",
//		},
//	})
//
// and obtain loggers per package:
//
//	logger := logging.GetLogger("lifecycle")
//	logger.Info("Session flushed", "path", path)
//
// Initialize may be called again at runtime (the config watcher does this);
// existing module loggers pick up the new levels without being recreated.
//
// Journal entries carry SYSLOG_IDENTIFIER=screencap and one upper-cased
// field per attribute:
//
//	journalctl -t screencap MODULE=lifecycle
//	journalctl -t screencap SESSION_ID=6f1c...
//
// TOML:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	lifecycle = "debug"
package logging
