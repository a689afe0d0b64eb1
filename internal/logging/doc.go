// Package logging provides structured logging with per-module levels.
//
// Records go to stdout (text or json), to the systemd journal when the
// journal socket is present, and to an in-memory ring buffer that the
// control API streams to SSE clients.
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"led": "debug"},
//	})
//
//	logger := logging.GetLogger("flash")
//	logger.Info("Authorizing flash write", "attempt_id", id)
//
// On a host with journald:
//
//	journalctl -t failsafe MODULE=led
package logging
