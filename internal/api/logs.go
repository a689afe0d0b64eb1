package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/failsafe/internal/events"
	"github.com/smazurov/failsafe/internal/logging"
)

// LogStreamInput filters the log stream.
type LogStreamInput struct {
	Tail   int    `query:"tail" minimum:"0" maximum:"500" default:"100" doc:"Number of buffered lines to replay first"`
	Module string `query:"module" doc:"Only lines from this module"`
	Level  string `query:"level" enum:"debug,info,warn,error" default:"debug" doc:"Minimum level"`
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

func (in *LogStreamInput) keep(module, level string) bool {
	if in.Module != "" && in.Module != module {
		return false
	}
	return levelRank[level] >= levelRank[in.Level]
}

func logEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}

// registerLogRoutes registers the log streaming SSE endpoint.
func (s *Server) registerLogRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Replays buffered log lines, then streams new ones",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"log-entry": events.LogEntryEvent{},
	}, func(ctx context.Context, input *LogStreamInput, send sse.Sender) {
		if buffer := logging.GetBuffer(); buffer != nil && input.Tail > 0 {
			entries := buffer.ReadAll()
			if len(entries) > input.Tail {
				entries = entries[len(entries)-input.Tail:]
			}
			for _, entry := range entries {
				if !input.keep(entry.Module, entry.Level) {
					continue
				}
				if err := send.Data(logEvent(entry)); err != nil {
					return
				}
			}
		}

		eventCh := make(chan any, 100)
		unsubscribe := events.Forward[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				entry, ok := ev.(events.LogEntryEvent)
				if !ok || !input.keep(entry.Module, entry.Level) {
					continue
				}
				if err := send.Data(entry); err != nil {
					return
				}
			}
		}
	})
}
