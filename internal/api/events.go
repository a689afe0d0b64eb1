package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/failsafe/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Marquee frames, flash guard transitions, input lock changes and status messages",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"led-frame":      events.LEDFrameEvent{},
		"flash-state":    events.FlashStateEvent{},
		"inputs-state":   events.InputsStateEvent{},
		"status-message": events.StatusMessageEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.Forward[events.LEDFrameEvent](s.eventBus, eventCh),
			events.Forward[events.FlashStateEvent](s.eventBus, eventCh),
			events.Forward[events.InputsStateEvent](s.eventBus, eventCh),
			events.Forward[events.StatusMessageEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// New clients learn the lock state before anything else.
		enabled := true
		if s.controls != nil {
			enabled = s.controls.InputsEnabled()
		}
		if err := send.Data(events.InputsStateEvent{
			Enabled:   enabled,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
