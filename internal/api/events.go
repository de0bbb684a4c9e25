package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/screencap/internal/api/models"
	"github.com/smazurov/screencap/internal/events"
)

// eventTypes maps SSE event names to payloads.
var eventTypes = map[string]any{
	"connected":             models.ConnectedEvent{},
	"session-created":       events.SessionCreatedEvent{},
	"session-state-changed": events.SessionStateChangedEvent{},
	"flush-done":            events.FlushDoneEvent{},
	"session-saved":         events.SessionSavedEvent{},
	"session-discarded":     events.SessionDiscardedEvent{},
	"config-reloaded":       events.ConfigReloadedEvent{},
}

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time session lifecycle events, including flush-done when output is complete",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, eventTypes, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribe := events.ForwardSession(s.eventBus, eventCh)
		defer unsubscribe()

		if err := send.Data(models.ConnectedEvent{
			Message:   "SSE connection established",
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		relay(ctx, send, eventCh)
	})
}

// relay writes events from ch to the client until ctx is done or a write
// fails.
func relay(ctx context.Context, send sse.Sender, ch <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			if err := send.Data(ev); err != nil {
				return
			}
		}
	}
}
