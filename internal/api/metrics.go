package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/screencap/internal/events"
	"github.com/smazurov/screencap/internal/metrics/exporters"
)

// registerMetricsRoutes streams the sampled session metrics.
func (s *Server) registerMetricsRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "metrics-stream",
		Method:      http.MethodGet,
		Path:        "/api/metrics",
		Summary:     "Metrics Server-Sent Events Stream",
		Description: "Recording time and output size of each session, sampled every second and sent when they change",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, exporters.GetEventTypes(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 4)
		unsubscribe := events.Forward[events.SessionMetricsEvent](s.eventBus, eventCh)
		defer unsubscribe()

		relay(ctx, send, eventCh)
	})
}
