package exporters

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/screencap/internal/events"
	"github.com/smazurov/screencap/internal/metrics"
)

// DefaultInterval is how often session metrics are sampled.
const DefaultInterval = time.Second

// EventPublisher receives the sampled metrics.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter samples every tracked session once per interval and
// publishes a SessionMetricsEvent for it. A sample equal to the one
// published last for that session is skipped, so a paused or finished
// session goes quiet.
type SSEExporter struct {
	bus      EventPublisher
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	last   map[string]events.SessionMetricsEvent
}

// NewSSEExporter creates an exporter sampling at DefaultInterval.
func NewSSEExporter(bus EventPublisher) *SSEExporter {
	return &SSEExporter{
		bus:      bus,
		interval: DefaultInterval,
		last:     make(map[string]events.SessionMetricsEvent),
	}
}

// Start samples until ctx is done or Stop is called. Starting a running
// exporter does nothing.
func (s *SSEExporter) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

// Stop ends sampling and waits for the loop to exit.
func (s *SSEExporter) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *SSEExporter) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *SSEExporter) sample() {
	current := metrics.GetAllSessionMetrics()
	for id := range s.last {
		if _, ok := current[id]; !ok {
			delete(s.last, id)
		}
	}
	for id, m := range current {
		ev := events.SessionMetricsEvent{
			EventType: "session_metrics",
			SessionID: id,
			State:     m.State,
			Elapsed:   strconv.FormatFloat(m.Elapsed.Seconds(), 'f', 1, 64),
			FileSize:  strconv.FormatInt(fileSize(m.Path), 10),
		}
		if prev, ok := s.last[id]; ok && prev == ev {
			continue
		}
		s.last[id] = ev
		s.bus.Publish(ev)
	}
}

// fileSize is zero for broadcasts and for files not created yet.
func fileSize(path string) int64 {
	if path == "" {
		return 0
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// GetEventTypes returns the payloads of the metrics event stream.
func GetEventTypes() map[string]any {
	return map[string]any{
		"session-metrics": events.SessionMetricsEvent{},
	}
}
