package exporters

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/screencap/internal/events"
	"github.com/smazurov/screencap/internal/metrics"
)

type mockEventBus struct {
	mu        sync.Mutex
	events    []events.Event
	published chan struct{}
}

func newMockEventBus() *mockEventBus {
	return &mockEventBus{
		events:    make([]events.Event, 0),
		published: make(chan struct{}, 100),
	}
}

func (m *mockEventBus) Publish(ev events.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.published <- struct{}{}:
	default:
	}
}

func (m *mockEventBus) getEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

func TestSSEExporterPublishesMetrics(t *testing.T) {
	sessionID := "sse-test-session"
	path := filepath.Join(t.TempDir(), "screencap_1.movie")
	if err := os.WriteFile(path, make([]byte, 1234), 0o600); err != nil {
		t.Fatal(err)
	}

	metrics.SessionStarted(sessionID, "screencast", path)
	metrics.SetSessionState(sessionID, "paused")
	defer metrics.DeleteSessionMetrics(sessionID)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)

	// Wait for at least one publish cycle
	select {
	case <-mock.published:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for metrics publish")
	}

	cancel()
	exporter.Stop()

	var found bool
	for _, ev := range mock.getEvents() {
		sme, ok := ev.(events.SessionMetricsEvent)
		if !ok || sme.SessionID != sessionID {
			continue
		}
		found = true
		if sme.State != "paused" {
			t.Errorf("State = %q, want \"paused\"", sme.State)
		}
		if sme.FileSize != "1234" {
			t.Errorf("FileSize = %q, want \"1234\"", sme.FileSize)
		}
		if sme.Elapsed != "0.0" {
			t.Errorf("Elapsed = %q, want \"0.0\"", sme.Elapsed)
		}
		break
	}

	if !found {
		t.Error("expected SessionMetricsEvent for test session")
	}
}

func TestSSEExporterMissingFile(t *testing.T) {
	sessionID := "sse-missing-file"
	metrics.SessionStarted(sessionID, "screencast", "/nonexistent/screencap_2.movie")
	defer metrics.DeleteSessionMetrics(sessionID)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 20 * time.Millisecond
	exporter.Start(t.Context())

	select {
	case <-mock.published:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for metrics publish")
	}
	exporter.Stop()

	for _, ev := range mock.getEvents() {
		if sme, ok := ev.(events.SessionMetricsEvent); ok && sme.SessionID == sessionID {
			if sme.FileSize != "0" {
				t.Errorf("FileSize = %q, want \"0\"", sme.FileSize)
			}
			return
		}
	}
	t.Error("expected SessionMetricsEvent for test session")
}

func TestSSEExporterStopIdempotent(t *testing.T) {
	sessionID := "sse-idempotent-test"
	metrics.SessionStarted(sessionID, "broadcast", "")
	defer metrics.DeleteSessionMetrics(sessionID)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	exporter.Start(context.Background())

	// Let it run briefly
	time.Sleep(30 * time.Millisecond)

	// Stop multiple times
	exporter.Stop()
	exporter.Stop()
	exporter.Stop()

	countAfterStop := len(mock.getEvents())
	time.Sleep(30 * time.Millisecond)
	countAfterWait := len(mock.getEvents())

	if countAfterWait != countAfterStop {
		t.Errorf("events published after stop: got %d, want %d", countAfterWait, countAfterStop)
	}
}

func TestSSEExporterStopBeforeStart(t *testing.T) {
	sessionID := "sse-stop-before-start-test"
	metrics.SessionStarted(sessionID, "webcam", "")
	defer metrics.DeleteSessionMetrics(sessionID)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	// Stop before start should not panic
	exporter.Stop()

	exporter.Start(t.Context())
	time.Sleep(30 * time.Millisecond)
	exporter.Stop()

	if len(mock.getEvents()) == 0 {
		t.Error("expected events after Start(), got none")
	}
}

func TestGetEventTypes(t *testing.T) {
	types := GetEventTypes()
	if _, ok := types["session-metrics"]; !ok {
		t.Error("expected session-metrics event type")
	}
}

func TestSSEExporterSkipsUnchangedSamples(t *testing.T) {
	sessionID := "sse-unchanged-session"
	metrics.SessionStarted(sessionID, "screencast", "")
	metrics.SetSessionState(sessionID, "paused")
	defer metrics.DeleteSessionMetrics(sessionID)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.sample()
	exporter.sample()

	count := func() int {
		n := 0
		for _, ev := range mock.getEvents() {
			if sme, ok := ev.(events.SessionMetricsEvent); ok && sme.SessionID == sessionID {
				n++
			}
		}
		return n
	}
	if got := count(); got != 1 {
		t.Fatalf("published %d samples for a paused session, want 1", got)
	}

	metrics.SetSessionState(sessionID, "stopping")
	exporter.sample()
	if got := count(); got != 2 {
		t.Errorf("published %d samples after a state change, want 2", got)
	}
}
