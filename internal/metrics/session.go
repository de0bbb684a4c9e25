// Package metrics provides Prometheus metrics for capture sessions.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "screencap",
		Subsystem: "session",
		Name:      "active",
		Help:      "Sessions currently holding a pipeline",
	}, []string{"mode"})

	sessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screencap",
		Subsystem: "session",
		Name:      "finished_total",
		Help:      "Sessions that reached a terminal state",
	}, []string{"mode", "outcome"})

	sessionElapsed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "screencap",
		Subsystem: "session",
		Name:      "recording_seconds",
		Help:      "Time spent playing, excluding pauses",
	}, []string{"session_id"})

	buildErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screencap",
		Subsystem: "pipeline",
		Name:      "build_errors_total",
		Help:      "Failed pipeline builds by error kind",
	}, []string{"kind"})

	// Local cache for SSE exporter access.
	sessionCache   = make(map[string]*SessionMetrics)
	sessionCacheMu sync.RWMutex
)

// SessionMetrics holds current metric values for a session.
type SessionMetrics struct {
	Mode    string
	State   string
	Path    string
	Elapsed time.Duration

	playingSince time.Time
}

// SessionStarted registers a session that now holds a pipeline.
func SessionStarted(sessionID, mode, path string) {
	sessionsActive.WithLabelValues(mode).Inc()
	sessionElapsed.WithLabelValues(sessionID).Set(0)
	sessionCacheMu.Lock()
	sessionCache[sessionID] = &SessionMetrics{Mode: mode, State: "idle", Path: path}
	sessionCacheMu.Unlock()
}

// SetSessionState records a state change. Time between entering and
// leaving "playing" accumulates into the elapsed gauge.
func SetSessionState(sessionID, state string) {
	sessionCacheMu.Lock()
	defer sessionCacheMu.Unlock()
	m, ok := sessionCache[sessionID]
	if !ok {
		return
	}
	now := time.Now()
	if !m.playingSince.IsZero() {
		m.Elapsed += now.Sub(m.playingSince)
		m.playingSince = time.Time{}
	}
	if state == "playing" {
		m.playingSince = now
	}
	m.State = state
	sessionElapsed.WithLabelValues(sessionID).Set(m.Elapsed.Seconds())
}

// SessionFinished counts a terminal outcome and drops the active gauge.
// Per-session series are kept until DeleteSessionMetrics.
func SessionFinished(sessionID, outcome string) {
	sessionCacheMu.Lock()
	m, ok := sessionCache[sessionID]
	if ok {
		if !m.playingSince.IsZero() {
			m.Elapsed += time.Since(m.playingSince)
			m.playingSince = time.Time{}
		}
		m.State = outcome
		sessionElapsed.WithLabelValues(sessionID).Set(m.Elapsed.Seconds())
	}
	sessionCacheMu.Unlock()
	if !ok {
		return
	}
	sessionsActive.WithLabelValues(m.Mode).Dec()
	sessionsFinished.WithLabelValues(m.Mode, outcome).Inc()
}

// BuildFailed counts a failed build.
func BuildFailed(kind string) {
	buildErrors.WithLabelValues(kind).Inc()
}

// DeleteSessionMetrics removes all metrics for a session.
func DeleteSessionMetrics(sessionID string) {
	sessionElapsed.DeleteLabelValues(sessionID)
	sessionCacheMu.Lock()
	delete(sessionCache, sessionID)
	sessionCacheMu.Unlock()
}

// GetSessionMetrics returns a copy of metrics for a session.
func GetSessionMetrics(sessionID string) (SessionMetrics, bool) {
	sessionCacheMu.RLock()
	defer sessionCacheMu.RUnlock()
	m, ok := sessionCache[sessionID]
	if !ok {
		return SessionMetrics{}, false
	}
	return m.snapshot(), true
}

// GetAllSessionMetrics returns a copy of all session metrics.
func GetAllSessionMetrics() map[string]SessionMetrics {
	sessionCacheMu.RLock()
	defer sessionCacheMu.RUnlock()
	result := make(map[string]SessionMetrics, len(sessionCache))
	for id, m := range sessionCache {
		result[id] = m.snapshot()
	}
	return result
}

func (m *SessionMetrics) snapshot() SessionMetrics {
	c := *m
	if !m.playingSince.IsZero() {
		c.Elapsed += time.Since(m.playingSince)
	}
	c.playingSince = time.Time{}
	return c
}
