package api

import (
	"fmt"
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

// AlertLoginFailureSpike fires when login failures in the sliding window
// cross the threshold — a credential-stuffing signal.
const AlertLoginFailureSpike AlertType = "login_failure_spike"

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// metricsCollector tracks a sliding window of login failures for anomaly
// detection.
type metricsCollector struct {
	mu sync.Mutex

	loginFailures  []time.Time
	loginWindow    time.Duration
	loginThreshold int
	lastAlert      time.Time

	alertFn AlertFunc
}

const (
	defaultLoginFailureWindow    = 1 * time.Minute
	defaultLoginFailureThreshold = 50
	alertCooldown                = 1 * time.Minute
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		loginWindow:    defaultLoginFailureWindow,
		loginThreshold: defaultLoginFailureThreshold,
		alertFn:        alertFn,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	if event == AuditLoginFailure {
		m.recordLoginFailure()
	}
}

func (m *metricsCollector) recordLoginFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.loginFailures = append(m.loginFailures, now)

	// Drop entries that fell out of the window.
	cutoff := now.Add(-m.loginWindow)
	kept := m.loginFailures[:0]
	for _, ts := range m.loginFailures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	m.loginFailures = kept

	if len(m.loginFailures) >= m.loginThreshold && now.Sub(m.lastAlert) > alertCooldown {
		m.lastAlert = now
		m.alertFn(AlertEvent{
			Type:      AlertLoginFailureSpike,
			Message:   fmt.Sprintf("%d login failures in the last %s", len(m.loginFailures), m.loginWindow),
			Count:     len(m.loginFailures),
			Threshold: m.loginThreshold,
			Timestamp: now,
		})
	}
}
