package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			}
		}
	}
	return total
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordSessionStarted("default")
	m.RecordSegmentDropped()
	m.RecordSegmentDropped()
	m.RecordProviderRequest("openai", "transcribe", 0.2, nil)
	m.RecordProviderRequest("soniox", "transcribe", 0.4, errors.New("boom"))
	m.RecordEntryPersisted("transcription")

	tests := []struct {
		name     string
		expected float64
	}{
		{"vt_active_sessions", 1},
		{"vt_sessions_started_total", 1},
		{"vt_segments_dropped_total", 2},
		{"vt_provider_requests_total", 2},
		{"vt_provider_failures_total", 1},
		{"vt_entries_persisted_total", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterValue(t, reg, tt.name); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}

	m.RecordSessionStopped(3)
	if got := counterValue(t, reg, "vt_active_sessions"); got != 0 {
		t.Errorf("Expected no active sessions after stop, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	m.RecordSessionStarted("voice_input")
	m.RecordSessionStopped(1)
	m.RecordSegmentEmitted("capture", 1)
	m.PipelineStarted()
	m.PipelineFinished()
	m.RecordPipelineFailure("transcribe")
	m.RecordEventEmitted("transcription-event")
	m.SetEventListeners(2)
	m.RecordHTTPRequest("GET", "/health", "200", 0.01)
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances must not collide on registration
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
