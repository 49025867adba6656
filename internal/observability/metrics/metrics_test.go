package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPipelineMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)
	m.ObserveDialogueStarted("1")
	m.ObserveTurn("replied")
	m.ObserveTurnLatency("awaiting_age", 1.2)
	m.ObserveLLMCost(0.000123)
	m.ObserveReminder("t_minus_2h")
	m.ObserveNotification("qualified", "sent")
	m.ObserveAPIError("send_message")
}

func TestPipelineMetricsNilSafe(t *testing.T) {
	var m *PipelineMetrics
	m.ObserveDialogueStarted("1")
	m.ObserveTurn("replied")
	m.ObserveTurnLatency("state", 0.1)
	m.ObserveLLMCost(0.1)
	m.ObserveReminder("kind")
	m.ObserveNotification("queue", "status")
	m.ObserveAPIError("op")
}
