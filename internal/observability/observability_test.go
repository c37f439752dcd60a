package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range mf.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue metrics
				}
			}
			if metric.GetHistogram() != nil {
				return float64(metric.GetHistogram().GetSampleCount())
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetricsRecord(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RecordViolation("abuse")
	m.RecordViolation("abuse")
	m.RecordAction("delete", "ok")
	m.StartMessageProcessing()("violation")

	if got := counterValue(t, reg, "ngguard_violations_total", map[string]string{"reason": "abuse"}); got != 2 {
		t.Fatalf("expected 2 abuse violations, got %v", got)
	}
	if got := counterValue(t, reg, "ngguard_enforcement_actions_total", map[string]string{"action": "delete", "result": "ok"}); got != 1 {
		t.Fatalf("expected 1 delete action, got %v", got)
	}
	if got := counterValue(t, reg, "ngguard_message_processing_duration_seconds", map[string]string{"status": "violation"}); got != 1 {
		t.Fatalf("expected one observation, got %v", got)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.RecordViolation("abuse")
	m.RecordAction("delete", "ok")
	m.RecordCleanup("ok")
	m.StartMessageProcessing()("clean")
}

func TestComponentsStartAndStop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := NewMetricsServer("127.0.0.1:0", prometheus.NewRegistry())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("start metrics server: %v", err)
	}
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("stop metrics server: %v", err)
	}

	disabled := NewMetricsServer("", nil)
	if err := disabled.Start(ctx); err != nil {
		t.Fatalf("start disabled server: %v", err)
	}
	if err := disabled.Stop(ctx); err != nil {
		t.Fatalf("stop disabled server: %v", err)
	}

	tracing := NewTracing(false)
	if err := tracing.Start(ctx); err != nil {
		t.Fatalf("start tracing: %v", err)
	}
	if err := tracing.Stop(ctx); err != nil {
		t.Fatalf("stop tracing: %v", err)
	}
}
