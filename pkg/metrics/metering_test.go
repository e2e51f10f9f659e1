package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMeteringMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMeteringMetrics(reg)

	metrics.IncStorageChange("UPLOAD")
	metrics.IncStorageChange("UPLOAD")
	metrics.IncStorageChange("DELETE")
	metrics.ObserveIntervalClosed(90 * time.Second)
	metrics.IncWebhookEvent("checkout.session.completed")
	metrics.IncCheckoutSession("created")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "storage_change_events_total", "action", "UPLOAD"); err != nil {
		t.Fatalf("fetch uploads: %v", err)
	} else if got != 2 {
		t.Fatalf("expected uploads=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "storage_change_events_total", "action", "DELETE"); err != nil {
		t.Fatalf("fetch deletes: %v", err)
	} else if got != 1 {
		t.Fatalf("expected deletes=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "stripe_webhook_events_total", "type", "checkout.session.completed"); err != nil {
		t.Fatalf("fetch webhook events: %v", err)
	} else if got != 1 {
		t.Fatalf("expected webhook events=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "checkout_sessions_total", "outcome", "created"); err != nil {
		t.Fatalf("fetch checkout sessions: %v", err)
	} else if got != 1 {
		t.Fatalf("expected checkout sessions=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "usage_interval_duration_seconds"); err != nil {
		t.Fatalf("fetch interval duration: %v", err)
	} else if got != 90 {
		t.Fatalf("expected duration sum 90, got %f", got)
	}
}

func TestMeteringMetricsNilSafe(t *testing.T) {
	var metrics *MeteringMetrics
	metrics.IncStorageChange("UPLOAD")
	metrics.ObserveIntervalClosed(time.Second)

	unregistered := NewMeteringMetrics(nil)
	unregistered.IncStorageChange("UPLOAD")
	unregistered.IncWebhookEvent("checkout.session.completed")
	unregistered.IncCheckoutSession("failed")
	unregistered.ObserveIntervalClosed(time.Second)
}

func TestMeteringMetricsNormalizesEmptyLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMeteringMetrics(reg)
	metrics.IncStorageChange("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "storage_change_events_total", "action", "unknown"); err != nil {
		t.Fatalf("fetch unknown action: %v", err)
	} else if got != 1 {
		t.Fatalf("expected unknown=1, got %f", got)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		return metric.GetHistogram().GetSampleSum(), nil
	}
	return 0, fmt.Errorf("histogram %q has no samples", name)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
