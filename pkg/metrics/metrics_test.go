package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "outbox-retention"
	m.ObserveDuration(job, 250*time.Millisecond)
	m.IncSuccess(job)
	m.IncFailure(job)
	m.IncFailure(job)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_cron_job_runs_total", "result", "success"); err != nil || got != 1 {
		t.Fatalf("expected success=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_cron_job_runs_total", "result", "failure"); err != nil || got != 2 {
		t.Fatalf("expected failure=2, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "storefront_cron_job_duration_seconds", "job", job); err != nil || got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f (%v)", got, err)
	}
	if mf := findMetricFamily(mfs, "storefront_cron_job_last_success_timestamp_seconds"); mf == nil || mf.GetMetric()[0].GetGauge().GetValue() <= 0 {
		t.Fatal("expected last success gauge to be set")
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

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
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

func TestSinkMetricsCountsPerSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSinkMetrics(reg)
	m.IncDelivered("airtable")
	m.IncDelivered("airtable")
	m.IncFailed("database")
	m.IncDeadLettered("")
	m.ObserveDelivery("airtable", 40*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "order_sink_delivered_total", "sink", "airtable"); err != nil || got != 2 {
		t.Fatalf("expected delivered=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "order_sink_failed_total", "sink", "database"); err != nil || got != 1 {
		t.Fatalf("expected failed=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "order_sink_dead_lettered_total", "sink", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected empty sink label to normalize, got %f (%v)", got, err)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var sink *SinkMetrics
	sink.IncDelivered("x")
	var checkout *CheckoutMetrics
	checkout.IncStep("started")
	NewCheckoutMetrics(nil).IncMaterialization("webhook", "created")
}

func TestCheckoutMetricsStepCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)
	m.IncStep("personal_info")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "checkout_step_transitions_total", "step", "personal_info"); err != nil || got != 1 {
		t.Fatalf("expected step counter=1, got %f (%v)", got, err)
	}
}
