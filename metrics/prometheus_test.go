package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorderCountsByLabel(t *testing.T) {
	recorder := NewPrometheusRecorder()
	ctx := context.Background()

	tags := map[string]string{"operation": "renew", "status": "success", "role": "LENDER", "ignored": "x"}
	recorder.IncCounter(ctx, "dcb.renew.total", 1, tags)
	recorder.IncCounter(ctx, "dcb.renew.total", 2, tags)
	recorder.IncCounter(ctx, "dcb.renew.total", 1, map[string]string{"operation": "renew", "status": "failure"})

	counter := recorder.counters["dcb_renew_total"]
	if counter == nil {
		t.Fatalf("expected counter to be registered under sanitized name")
	}
	got := testutil.ToFloat64(counter.With(prometheus.Labels{
		"operation": "renew", "status": "success", "role": "LENDER", "target_status": "", "job_id": "",
	}))
	if got != 3 {
		t.Fatalf("expected 3 successful renewals, got %v", got)
	}
	if n := testutil.CollectAndCount(counter); n != 2 {
		t.Fatalf("expected two label series, got %d", n)
	}
}

func TestPrometheusRecorderObservesHistogramAndServesHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewPrometheusRecorder(WithRegistry(registry), WithNamespace("lib"))
	recorder.ObserveHistogram(context.Background(), "dcb.get_status.duration_ms", 12, map[string]string{"operation": "get_status", "status": "success"})

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 || families[0].GetName() != "lib_dcb_get_status_duration_ms" {
		t.Fatalf("unexpected metric families: %v", families)
	}

	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "lib_dcb_get_status_duration_ms_count") {
		t.Fatalf("expected histogram in exposition, got %s", body)
	}
}

func TestPrometheusRecorderSharesCollectorsAcrossRecorders(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewPrometheusRecorder(WithRegistry(registry))
	second := NewPrometheusRecorder(WithRegistry(registry))

	first.IncCounter(context.Background(), "dcb.create_transaction.total", 1, map[string]string{"operation": "create_transaction"})
	second.IncCounter(context.Background(), "dcb.create_transaction.total", 1, map[string]string{"operation": "create_transaction"})

	if got := testutil.ToFloat64(first.counters["dcb_create_transaction_total"].With(prometheus.Labels{
		"operation": "create_transaction", "status": "", "role": "", "target_status": "", "job_id": "",
	})); got != 2 {
		t.Fatalf("expected the second recorder to reuse the registered collector, got %v", got)
	}
}

func TestPrometheusRecorderCustomLabelsAndBuckets(t *testing.T) {
	recorder := NewPrometheusRecorder(WithLabels("operation"), WithBuckets(100, 1000))
	recorder.ObserveHistogram(context.Background(), "dcb.renew.duration_ms", 150, map[string]string{"operation": "renew", "role": "LENDER"})

	histogram := recorder.histograms["dcb_renew_duration_ms"]
	if histogram == nil {
		t.Fatalf("expected histogram to be registered")
	}
	families, err := recorder.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	metric := families[0].GetMetric()[0]
	if len(metric.GetLabel()) != 1 || metric.GetLabel()[0].GetName() != "operation" {
		t.Fatalf("expected the operation label only, got %v", metric.GetLabel())
	}
	buckets := metric.GetHistogram().GetBucket()
	if len(buckets) != 2 || buckets[0].GetCumulativeCount() != 0 || buckets[1].GetCumulativeCount() != 1 {
		t.Fatalf("expected 150ms to land in the 1000 bucket, got %v", buckets)
	}

	defaults := NewPrometheusRecorder(WithLabels(), WithBuckets())
	if len(defaults.labels) != len(DefaultLabels) || len(defaults.buckets) != len(defaultBuckets) {
		t.Fatalf("expected empty options to keep defaults")
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"dcb.renew.total":   "dcb_renew_total",
		" 9lives ":          "_9lives",
		"with-dash/slash":   "with_dash_slash",
		"already_ok:metric": "already_ok:metric",
	}
	for in, want := range cases {
		if got := sanitize(in); got != want {
			t.Fatalf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
