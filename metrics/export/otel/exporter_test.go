package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/zuauth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot zuauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() zuauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := zuauth.MetricsSnapshot{
		Counters:   make(map[zuauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[zuauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collectInt64(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	values := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					values[m.Name] = data.DataPoints[0].Value
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					values[m.Name] = data.DataPoints[0].Value
				}
			}
		}
	}
	return values
}

func TestExporterCollectsHandshakeCounters(t *testing.T) {
	reader, provider := newTestMeter()
	meter := provider.Meter("zuauth-test")

	src := &fakeSource{
		snapshot: zuauth.MetricsSnapshot{
			Counters: map[zuauth.MetricID]uint64{
				zuauth.MetricAuthSuccess:       3,
				zuauth.MetricAuthNonceMismatch: 2,
			},
			Histograms: map[zuauth.MetricID][]uint64{
				zuauth.MetricVerifyLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	values := collectInt64(t, reader)
	want := map[string]int64{
		"zuauth_auth_success_total":                    3,
		"zuauth_auth_nonce_mismatch_total":             2,
		"zuauth_audit_dropped_total":                   1,
		"zuauth_verify_latency_seconds_bucket_le_0_01": 2,
		"zuauth_verify_latency_seconds_count":          8,
	}
	for name, v := range want {
		if got, ok := values[name]; !ok || got != v {
			t.Fatalf("%s = %d (present=%v), want %d", name, got, ok, v)
		}
	}
}

type reportingSource struct {
	fakeSource
	report zuauth.SecurityReport
}

func (p *reportingSource) SecurityReport() zuauth.SecurityReport { return p.report }

func TestExporterObservesPosture(t *testing.T) {
	reader, provider := newTestMeter()
	meter := provider.Meter("zuauth-test")

	src := &reportingSource{
		fakeSource: fakeSource{
			snapshot: zuauth.MetricsSnapshot{
				Counters:   map[zuauth.MetricID]uint64{},
				Histograms: map[zuauth.MetricID][]uint64{},
			},
		},
		report: zuauth.SecurityReport{
			SessionMode: "sealed",
			Disclosure:  "anonymous",
			Warnings:    []string{"sealed_logout_not_revocable"},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "zuauth_posture_info" {
				continue
			}
			gauge, ok := m.Data.(metricdata.Gauge[int64])
			if !ok || len(gauge.DataPoints) != 1 {
				t.Fatalf("unexpected posture data %T", m.Data)
			}
			dp := gauge.DataPoints[0]
			if dp.Value != 1 {
				t.Fatalf("posture value = %d, want 1", dp.Value)
			}
			if v, ok := dp.Attributes.Value("session_mode"); !ok || v.AsString() != "sealed" {
				t.Fatalf("session_mode attribute = %v (present=%v)", v.AsString(), ok)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("posture gauge not collected")
	}
	if got := collectInt64(t, reader)["zuauth_config_lint_warnings"]; got != 1 {
		t.Fatalf("lint warnings = %d, want 1", got)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newTestMeter()
	meter := provider.Meter("zuauth-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newTestMeter()
	meter := provider.Meter("zuauth-test")

	src := &fakeSource{
		snapshot: zuauth.MetricsSnapshot{
			Counters: map[zuauth.MetricID]uint64{
				zuauth.MetricNonceIssued: 1,
			},
			Histograms: map[zuauth.MetricID][]uint64{},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[zuauth.MetricNonceIssued] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
