package main

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type memoryLogExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *memoryLogExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *memoryLogExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryLogExporter) ForceFlush(context.Context) error { return nil }

func TestOTelLogSubscriber(t *testing.T) {
	exp := &memoryLogExporter{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	defer provider.Shutdown(context.Background())

	x, _ := newTestExtractor(testConfig(), newFixedClock())
	x.Subscribe(&OTelLogSubscriber{logger: provider.Logger("test")})
	x.Process("[Behaviour] OnPlayerJoined Alice (usr_a1)\n")

	exp.mu.Lock()
	defer exp.mu.Unlock()
	if len(exp.records) != 1 {
		t.Fatalf("exported %d records, want 1", len(exp.records))
	}
	r := exp.records[0]
	if r.Body().AsString() != string(KindPlayerJoined) {
		t.Errorf("body = %q", r.Body().AsString())
	}
	attrs := map[string]string{}
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	if attrs["player"] != "Alice" || attrs["player_id"] != "usr_a1" {
		t.Errorf("attributes = %v", attrs)
	}
}

func sumCounter(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is %T, want Sum[int64]", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestPipelineMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	metrics, err := newPipelineMetrics(provider.Meter("test"))
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	store := newTestStore(cfg)
	session := NewSession()
	queue := &notificationQueue{}
	x := NewExtractor(session, store, metrics, zerolog.Nop())
	x.now = newFixedClock().Now
	x.Subscribe(NewAdmitter(store, queue, metrics, zerolog.Nop()))
	d := NewDispatchEngine(queue, []Channel{&recordingChannel{}}, session, store, metrics, zerolog.Nop())

	x.Process("[Behaviour] OnPlayerJoined A\n[Behaviour] OnPlayerJoined B\n[Behaviour] Hard max players 8\n")
	if err := d.step(context.Background(), testTick); err != nil {
		t.Fatal(err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	checks := map[string]int64{
		"vrc.events.parsed":           3,
		"vrc.notifications.admitted":  2,
		"vrc.notifications.rejected":  1,
		"vrc.notifications.delivered": 1,
		"vrc.notifications.merged":    1,
	}
	for name, want := range checks {
		if got := sumCounter(t, rm, name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *pipelineMetrics
	m.eventParsed(KindPlayerJoined)
	m.notificationAdmitted(KindPlayerJoined)
	m.notificationRejected(KindPlayerJoined, "silenced")
	m.notificationDelivered(KindPlayerJoined)
	m.notificationsMerged(KindPlayerJoined, 3)
}
