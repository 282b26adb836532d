package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingObserver struct{ samples []float64 }

func (r *recordingObserver) Observe(v float64) { r.samples = append(r.samples, v) }

func TestMetricsInitialized(t *testing.T) {
	Init()
	Init() // second call must not re-register

	if ChatEvents == nil || ActionTriggers == nil || CooldownRejections == nil || SessionResolutions == nil {
		t.Fatal("counters not initialized")
	}
	if ResolveDuration == nil || ActionDuration == nil || StreamOpenGauge == nil {
		t.Fatal("histograms or gauges not initialized")
	}
}

func TestCounterHelpers(t *testing.T) {
	Init()

	tests := []struct {
		name  string
		inc   func()
		value func() float64
	}{
		{"chat events", func() { IncChatEvents(3) }, func() float64 { return testutil.ToFloat64(ChatEvents) }},
		{"trigger", func() { IncTrigger("wave") }, func() float64 { return testutil.ToFloat64(ActionTriggers.WithLabelValues("wave")) }},
		{"action failure", func() { IncActionFailure("w") }, func() float64 { return testutil.ToFloat64(ActionFailures.WithLabelValues("w")) }},
		{"cooldown", func() { IncCooldown("wave") }, func() float64 { return testutil.ToFloat64(CooldownRejections.WithLabelValues("wave")) }},
		{"admin", func() { IncAdmin("enable", "ok") }, func() float64 { return testutil.ToFloat64(AdminCommands.WithLabelValues("enable", "ok")) }},
		{"resolution", func() { IncResolution("probe") }, func() float64 { return testutil.ToFloat64(SessionResolutions.WithLabelValues("probe")) }},
		{"lookup failure", func() { IncLookupFailure("search") }, func() float64 { return testutil.ToFloat64(LookupFailures.WithLabelValues("search")) }},
		{"stream switch", IncStreamSwitch, func() float64 { return testutil.ToFloat64(StreamSwitches) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.value()
			tt.inc()
			if after := tt.value(); after <= before {
				t.Errorf("counter did not increase: before=%v after=%v", before, after)
			}
		})
	}
}

func TestSetStreamOpen(t *testing.T) {
	Init()
	SetStreamOpen(true)
	if v := testutil.ToFloat64(StreamOpenGauge); v != 1 {
		t.Errorf("gauge = %v, want 1", v)
	}
	SetStreamOpen(false)
	if v := testutil.ToFloat64(StreamOpenGauge); v != 0 {
		t.Errorf("gauge = %v, want 0", v)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	obs := &recordingObserver{}
	executed := false
	d := TimeFunc(obs, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})
	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if d < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", d)
	}
	if len(obs.samples) != 1 || obs.samples[0] < 0.01 {
		t.Errorf("samples = %v, want one observation >= 0.01", obs.samples)
	}

	// nil observer is allowed
	TimeFunc(nil, func() {})
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty) = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation() = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}

func TestStartSpanWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(WithCorrelation(context.Background(), "c1"), "test.span", HTTPRouteAttr("/x"), SessionAttr("v1"))
	if ctx == nil {
		t.Fatal("StartSpan returned nil context")
	}
	RecordError(span, nil)
	SetSpanSuccess(span)
	EndSpan(span, errors.New("boom"))
	if IsTracingEnabled() {
		t.Error("tracing should be disabled without an endpoint")
	}
}

func TestTraceSettingsFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		want     TraceSettings
		sampling string
	}{
		{"defaults", nil, TraceSettings{Insecure: true, SampleRate: 1}, "AlwaysOnSampler"},
		{"ratio", map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": " collector:4317 ", "OTEL_TRACES_SAMPLER_ARG": "0.25"},
			TraceSettings{Endpoint: "collector:4317", Insecure: true, SampleRate: 0.25}, "TraceIDRatioBased{0.25}"},
		{"secure and bad ratio", map[string]string{"OTEL_EXPORTER_OTLP_INSECURE": "false", "OTEL_TRACES_SAMPLER_ARG": "lots"},
			TraceSettings{Insecure: false, SampleRate: 1}, "AlwaysOnSampler"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE", "OTEL_TRACES_SAMPLER_ARG"} {
				t.Setenv(k, tt.env[k])
			}
			got := TraceSettingsFromEnv()
			if got != tt.want {
				t.Errorf("TraceSettingsFromEnv() = %+v, want %+v", got, tt.want)
			}
			if d := got.sampler().Description(); !strings.Contains(d, tt.sampling) {
				t.Errorf("sampler = %q, want %q inside", d, tt.sampling)
			}
		})
	}
}

func TestStartTracingDisabled(t *testing.T) {
	shutdown, err := StartTracing(TraceSettings{}, "livecue", "test")
	if err != nil {
		t.Fatalf("StartTracing: %v", err)
	}
	shutdown()
	if IsTracingEnabled() {
		t.Error("tracing enabled without endpoint")
	}
}
