package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used for livecue spans.
const TracerName = "livecue"

const exportTimeout = 5 * time.Second

// TraceSettings controls the OTLP exporter. Zero value means tracing off.
type TraceSettings struct {
	Endpoint   string
	Insecure   bool
	SampleRate float64 // 0 < rate <= 1; anything else samples everything
}

// TraceSettingsFromEnv reads OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
// (default true) and OTEL_TRACES_SAMPLER_ARG.
func TraceSettingsFromEnv() TraceSettings {
	s := TraceSettings{Endpoint: strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")), Insecure: true, SampleRate: 1}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Insecure = b
		}
	}
	if v := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.SampleRate = f
		}
	}
	return s
}

func (s TraceSettings) sampler() sdktrace.Sampler {
	if s.SampleRate > 0 && s.SampleRate < 1 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.SampleRate))
	}
	return sdktrace.ParentBased(sdktrace.AlwaysSample())
}

var tracingEnabled bool

// InitTracing installs an OTLP/gRPC tracer provider from the environment.
// Without an endpoint the global no-op provider stays in place.
func InitTracing(serviceName, serviceVersion string) (shutdown func(), err error) {
	return StartTracing(TraceSettingsFromEnv(), serviceName, serviceVersion)
}

// StartTracing installs a tracer provider for settings.
func StartTracing(settings TraceSettings, serviceName, serviceVersion string) (func(), error) {
	if settings.Endpoint == "" {
		slog.Debug("tracing disabled: no OTLP endpoint", slog.String("component", "telemetry"))
		return func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(settings.Endpoint)}
	if settings.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(settings.sampler()),
	)
	otel.SetTracerProvider(provider)
	tracingEnabled = true
	slog.Info("tracing initialized", slog.String("service", serviceName), slog.String("endpoint", settings.Endpoint), slog.Float64("sample_rate", settings.SampleRate), slog.String("component", "telemetry"))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", slog.Any("err", err), slog.String("component", "telemetry"))
		}
		tracingEnabled = false
	}, nil
}

// IsTracingEnabled reports whether an exporting provider is installed.
func IsTracingEnabled() bool { return tracingEnabled }

// StartSpan starts a livecue span, tagging it with the correlation id when present.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if corr := GetCorrelation(ctx); corr != "" {
		attrs = append(attrs, attribute.String("correlation_id", corr))
	}
	return otel.Tracer(TracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// RecordError records an error on the span and sets error status.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Span attributes.
func HTTPMethodAttr(method string) attribute.KeyValue { return attribute.String("http.method", method) }
func HTTPRouteAttr(route string) attribute.KeyValue   { return attribute.String("http.route", route) }
func HTTPStatusAttr(status int) attribute.KeyValue    { return attribute.Int("http.status_code", status) }
func SessionAttr(id string) attribute.KeyValue        { return attribute.String("livecue.session_id", id) }
func ExpressionAttr(name string) attribute.KeyValue   { return attribute.String("livecue.expression", name) }
func OutcomeAttr(outcome string) attribute.KeyValue   { return attribute.String("livecue.outcome", outcome) }
