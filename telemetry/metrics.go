// Package telemetry provides Prometheus metrics, tracing and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ChatEvents         prometheus.Counter
	ActionTriggers     *prometheus.CounterVec // expression
	ActionFailures     *prometheus.CounterVec // key
	CooldownRejections *prometheus.CounterVec // expression
	AdminCommands      *prometheus.CounterVec // command, result
	SessionResolutions *prometheus.CounterVec // strategy
	LookupFailures     *prometheus.CounterVec // call
	StreamSwitches     prometheus.Counter

	// Histograms (seconds)
	ResolveDuration prometheus.Observer
	ActionDuration  prometheus.Observer

	// Gauges
	StreamOpenGauge prometheus.Gauge // 1=open,0=closed
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ChatEvents = promauto.NewCounter(prometheus.CounterOpts{Name: "livecue_chat_events_total", Help: "Chat events consumed by the dispatcher"})
		ActionTriggers = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livecue_action_triggers_total", Help: "Actions fired per expression"}, []string{"expression"})
		ActionFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livecue_action_failures_total", Help: "Action executor failures per action key"}, []string{"key"})
		CooldownRejections = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livecue_cooldown_rejections_total", Help: "Viewer commands rejected by cooldown"}, []string{"expression"})
		AdminCommands = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livecue_admin_commands_total", Help: "Trusted admin commands by outcome"}, []string{"command", "result"})
		SessionResolutions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livecue_session_resolutions_total", Help: "Session resolutions by winning strategy"}, []string{"strategy"})
		LookupFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livecue_lookup_failures_total", Help: "Lookup and probe faults absorbed during resolution"}, []string{"call"})
		StreamSwitches = promauto.NewCounter(prometheus.CounterOpts{Name: "livecue_stream_switches_total", Help: "Chat stream re-targets after a config reload"})
		ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "livecue_resolve_duration_seconds", Help: "Session resolution duration seconds", Buckets: prometheus.DefBuckets})
		ActionDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "livecue_action_duration_seconds", Help: "Action executor duration seconds", Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5}})
		StreamOpenGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livecue_stream_open", Help: "Chat stream open=1 closed=0"})
	})
}

// IncChatEvents counts consumed chat events.
func IncChatEvents(n int) {
	if ChatEvents != nil && n > 0 {
		ChatEvents.Add(float64(n))
	}
}

// IncTrigger counts a fired action.
func IncTrigger(expression string) {
	if ActionTriggers != nil {
		ActionTriggers.WithLabelValues(expression).Inc()
	}
}

// IncActionFailure counts an executor error.
func IncActionFailure(key string) {
	if ActionFailures != nil {
		ActionFailures.WithLabelValues(key).Inc()
	}
}

// IncCooldown counts a cooldown rejection.
func IncCooldown(expression string) {
	if CooldownRejections != nil {
		CooldownRejections.WithLabelValues(expression).Inc()
	}
}

// IncAdmin counts an admin command outcome.
func IncAdmin(command, result string) {
	if AdminCommands != nil {
		AdminCommands.WithLabelValues(command, result).Inc()
	}
}

// IncResolution counts the strategy that produced a session id ("failed" when none did).
func IncResolution(strategy string) {
	if SessionResolutions != nil {
		SessionResolutions.WithLabelValues(strategy).Inc()
	}
}

// IncLookupFailure counts an absorbed lookup fault.
func IncLookupFailure(call string) {
	if LookupFailures != nil {
		LookupFailures.WithLabelValues(call).Inc()
	}
}

// IncStreamSwitch counts a stream re-target.
func IncStreamSwitch() {
	if StreamSwitches != nil {
		StreamSwitches.Inc()
	}
}

// SetStreamOpen records whether a chat stream is attached.
func SetStreamOpen(open bool) {
	if StreamOpenGauge == nil {
		return
	}
	if open {
		StreamOpenGauge.Set(1)
	} else {
		StreamOpenGauge.Set(0)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
