// Package resolver determines which live broadcast to attach to. Strategies run in a
// fixed order and the first one to produce an identifier wins:
//
//  1. an explicit video_id from the action file, returned without any network call
//  2. the YouTube Data API (handle to channel ID, then the channel's live video)
//  3. probing the channel's /live page and following redirects
//
// Lookup and probe faults never escape Resolve; they are logged and the chain continues.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/livecue/config"
	"github.com/onnwee/livecue/identity"
	"github.com/onnwee/livecue/telemetry"
)

// ErrUnresolvableSession is returned when every strategy is exhausted.
var ErrUnresolvableSession = errors.New("could not resolve a live video id")

const guidance = "provide video_id directly, or set api_key with channel_id or channel_handle, or a channel_url that has /live"

// DefaultTimeout bounds each external call made while resolving.
const DefaultTimeout = 10 * time.Second

const probeBase = "https://www.youtube.com/"

// SessionResolver maps an action snapshot to a session identifier.
type SessionResolver interface {
	Resolve(ctx context.Context, actions *config.Actions) (string, error)
}

// Lookup is the programmatic lookup service (youtubeapi.Client implements it).
type Lookup interface {
	ChannelIDForHandle(ctx context.Context, handle string) (string, error)
	LiveVideoID(ctx context.Context, channelID string) (string, error)
}

// LookupSource returns a Lookup for the configured credential. It returns an error
// when no credential is available, which skips the lookup strategy.
type LookupSource func(ctx context.Context, apiKey string) (Lookup, error)

// Prober is the redirect-probe transport (liveprobe.Prober implements it).
type Prober interface {
	Probe(ctx context.Context, url string) (string, error)
}

// Resolver runs the YouTube strategy chain. Nil Lookups or Prober disable that strategy.
type Resolver struct {
	Lookups LookupSource
	Prober  Prober
	Timeout time.Duration
}

// New returns a Resolver with the given collaborators and per-call timeout.
func New(lookups LookupSource, prober Prober, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{Lookups: lookups, Prober: prober, Timeout: timeout}
}

func (r *Resolver) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultTimeout
}

// Resolve returns the live video ID for actions.
func (r *Resolver) Resolve(ctx context.Context, actions *config.Actions) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "resolver.Resolve")
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "resolver"))

	var (
		id       string
		strategy string
	)
	telemetry.TimeFunc(telemetry.ResolveDuration, func() {
		id, strategy = r.resolve(ctx, log, actions)
	})
	span.SetAttributes(attribute.String("resolver.strategy", strategy))
	telemetry.IncResolution(strategy)
	if id == "" {
		err := fmt.Errorf("%w: %s", ErrUnresolvableSession, guidance)
		telemetry.RecordError(span, err)
		return "", err
	}
	telemetry.SetSpanSuccess(span)
	log.Info("resolved live session", slog.String("video_id", id), slog.String("strategy", strategy))
	return id, nil
}

func (r *Resolver) resolve(ctx context.Context, log *slog.Logger, actions *config.Actions) (string, string) {
	if v := strings.TrimSpace(actions.VideoID); v != "" {
		return v, "explicit"
	}
	ch := identity.Derive(actions)
	if id := r.lookup(ctx, log, actions.APIKey, ch); id != "" {
		return id, "api"
	}
	if id := r.probe(ctx, log, ch); id != "" {
		return id, "probe"
	}
	return "", "failed"
}

func (r *Resolver) lookup(ctx context.Context, log *slog.Logger, apiKey string, ch identity.Channel) string {
	if r.Lookups == nil || (ch.ID == "" && ch.Handle == "") {
		return ""
	}
	l, err := r.Lookups(ctx, strings.TrimSpace(apiKey))
	if err != nil {
		log.Debug("api lookup skipped", slog.Any("err", err))
		return ""
	}

	channelID := ch.ID
	if channelID == "" {
		cctx, cancel := context.WithTimeout(ctx, r.timeout())
		id, err := l.ChannelIDForHandle(cctx, ch.Handle)
		cancel()
		if err != nil {
			telemetry.IncLookupFailure("channels")
			log.Warn("youtube api handle lookup failed", slog.String("handle", ch.Handle), slog.Any("err", err))
			return ""
		}
		channelID = id
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()
	vid, err := l.LiveVideoID(cctx, channelID)
	if err != nil {
		telemetry.IncLookupFailure("search")
		log.Warn("youtube api live lookup failed", slog.String("channel_id", channelID), slog.Any("err", err))
		return ""
	}
	return vid
}

func (r *Resolver) probe(ctx context.Context, log *slog.Logger, ch identity.Channel) string {
	if r.Prober == nil {
		return ""
	}
	for _, target := range Candidates(ch) {
		cctx, cancel := context.WithTimeout(ctx, r.timeout())
		vid, err := r.Prober.Probe(cctx, target)
		cancel()
		if err != nil {
			telemetry.IncLookupFailure("probe")
			log.Warn("redirect lookup failed", slog.String("url", target), slog.Any("err", err))
			continue
		}
		if vid != "" {
			return vid
		}
	}
	return ""
}

// Candidates lists the /live URLs to probe, in order: handle, channel ID, raw channel URL.
func Candidates(ch identity.Channel) []string {
	var out []string
	if ch.Handle != "" {
		out = append(out, probeBase+ch.Handle+"/live")
	}
	if ch.ID != "" {
		out = append(out, probeBase+"channel/"+ch.ID+"/live")
	}
	if ch.URL != "" {
		u := strings.TrimRight(ch.URL, "/")
		if !strings.HasSuffix(u, "/live") {
			u += "/live"
		}
		out = append(out, u)
	}
	return out
}
