package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/livecue/config"
	"github.com/onnwee/livecue/telemetry"
)

// LiveChecker reports whether a Twitch login is broadcasting (twitchapi.HelixClient).
type LiveChecker interface {
	IsLive(ctx context.Context, login string) (bool, error)
}

// TwitchResolver resolves the session for the Twitch platform. The session identifier
// is the channel login, since IRC chat is addressed by channel rather than by broadcast.
type TwitchResolver struct {
	// Helix is optional; when set, an offline channel is reported as a warning.
	Helix   LiveChecker
	Timeout time.Duration
}

// Resolve returns video_id when set, otherwise the normalized twitch_channel.
func (r *TwitchResolver) Resolve(ctx context.Context, actions *config.Actions) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "resolver.ResolveTwitch")
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "resolver"))

	if v := strings.TrimSpace(actions.VideoID); v != "" {
		telemetry.IncResolution("explicit")
		return v, nil
	}
	channel := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(actions.TwitchChannel), "#"))
	if channel == "" {
		telemetry.IncResolution("failed")
		err := fmt.Errorf("%w: set twitch_channel (or video_id) for the twitch platform", ErrUnresolvableSession)
		telemetry.RecordError(span, err)
		return "", err
	}
	if r.Helix != nil {
		timeout := r.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		live, err := r.Helix.IsLive(cctx, channel)
		cancel()
		switch {
		case err != nil:
			telemetry.IncLookupFailure("helix")
			log.Warn("twitch live check failed", slog.String("channel", channel), slog.Any("err", err))
		case !live:
			log.Warn("twitch channel is offline; joining chat anyway", slog.String("channel", channel))
		}
	}
	telemetry.IncResolution("twitch")
	telemetry.SetSpanSuccess(span)
	log.Info("resolved twitch channel", slog.String("channel", channel))
	return channel, nil
}

// ForPlatform picks the resolver for platform, defaulting to yt.
func ForPlatform(platform string, yt, twitch SessionResolver) SessionResolver {
	if platform == config.PlatformTwitch && twitch != nil {
		return twitch
	}
	return yt
}

// Switch dispatches each Resolve to the resolver for the snapshot's platform, so a reload
// that changes platform takes effect.
type Switch struct {
	YouTube SessionResolver
	Twitch  SessionResolver
}

// Resolve implements SessionResolver.
func (s Switch) Resolve(ctx context.Context, actions *config.Actions) (string, error) {
	r := ForPlatform(actions.Platform, s.YouTube, s.Twitch)
	if r == nil {
		return "", fmt.Errorf("%w: no resolver for platform %q", ErrUnresolvableSession, actions.Platform)
	}
	return r.Resolve(ctx, actions)
}
