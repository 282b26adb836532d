package resolver

import (
	"context"
	"net/http"

	"github.com/onnwee/livecue/config"
	"github.com/onnwee/livecue/liveprobe"
	"github.com/onnwee/livecue/twitchapi"
)

// FromConfig builds the platform-switching resolver from process settings. lookups is the
// YouTube Data API source (youtubeapi.Factory.Lookup) and may be nil.
func FromConfig(ctx context.Context, cfg *config.Config, lookups LookupSource) Switch {
	timeout := cfg.ResolveTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	twitch := &TwitchResolver{Timeout: timeout}
	if cfg.HelixReady() {
		twitch.Helix = twitchapi.NewHelixClient(ctx, cfg.TwitchClientID, cfg.TwitchClientSecret, &http.Client{Timeout: timeout})
	}
	return Switch{
		YouTube: New(lookups, &liveprobe.Prober{Timeout: timeout}, timeout),
		Twitch:  twitch,
	}
}
