package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/livecue/config"
	"github.com/onnwee/livecue/liveprobe"
	"github.com/onnwee/livecue/twitchapi"
)

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.Config
		wantTimeout time.Duration
		wantHelix   bool
	}{
		{"defaults", config.Config{}, DefaultTimeout, false},
		{"helix", config.Config{ResolveTimeout: 3 * time.Second, TwitchClientID: "id", TwitchClientSecret: "s"}, 3 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sw := FromConfig(context.Background(), &tt.cfg, nil)

			yt, ok := sw.YouTube.(*Resolver)
			if !ok || yt.Timeout != tt.wantTimeout || yt.Lookups != nil {
				t.Fatalf("YouTube = %#v", sw.YouTube)
			}
			if p, ok := yt.Prober.(*liveprobe.Prober); !ok || p.Timeout != tt.wantTimeout {
				t.Errorf("Prober = %#v", yt.Prober)
			}

			tw, ok := sw.Twitch.(*TwitchResolver)
			if !ok || tw.Timeout != tt.wantTimeout {
				t.Fatalf("Twitch = %#v", sw.Twitch)
			}
			if !tt.wantHelix {
				if tw.Helix != nil {
					t.Errorf("Helix = %#v, want nil", tw.Helix)
				}
				return
			}
			h, ok := tw.Helix.(*twitchapi.HelixClient)
			if !ok || h.HTTPClient.Timeout != tt.wantTimeout {
				t.Errorf("Helix = %#v, want client with %v timeout", tw.Helix, tt.wantTimeout)
			}
		})
	}
}
