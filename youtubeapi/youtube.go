// Package youtubeapi wraps the YouTube Data API for the read-only lookups needed to find
// and follow a live broadcast: handle to channel ID, the channel's current live video,
// the video's live chat, and polling that chat. Credentials are either the API key from
// the action file or a Google OAuth2 refresh token from the environment.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/livecue/config"
	"github.com/onnwee/livecue/resolver"
)

// ErrNotFound is returned when a lookup succeeds but yields no item.
var ErrNotFound = errors.New("youtube: no result")

// ErrNoCredentials is returned when neither an API key nor OAuth is configured.
var ErrNoCredentials = errors.New("youtube: no api key or oauth credentials")

// Client issues Data API calls through one *yt.Service.
type Client struct {
	svc *yt.Service
}

// NewClient wraps an existing service (tests build one against httptest).
func NewClient(svc *yt.Service) *Client { return &Client{svc: svc} }

// ChannelIDForHandle resolves an @handle to its channel ID.
func (c *Client) ChannelIDForHandle(ctx context.Context, handle string) (string, error) {
	if handle == "" {
		return "", fmt.Errorf("handle empty")
	}
	res, err := c.svc.Channels.List([]string{"id"}).ForHandle(handle).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube channels.list: %w", err)
	}
	if len(res.Items) == 0 || res.Items[0].Id == "" {
		return "", fmt.Errorf("channel for %s: %w", handle, ErrNotFound)
	}
	return res.Items[0].Id, nil
}

// LiveVideoID returns the video currently live on channelID.
func (c *Client) LiveVideoID(ctx context.Context, channelID string) (string, error) {
	if channelID == "" {
		return "", fmt.Errorf("channelID empty")
	}
	res, err := c.svc.Search.List([]string{"id"}).
		ChannelId(channelID).
		EventType("live").
		Type("video").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("youtube search.list: %w", err)
	}
	for _, item := range res.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			return item.Id.VideoId, nil
		}
	}
	return "", fmt.Errorf("live video on %s: %w", channelID, ErrNotFound)
}

// ActiveLiveChatID returns the live chat attached to a broadcasting video.
func (c *Client) ActiveLiveChatID(ctx context.Context, videoID string) (string, error) {
	if videoID == "" {
		return "", fmt.Errorf("videoID empty")
	}
	res, err := c.svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube videos.list: %w", err)
	}
	if len(res.Items) == 0 || res.Items[0].LiveStreamingDetails == nil || res.Items[0].LiveStreamingDetails.ActiveLiveChatId == "" {
		return "", fmt.Errorf("active live chat for %s: %w", videoID, ErrNotFound)
	}
	return res.Items[0].LiveStreamingDetails.ActiveLiveChatId, nil
}

// defaultHTTPTimeout bounds token refreshes and web chat requests when no client is set.
const defaultHTTPTimeout = 10 * time.Second

// Factory builds clients for the credential in effect. OAuth, when configured, takes
// precedence over the action file's API key. Clients are cached per credential.
type Factory struct {
	OAuth        *oauth2.Config
	RefreshToken string
	// Endpoint overrides the API base URL (tests).
	Endpoint string
	// HTTPClient carries OAuth token refreshes and credential-free web chat requests.
	// Its Timeout is what bounds refreshes, which outlive any single call's context.
	HTTPClient *http.Client
	// WebBase overrides the public site used by the web chat transport (tests).
	WebBase string

	mu      sync.Mutex
	clients map[string]*Client
}

// NewFactory builds a factory from process settings.
func NewFactory(cfg *config.Config) *Factory {
	timeout := cfg.ResolveTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	f := &Factory{HTTPClient: &http.Client{Timeout: timeout}}
	if cfg.YouTubeOAuthReady() {
		f.OAuth = &oauth2.Config{
			ClientID:     cfg.YTClientID,
			ClientSecret: cfg.YTClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{yt.YoutubeReadonlyScope},
		}
		f.RefreshToken = cfg.YTRefreshToken
	}
	return f
}

// HasOAuth reports whether lookups can run without an API key.
func (f *Factory) HasOAuth() bool { return f.OAuth != nil && f.RefreshToken != "" }

// Client returns a client for apiKey (ignored when OAuth is configured).
func (f *Factory) Client(ctx context.Context, apiKey string) (*Client, error) {
	cacheKey := "key:" + apiKey
	if f.HasOAuth() {
		cacheKey = "oauth"
	} else if apiKey == "" {
		return nil, ErrNoCredentials
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[cacheKey]; ok {
		return c, nil
	}

	var opts []option.ClientOption
	if f.HasOAuth() {
		// The token source outlives ctx; refreshes are bounded by the HTTP client instead.
		tctx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, f.httpClient())
		ts := f.OAuth.TokenSource(tctx, &oauth2.Token{RefreshToken: f.RefreshToken})
		opts = append(opts, option.WithTokenSource(ts))
	} else {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if f.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.Endpoint))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	if f.clients == nil {
		f.clients = make(map[string]*Client)
	}
	c := NewClient(svc)
	f.clients[cacheKey] = c
	return c, nil
}

func (f *Factory) httpClient() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// Lookup adapts Client to resolver.LookupSource.
func (f *Factory) Lookup(ctx context.Context, apiKey string) (resolver.Lookup, error) {
	c, err := f.Client(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return c, nil
}
