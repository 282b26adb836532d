// Package twitchapi contains the minimal Helix helper needed to tell whether a Twitch
// channel is live, authenticated with an app access token obtained through the
// client-credentials grant. The token CANNOT be used for IRC chat.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// TokenURL is Twitch's OAuth2 token endpoint.
	TokenURL = "https://id.twitch.tv/oauth2/token"
	helixURL = "https://api.twitch.tv/helix"
)

// HelixClient provides the stream lookup used by the Twitch session resolver.
type HelixClient struct {
	ClientID   string
	Tokens     oauth2.TokenSource
	HTTPClient *http.Client
}

// DefaultTimeout bounds token and Helix requests when no client is supplied.
const DefaultTimeout = 10 * time.Second

// NewHelixClient returns a client whose app token is fetched and cached by oauth2.
// hc (optional) is used for both token and Helix requests; its Timeout is the only bound
// on token fetches, which do not see the per-call context.
func NewHelixClient(ctx context.Context, clientID, clientSecret string, hc *http.Client) *HelixClient {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	return &HelixClient{ClientID: clientID, Tokens: cc.TokenSource(ctx), HTTPClient: hc}
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

// Stream is one live stream returned by /helix/streams.
type Stream struct {
	ID        string    `json:"id"`
	UserLogin string    `json:"user_login"`
	Title     string    `json:"title"`
	StartedAt time.Time `json:"started_at"`
}

// GetStreams lists the live streams of a login; empty means offline.
func (hc *HelixClient) GetStreams(ctx context.Context, login string) ([]Stream, error) {
	if login == "" {
		return nil, fmt.Errorf("login empty")
	}
	tok, err := hc.Tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("twitch app token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, helixURL+"/streams", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("user_login", login)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err := hc.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("helix streams: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// IsLive reports whether login currently has a live stream.
func (hc *HelixClient) IsLive(ctx context.Context, login string) (bool, error) {
	streams, err := hc.GetStreams(ctx, login)
	if err != nil {
		return false, err
	}
	return len(streams) > 0, nil
}
