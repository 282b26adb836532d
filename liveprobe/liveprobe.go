// Package liveprobe finds a live video ID without API credentials by requesting a channel's
// /live page and following redirects. When the channel is live, YouTube usually lands on
// /watch?v=<id>; otherwise the page body is scanned for the first watch link.
//
// This is best-effort scraping and is kept behind the Prober type so it can be replaced
// without touching resolution or dispatch.
package liveprobe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ErrNoSession is returned when a probe completes but no video ID can be extracted.
var ErrNoSession = errors.New("no live video id found")

// maxBody bounds how much of a landing page is scanned.
const maxBody = 2 << 20

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

var watchPattern = regexp.MustCompile(`watch\?v=([a-zA-Z0-9_\-]{6,})`)

// Prober performs redirect-following GETs against candidate /live URLs.
type Prober struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

func (p *Prober) http() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

// Probe fetches target and extracts a video ID from the landing URL or the body.
func (p *Prober) Probe(ctx context.Context, target string) (string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("probe request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	resp, err := p.http().Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if id, ok := ExtractFromURL(resp.Request.URL); ok {
		return id, nil
	}
	// The body is scanned whatever the status; only an unmatched error page is a fault.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("probe read body: %w", err)
	}
	if id, ok := ExtractFromBody(body); ok {
		return id, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("probe %s: %s", target, resp.Status)
	}
	return "", ErrNoSession
}

// ExtractFromURL returns the v query parameter of a watch URL.
func ExtractFromURL(u *url.URL) (string, bool) {
	if u == nil || !strings.Contains(u.Path, "watch") {
		return "", false
	}
	v := u.Query().Get("v")
	return v, v != ""
}

// ExtractFromBody returns the first watch?v= token found in body.
func ExtractFromBody(body []byte) (string, bool) {
	m := watchPattern.FindSubmatch(body)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}
