package youtubeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/onnwee/livecue/chat"
)

// DefaultWebBase is the public site polled by WebChatStream.
const DefaultWebBase = "https://www.youtube.com"

const (
	maxPageBytes         = 4 << 20
	defaultClientVersion = "2.20241015.01.00"
	webUserAgent         = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
)

var (
	innertubeKeyPattern  = regexp.MustCompile(`"INNERTUBE_API_KEY"\s*:\s*"([^"]+)"`)
	clientVersionPattern = regexp.MustCompile(`"INNERTUBE_CONTEXT_CLIENT_VERSION"\s*:\s*"([^"]+)"`)
	continuationPattern  = regexp.MustCompile(`"continuation"\s*:\s*"([^"]+)"`)
)

// WebChatStream follows a live chat through the public popout page and its
// get_live_chat continuation endpoint, so no API key or OAuth credential is needed.
// Messages already on the page are not delivered.
type WebChatStream struct {
	hc            *http.Client
	base          string
	videoID       string
	innertubeKey  string
	clientVersion string

	pollFloor    time.Duration
	retryInitial time.Duration

	mu           sync.Mutex
	continuation string
	wait         time.Duration
	closed       bool
}

// OpenWebChat loads the popout chat page for videoID and reads the first continuation.
// A page without one means the video has no live chat (ErrChatEnded).
func OpenWebChat(ctx context.Context, hc *http.Client, base, videoID string) (*WebChatStream, error) {
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if base == "" {
		base = DefaultWebBase
	}
	base = strings.TrimRight(base, "/")
	page, err := fetchPage(ctx, hc, base+"/live_chat?is_popout=1&v="+url.QueryEscape(videoID))
	if err != nil {
		return nil, err
	}
	cont := firstMatch(continuationPattern, page)
	if cont == "" {
		return nil, fmt.Errorf("%w: no live chat for video %s", ErrChatEnded, videoID)
	}
	key := firstMatch(innertubeKeyPattern, page)
	if key == "" {
		return nil, fmt.Errorf("youtube web chat: page for %s carries no innertube key", videoID)
	}
	version := firstMatch(clientVersionPattern, page)
	if version == "" {
		version = defaultClientVersion
	}
	return &WebChatStream{
		hc:            hc,
		base:          base,
		videoID:       videoID,
		innertubeKey:  key,
		clientVersion: version,
		pollFloor:     minPollInterval,
		retryInitial:  500 * time.Millisecond,
		continuation:  cont,
	}, nil
}

func fetchPage(ctx context.Context, hc *http.Client, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", webUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube web chat page: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: chat page %s", ErrChatEnded, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube web chat page: %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

func firstMatch(re *regexp.Regexp, b []byte) string {
	if m := re.FindSubmatch(b); m != nil {
		return string(m[1])
	}
	return ""
}

func (s *WebChatStream) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *WebChatStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// NextBatch waits out the server's continuation timeout and polls until a page carries
// text messages or the chat ends.
func (s *WebChatStream) NextBatch(ctx context.Context) ([]chat.Event, error) {
	for {
		if !s.IsOpen() {
			return nil, chat.ErrStreamClosed
		}
		if s.wait > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.wait):
			}
		}
		page, err := s.fetch(ctx)
		if err != nil {
			if errors.Is(err, ErrChatEnded) {
				_ = s.Close()
				return nil, chat.ErrStreamClosed
			}
			return nil, err
		}
		next, timeout := page.next()

		s.mu.Lock()
		s.continuation = next
		s.wait = max(timeout, s.pollFloor)
		s.mu.Unlock()

		if events := page.events(); len(events) > 0 {
			return events, nil
		}
	}
}

func (s *WebChatStream) fetch(ctx context.Context) (*liveChatContinuation, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInitial
	b.MaxInterval = 30 * time.Second
	return backoff.Retry(ctx, func() (*liveChatContinuation, error) {
		page, err := s.poll(ctx)
		if errors.Is(err, ErrChatEnded) {
			return nil, backoff.Permanent(err)
		}
		if err != nil {
			slog.Debug("youtube web chat: poll failed", slog.Any("err", err), slog.String("video_id", s.videoID), slog.String("component", "youtube_chat"))
			return nil, err
		}
		return page, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxFetchTries),
	)
}

type webChatRequest struct {
	Context struct {
		Client struct {
			ClientName    string `json:"clientName"`
			ClientVersion string `json:"clientVersion"`
		} `json:"client"`
	} `json:"context"`
	Continuation string `json:"continuation"`
}

func (s *WebChatStream) poll(ctx context.Context) (*liveChatContinuation, error) {
	var body webChatRequest
	body.Context.Client.ClientName = "WEB"
	body.Context.Client.ClientVersion = s.clientVersion
	s.mu.Lock()
	body.Continuation = s.continuation
	s.mu.Unlock()
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	target := s.base + "/youtubei/v1/live_chat/get_live_chat?prettyPrint=false&key=" + url.QueryEscape(s.innertubeKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webUserAgent)
	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: get_live_chat %s", ErrChatEnded, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("get_live_chat: %s", resp.Status)
	}

	var out struct {
		ContinuationContents *struct {
			LiveChatContinuation *liveChatContinuation `json:"liveChatContinuation"`
		} `json:"continuationContents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode get_live_chat: %w", err)
	}
	if out.ContinuationContents == nil || out.ContinuationContents.LiveChatContinuation == nil {
		return nil, fmt.Errorf("%w: no continuation contents", ErrChatEnded)
	}
	page := out.ContinuationContents.LiveChatContinuation
	if next, _ := page.next(); next == "" {
		return nil, fmt.Errorf("%w: no further continuation", ErrChatEnded)
	}
	return page, nil
}

type webContinuation struct {
	Continuation string `json:"continuation"`
	TimeoutMs    int    `json:"timeoutMs"`
}

type webRun struct {
	Text  string `json:"text"`
	Emoji *struct {
		Shortcuts []string `json:"shortcuts"`
	} `json:"emoji"`
}

type webTextMessage struct {
	ID      string `json:"id"`
	Message struct {
		Runs []webRun `json:"runs"`
	} `json:"message"`
	AuthorName struct {
		SimpleText string `json:"simpleText"`
	} `json:"authorName"`
	TimestampUsec string `json:"timestampUsec"`
}

type liveChatContinuation struct {
	Continuations []struct {
		Invalidation *webContinuation `json:"invalidationContinuationData"`
		Timed        *webContinuation `json:"timedContinuationData"`
		Reload       *webContinuation `json:"reloadContinuationData"`
	} `json:"continuations"`
	Actions []struct {
		AddChatItemAction *struct {
			Item struct {
				Text *webTextMessage `json:"liveChatTextMessageRenderer"`
			} `json:"item"`
		} `json:"addChatItemAction"`
	} `json:"actions"`
}

// next returns the continuation token and suggested wait for the following poll.
func (c *liveChatContinuation) next() (string, time.Duration) {
	for _, item := range c.Continuations {
		for _, wc := range []*webContinuation{item.Invalidation, item.Timed, item.Reload} {
			if wc != nil && wc.Continuation != "" {
				return wc.Continuation, time.Duration(wc.TimeoutMs) * time.Millisecond
			}
		}
	}
	return "", 0
}

func (c *liveChatContinuation) events() []chat.Event {
	out := make([]chat.Event, 0, len(c.Actions))
	for _, a := range c.Actions {
		if a.AddChatItemAction == nil || a.AddChatItemAction.Item.Text == nil {
			continue
		}
		m := a.AddChatItemAction.Item.Text
		var text strings.Builder
		for _, r := range m.Message.Runs {
			switch {
			case r.Text != "":
				text.WriteString(r.Text)
			case r.Emoji != nil && len(r.Emoji.Shortcuts) > 0:
				text.WriteString(r.Emoji.Shortcuts[0])
			}
		}
		ev := chat.Event{ID: m.ID, Author: m.AuthorName.SimpleText, Message: text.String()}
		if usec, err := strconv.ParseInt(m.TimestampUsec, 10, 64); err == nil {
			ev.PublishedAt = time.UnixMicro(usec).UTC()
		}
		out = append(out, ev)
	}
	return out
}
