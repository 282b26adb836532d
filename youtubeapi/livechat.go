package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"google.golang.org/api/googleapi"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/livecue/chat"
	"github.com/onnwee/livecue/config"
)

// ErrChatEnded is returned when the broadcast's live chat is gone.
var ErrChatEnded = errors.New("youtube: live chat ended")

const (
	minPollInterval = time.Second
	maxFetchTries   = 5
)

// LiveChatStream polls liveChatMessages.list and implements chat.Stream. Backlog present
// when the stream attaches is skipped so stale commands do not fire.
type LiveChatStream struct {
	client *Client
	chatID string

	// pollFloor is the lower bound on the server-suggested polling interval.
	pollFloor    time.Duration
	retryInitial time.Duration

	mu        sync.Mutex
	pageToken string
	wait      time.Duration
	primed    bool
	closed    bool
}

// NewLiveChatStream follows chatID from its current end.
func NewLiveChatStream(c *Client, chatID string) *LiveChatStream {
	return &LiveChatStream{client: c, chatID: chatID, pollFloor: minPollInterval, retryInitial: 500 * time.Millisecond}
}

func (s *LiveChatStream) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *LiveChatStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// NextBatch waits out the polling interval and fetches pages until one carries text
// messages or the chat ends.
func (s *LiveChatStream) NextBatch(ctx context.Context) ([]chat.Event, error) {
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
		res, err := s.fetch(ctx)
		if err != nil {
			if errors.Is(err, ErrChatEnded) {
				_ = s.Close()
				return nil, chat.ErrStreamClosed
			}
			return nil, err
		}

		s.mu.Lock()
		s.pageToken = res.NextPageToken
		s.wait = max(time.Duration(res.PollingIntervalMillis)*time.Millisecond, s.pollFloor)
		backlog := !s.primed
		s.primed = true
		if res.OfflineAt != "" {
			s.closed = true
		}
		s.mu.Unlock()

		if backlog {
			slog.Debug("youtube chat: skipped backlog", slog.Int("messages", len(res.Items)), slog.String("component", "youtube_chat"))
			continue
		}
		if events := toEvents(res.Items); len(events) > 0 {
			return events, nil
		}
	}
}

func (s *LiveChatStream) fetch(ctx context.Context) (*yt.LiveChatMessageListResponse, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInitial
	b.MaxInterval = 30 * time.Second
	return backoff.Retry(ctx, func() (*yt.LiveChatMessageListResponse, error) {
		call := s.client.svc.LiveChatMessages.List(s.chatID, []string{"snippet", "authorDetails"}).Context(ctx)
		if s.pageToken != "" {
			call = call.PageToken(s.pageToken)
		}
		res, err := call.Do()
		if err == nil {
			return res, nil
		}
		if chatGone(err) {
			return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrChatEnded, err))
		}
		slog.Debug("youtube chat: poll failed", slog.Any("err", err), slog.String("component", "youtube_chat"))
		return nil, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxFetchTries),
	)
}

// chatGone reports API errors that mean polling can never succeed again.
func chatGone(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "liveChatEnded", "liveChatNotFound", "liveChatDisabled":
			return true
		}
	}
	return gerr.Code == http.StatusNotFound
}

func toEvents(items []*yt.LiveChatMessage) []chat.Event {
	out := make([]chat.Event, 0, len(items))
	for _, m := range items {
		if m == nil || m.Snippet == nil {
			continue
		}
		if m.Snippet.Type != "" && m.Snippet.Type != "textMessageEvent" {
			continue
		}
		ev := chat.Event{ID: m.Id, Message: m.Snippet.DisplayMessage}
		if ev.Message == "" && m.Snippet.TextMessageDetails != nil {
			ev.Message = m.Snippet.TextMessageDetails.MessageText
		}
		if m.AuthorDetails != nil {
			ev.Author = m.AuthorDetails.DisplayName
		}
		if t, err := time.Parse(time.RFC3339Nano, m.Snippet.PublishedAt); err == nil {
			ev.PublishedAt = t
		}
		out = append(out, ev)
	}
	return out
}

// Opener returns a chat.Opener that looks up the video's active live chat with the
// credential from the current action snapshot. Without any credential it follows the
// public web chat instead.
func Opener(f *Factory) chat.Opener {
	return func(ctx context.Context, videoID string, actions *config.Actions) (chat.Stream, error) {
		apiKey := ""
		if actions != nil {
			apiKey = actions.APIKey
		}
		c, err := f.Client(ctx, apiKey)
		if errors.Is(err, ErrNoCredentials) {
			s, err := OpenWebChat(ctx, f.httpClient(), f.WebBase, videoID)
			if err != nil {
				return nil, err
			}
			slog.Info("youtube chat: attached without credentials", slog.String("video_id", videoID), slog.String("component", "youtube_chat"))
			return s, nil
		}
		if err != nil {
			return nil, err
		}
		chatID, err := c.ActiveLiveChatID(ctx, videoID)
		if err != nil {
			return nil, err
		}
		slog.Info("youtube chat: attached", slog.String("video_id", videoID), slog.String("component", "youtube_chat"))
		return NewLiveChatStream(c, chatID), nil
	}
}
