package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/livecue/config"
)

// TwitchCredentials are optional; without them the client joins anonymously (read-only).
type TwitchCredentials struct {
	Username   string
	OAuthToken string
}

// TwitchStream is a Stream fed by a Twitch IRC connection joined to one channel.
type TwitchStream struct {
	*Buffer
	channel string
}

// OpenTwitch connects to Twitch IRC and joins channel. The connection runs in its own
// goroutine and is torn down by Close or when ctx is canceled.
func OpenTwitch(ctx context.Context, channel string, creds TwitchCredentials) (*TwitchStream, error) {
	channel = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(channel), "#"))
	if channel == "" {
		return nil, errors.New("twitch channel empty")
	}
	var client *twitch.Client
	if creds.Username != "" && creds.OAuthToken != "" {
		client = twitch.NewClient(creds.Username, creds.OAuthToken)
	} else {
		client = twitch.NewAnonymousClient()
	}

	s := &TwitchStream{channel: channel}
	s.Buffer = NewBuffer(defaultBufferSize, func() error {
		err := client.Disconnect()
		if errors.Is(err, twitch.ErrConnectionIsNotOpen) {
			return nil
		}
		return err
	})

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		ts := msg.Time
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		s.Push(Event{ID: msg.ID, Author: msg.User.Name, Message: msg.Message, PublishedAt: ts})
	})
	client.Join(channel)

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	go func() {
		err := client.Connect()
		if err != nil && !errors.Is(err, twitch.ErrClientDisconnected) {
			slog.Error("twitch chat connect error", slog.Any("err", err), slog.String("channel", channel), slog.String("component", "chat"))
		}
		s.Shutdown()
	}()

	slog.Info("twitch chat joined", slog.String("channel", channel), slog.Bool("anonymous", creds.Username == ""), slog.String("component", "chat"))
	return s, nil
}

// Channel returns the joined channel login.
func (s *TwitchStream) Channel() string { return s.channel }

// TwitchOpener opens a TwitchStream for the session identifier, which is the channel login.
// The stream outlives the open call, so it is bound to ctx (the process lifetime), not to
// any per-call timeout.
func TwitchOpener(ctx context.Context, creds TwitchCredentials) Opener {
	return func(_ context.Context, sessionID string, _ *config.Actions) (Stream, error) {
		return OpenTwitch(ctx, sessionID, creds)
	}
}
