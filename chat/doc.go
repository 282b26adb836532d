// Package chat defines the chat event stream contract consumed by the command
// dispatcher and owns the lifecycle of the one open stream.
//
// It provides:
//   - Stream / Opener: the adapter contract. IsOpen reports whether more events can
//     arrive; NextBatch blocks until at least one event is available or the stream is
//     confirmed closed.
//   - Slot: holds the single active stream for the resolved session and swaps it when
//     the session identifier changes, never leaving two open handles behind.
//   - TwitchStream: a go-twitch-irc backed Stream that joins a channel (anonymously
//     unless TWITCH_BOT_USERNAME/TWITCH_OAUTH_TOKEN are set) and buffers PRIVMSGs.
//
// The YouTube live chat adapter lives in package youtubeapi next to the Data API client.
package chat
