// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// The operator-edited action file (trusted users, expressions, channel identity) is
// loaded separately through a Source; see actions.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultActionCommand presses the action key on an X11 desktop.
const DefaultActionCommand = "xdotool key {key}"

type Config struct {
	// Action file
	ActionsPath string

	// HTTP (health/status/metrics); empty disables the server
	HTTPAddr string

	// Resolution
	ResolveTimeout time.Duration

	// Action execution
	ActionCommand string
	ActionTimeout time.Duration
	ActionDryRun  bool

	// Database (optional audit trail)
	DBDsn string

	// YouTube OAuth (optional, API key in the action file is enough for public chats)
	YTClientID     string
	YTClientSecret string
	YTRefreshToken string

	// Twitch
	TwitchClientID     string
	TwitchClientSecret string
	TwitchBotUsername  string
	TwitchOAuthToken   string
}

// Load reads environment variables and applies defaults. Durations accept Go syntax ("10s")
// or a bare number of seconds.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ActionsPath = os.Getenv("LIVECUE_CONFIG")
	if cfg.ActionsPath == "" {
		cfg.ActionsPath = "config.json"
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	switch strings.ToLower(cfg.HTTPAddr) {
	case "":
		cfg.HTTPAddr = ":8080"
	case "off", "0", "false":
		cfg.HTTPAddr = ""
	}

	var err error
	if cfg.ResolveTimeout, err = durationEnv("RESOLVE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.ActionCommand = os.Getenv("ACTION_COMMAND")
	if cfg.ActionCommand == "" {
		cfg.ActionCommand = DefaultActionCommand
	}
	if cfg.ActionTimeout, err = durationEnv("ACTION_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	cfg.ActionDryRun = os.Getenv("ACTION_DRY_RUN") == "1"

	cfg.DBDsn = os.Getenv("DB_DSN")

	cfg.YTClientID = os.Getenv("YT_CLIENT_ID")
	cfg.YTClientSecret = os.Getenv("YT_CLIENT_SECRET")
	cfg.YTRefreshToken = os.Getenv("YT_REFRESH_TOKEN")

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")

	return cfg, nil
}

// YouTubeOAuthReady reports whether a refresh token flow can be used instead of an API key.
func (c *Config) YouTubeOAuthReady() bool {
	return c.YTClientID != "" && c.YTClientSecret != "" && c.YTRefreshToken != ""
}

// HelixReady reports whether Twitch app credentials are present.
func (c *Config) HelixReady() bool {
	return c.TwitchClientID != "" && c.TwitchClientSecret != ""
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("invalid %s: must be positive", name)
		}
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("invalid %s (duration or seconds): %q", name, v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
