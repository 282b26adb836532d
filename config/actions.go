package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Supported chat platforms.
const (
	PlatformYouTube = "youtube"
	PlatformTwitch  = "twitch"
)

// Expression is a named action bound to a chat command word.
type Expression struct {
	Name    string `validate:"required"`
	Command string `validate:"required"`
	Key     string `validate:"required"`
	Enabled bool
}

// Actions is one loaded snapshot of the operator action file. It is replaced wholesale on
// reload; the only field mutated after load is Expression.Enabled.
type Actions struct {
	TrustedUsers    []string      `validate:"dive,required"`
	Expressions     []*Expression `validate:"dive"`
	CooldownSeconds float64       `validate:"gte=0"`

	Platform string `validate:"omitempty,oneof=youtube twitch"`

	// YouTube identity
	VideoID       string
	APIKey        string
	ChannelID     string
	ChannelHandle string
	ChannelURL    string

	// Twitch identity
	TwitchChannel string
}

// Source provides a full action snapshot on every call.
type Source interface {
	Load() (*Actions, error)
}

// FileSource reads the action file from disk. YAML and JSON are both accepted.
type FileSource struct {
	Path string
}

func (s FileSource) Load() (*Actions, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read action config: %w", err)
	}
	a, err := ParseActions(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}
	return a, nil
}

type actionsFile struct {
	TrustedUsers    []string  `yaml:"trusted_users"`
	Expressions     yaml.Node `yaml:"expressions"`
	CooldownSeconds float64   `yaml:"cooldown_seconds"`
	Platform        string    `yaml:"platform"`
	VideoID         string    `yaml:"video_id"`
	APIKey          string    `yaml:"api_key"`
	ChannelID       string    `yaml:"channel_id"`
	ChannelHandle   string    `yaml:"channel_handle"`
	ChannelURL      string    `yaml:"channel_url"`
	TwitchChannel   string    `yaml:"twitch_channel"`
}

type expressionFile struct {
	Command string `yaml:"command"`
	Key     string `yaml:"key"`
	Enabled *bool  `yaml:"enabled"`
}

var validate = validator.New()

// ParseActions decodes and validates an action file. Expressions keep their declaration order.
func ParseActions(b []byte) (*Actions, error) {
	var f actionsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse action config: %w", err)
	}
	a := &Actions{
		TrustedUsers:    f.TrustedUsers,
		CooldownSeconds: f.CooldownSeconds,
		Platform:        strings.ToLower(strings.TrimSpace(f.Platform)),
		VideoID:         strings.TrimSpace(f.VideoID),
		APIKey:          strings.TrimSpace(f.APIKey),
		ChannelID:       strings.TrimSpace(f.ChannelID),
		ChannelHandle:   strings.TrimSpace(f.ChannelHandle),
		ChannelURL:      strings.TrimSpace(f.ChannelURL),
		TwitchChannel:   strings.TrimSpace(f.TwitchChannel),
	}
	if a.Platform == "" {
		a.Platform = PlatformYouTube
	}

	switch f.Expressions.Kind {
	case 0:
		// absent
	case yaml.MappingNode:
		seen := make(map[string]bool, len(f.Expressions.Content)/2)
		for i := 0; i+1 < len(f.Expressions.Content); i += 2 {
			name := strings.TrimSpace(f.Expressions.Content[i].Value)
			var ef expressionFile
			if err := f.Expressions.Content[i+1].Decode(&ef); err != nil {
				return nil, fmt.Errorf("expression %q: %w", name, err)
			}
			lower := strings.ToLower(name)
			if seen[lower] {
				return nil, fmt.Errorf("duplicate expression %q", name)
			}
			seen[lower] = true
			e := &Expression{
				Name:    name,
				Command: strings.TrimPrefix(strings.TrimSpace(ef.Command), "!"),
				Key:     ef.Key,
				Enabled: ef.Enabled == nil || *ef.Enabled,
			}
			a.Expressions = append(a.Expressions, e)
		}
	default:
		return nil, errors.New("expressions must be a mapping of name to {command, key, enabled}")
	}

	if err := validate.Struct(a); err != nil {
		return nil, fmt.Errorf("invalid action config: %w", err)
	}
	return a, nil
}

// Expression returns the expression declared under name, compared case-insensitively.
func (a *Actions) Expression(name string) (*Expression, bool) {
	for _, e := range a.Expressions {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return nil, false
}
