// Package identity derives canonical YouTube channel identities (an @handle or a
// UC-prefixed channel ID) from the free-form strings operators put in the action file.
// Every function is total: malformed input yields "not derivable", never an error.
package identity

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/onnwee/livecue/config"
)

// ChannelIDPrefix starts every canonical YouTube channel ID.
const ChannelIDPrefix = "UC"

const (
	platformDomain   = "youtube"
	minChannelIDSize = 20
)

var channelPathPattern = regexp.MustCompile(`^/channel/(UC[a-zA-Z0-9_\-]{20,})/?$`)

// NormalizeHandle returns an @handle for s, or false when none can be derived.
// Accepted forms are "@name" and "https://www.youtube.com/@name".
func NormalizeHandle(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "@") {
		return s, true
	}
	u, ok := platformURL(s)
	if !ok || !strings.HasPrefix(u.Path, "/@") {
		return "", false
	}
	return strings.Trim(u.Path, "/"), true
}

// NormalizeChannelID returns a UC... channel ID for s, or false when none can be derived.
// Accepted forms are the raw ID and "https://www.youtube.com/channel/<id>".
func NormalizeChannelID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, ChannelIDPrefix) && len(s) >= minChannelIDSize {
		return s, true
	}
	u, ok := platformURL(s)
	if !ok {
		return "", false
	}
	m := channelPathPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func platformURL(s string) (*url.URL, bool) {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return nil, false
	}
	return u, strings.Contains(strings.ToLower(u.Host), platformDomain)
}

// Channel is the effective identity derived from an action snapshot.
type Channel struct {
	Handle string
	ID     string
	URL    string
}

// Empty reports whether nothing identifies a channel.
func (c Channel) Empty() bool { return c.Handle == "" && c.ID == "" && c.URL == "" }

// Derive computes the channel identity from the configured fields. channel_id and
// channel_handle are normalized when possible and used verbatim otherwise; channel_url
// then overrides with a derived handle, or failing that a derived channel ID.
func Derive(a *config.Actions) Channel {
	var c Channel
	if a.ChannelID != "" {
		c.ID = a.ChannelID
		if id, ok := NormalizeChannelID(a.ChannelID); ok {
			c.ID = id
		}
	}
	if a.ChannelHandle != "" {
		c.Handle = a.ChannelHandle
		if h, ok := NormalizeHandle(a.ChannelHandle); ok {
			c.Handle = h
		}
	}
	if a.ChannelURL != "" {
		c.URL = a.ChannelURL
		if h, ok := NormalizeHandle(a.ChannelURL); ok {
			c.Handle = h
		} else if id, ok := NormalizeChannelID(a.ChannelURL); ok {
			c.ID = id
		}
	}
	return c
}
