package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockYouTubeServer creates a test server that mocks YouTube Data API v3 responses.
// Point a youtubeapi.Factory at it with Endpoint: m.URL + "/".
type MockYouTubeServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu    sync.Mutex
	calls map[string]int
}

// NewMockYouTubeServer creates a new mock YouTube API server
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{
		Handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		m.mu.Lock()
		m.calls[key]++
		handler, ok := m.Handlers[key]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		WriteAPIError(w, http.StatusNotFound, "notFound")
	}))
	t.Cleanup(m.Close)
	return m
}

// Calls returns how many requests hit path.
func (m *MockYouTubeServer) Calls(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[path]
}

// Handle registers a handler for path (e.g. "/youtube/v3/search").
func (m *MockYouTubeServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = h
}

// MockChannelForHandle adds a handler for channels.list?forHandle=.
func (m *MockYouTubeServer) MockChannelForHandle(channelID string) {
	m.Handle("/youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		items := []map[string]string{}
		if channelID != "" {
			items = append(items, map[string]string{"id": channelID})
		}
		WriteJSON(w, map[string]interface{}{"items": items})
	})
}

// MockLiveSearch adds a handler for search.list?eventType=live.
func (m *MockYouTubeServer) MockLiveSearch(videoID string) {
	m.Handle("/youtube/v3/search", func(w http.ResponseWriter, r *http.Request) {
		items := []map[string]interface{}{}
		if videoID != "" {
			items = append(items, map[string]interface{}{"id": map[string]string{"kind": "youtube#video", "videoId": videoID}})
		}
		WriteJSON(w, map[string]interface{}{"items": items})
	})
}

// MockLiveChatID adds a handler for videos.list?part=liveStreamingDetails.
func (m *MockYouTubeServer) MockLiveChatID(chatID string) {
	m.Handle("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, map[string]interface{}{
			"items": []map[string]interface{}{{
				"id":                   r.URL.Query().Get("id"),
				"liveStreamingDetails": map[string]string{"activeLiveChatId": chatID},
			}},
		})
	})
}

// ChatMessage builds one liveChatMessages item.
func ChatMessage(id, author, text string) map[string]interface{} {
	return map[string]interface{}{
		"id": id,
		"snippet": map[string]interface{}{
			"type":           "textMessageEvent",
			"displayMessage": text,
			"publishedAt":    "2024-10-15T14:30:00Z",
		},
		"authorDetails": map[string]string{"displayName": author},
	}
}

// WriteJSON encodes v as a JSON response.
func WriteJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// WriteAPIError writes a googleapi-style error body.
func WriteAPIError(w http.ResponseWriter, code int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck // test mock response
		"error": map[string]interface{}{
			"code":    code,
			"message": reason,
			"errors":  []map[string]string{{"reason": reason, "message": reason}},
		},
	})
}
