package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// MockYouTubeServer creates a test server that mocks YouTube Data API responses
type MockYouTubeServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockYouTubeServer creates a new mock YouTube API server. Point the client
// at it with option.WithEndpoint(server.URL).
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The generated client prefixes every call with the API path.
		key := strings.TrimPrefix(r.URL.Path, "/youtube/v3")
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockVideoResponse adds a handler for the videos.list endpoint. An empty
// activeLiveChatID mocks a video without a live chat; an empty videoID mocks
// an unknown video.
func (m *MockYouTubeServer) MockVideoResponse(videoID, activeLiveChatID string) {
	m.Handlers["/videos"] = func(w http.ResponseWriter, r *http.Request) {
		items := []map[string]interface{}{}
		if videoID != "" {
			item := map[string]interface{}{"id": videoID}
			if activeLiveChatID != "" {
				item["liveStreamingDetails"] = map[string]string{
					"activeLiveChatId": activeLiveChatID,
				}
			} else {
				item["liveStreamingDetails"] = map[string]string{}
			}
			items = append(items, item)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": items}) //nolint:errcheck // test mock response
	}
}

// ChatItem is one mocked live chat message.
type ChatItem struct {
	ID          string
	AuthorID    string
	AuthorName  string
	AvatarURL   string
	Text        string
	PublishedAt string
}

// MockLiveChatPage adds a handler for the liveChatMessages.list endpoint
// returning one fixed page.
func (m *MockYouTubeServer) MockLiveChatPage(items []ChatItem, nextPageToken string, pollMillis int64) {
	m.Handlers["/liveChat/messages"] = func(w http.ResponseWriter, r *http.Request) {
		encoded := make([]map[string]interface{}, 0, len(items))
		for _, it := range items {
			encoded = append(encoded, map[string]interface{}{
				"id": it.ID,
				"snippet": map[string]string{
					"displayMessage": it.Text,
					"publishedAt":    it.PublishedAt,
				},
				"authorDetails": map[string]string{
					"channelId":       it.AuthorID,
					"displayName":     it.AuthorName,
					"profileImageUrl": it.AvatarURL,
				},
			})
		}
		response := map[string]interface{}{
			"items":                 encoded,
			"nextPageToken":         nextPageToken,
			"pollingIntervalMillis": pollMillis,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}
