package youtubeapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/onnwee/chat-arena/config"
	"github.com/onnwee/chat-arena/testutil"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"bare id", "dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"watch url with extras", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ"},
		{"short link", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"live url", "https://www.youtube.com/live/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"whitespace", "  dQw4w9WgXcQ  ", "dQw4w9WgXcQ"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractVideoID(tt.target); got != tt.want {
				t.Errorf("ExtractVideoID(%q) = %q, want %q", tt.target, got, tt.want)
			}
		})
	}
}

func newTestClient(t *testing.T, mock *testutil.MockYouTubeServer) *Client {
	t.Helper()
	cfg := &config.Config{YTAPIKey: "test-key"}
	client, err := New(context.Background(), cfg, option.WithEndpoint(mock.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestResolveLiveChat(t *testing.T) {
	mock := testutil.NewMockYouTubeServer(t)
	client := newTestClient(t, mock)
	ctx := context.Background()

	mock.MockVideoResponse("vid-1", "chat-1")
	id, err := client.ResolveLiveChat(ctx, "vid-1")
	if err != nil {
		t.Fatalf("ResolveLiveChat: %v", err)
	}
	if id != "chat-1" {
		t.Errorf("live chat id = %q, want chat-1", id)
	}

	mock.MockVideoResponse("", "")
	if _, err := client.ResolveLiveChat(ctx, "vid-unknown"); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("unknown video: got %v, want ErrInvalidTarget", err)
	}

	mock.MockVideoResponse("vid-2", "")
	if _, err := client.ResolveLiveChat(ctx, "vid-2"); !errors.Is(err, ErrNoActiveFeed) {
		t.Errorf("no live chat: got %v, want ErrNoActiveFeed", err)
	}

	if _, err := client.ResolveLiveChat(ctx, "   "); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("blank target: got %v, want ErrInvalidTarget", err)
	}
}

func TestFetchPage(t *testing.T) {
	mock := testutil.NewMockYouTubeServer(t)
	client := newTestClient(t, mock)

	mock.MockLiveChatPage([]testutil.ChatItem{
		{
			ID:          "m1",
			AuthorID:    "chan-1",
			AuthorName:  "alice",
			AvatarURL:   "https://example.com/a.png",
			Text:        "!join",
			PublishedAt: "2026-01-02T15:04:05Z",
		},
		{ID: "m2", AuthorID: "chan-2", AuthorName: "bob", Text: "1234"},
	}, "tok-next", 4000)

	page, err := client.FetchPage(context.Background(), "chat-1", "")
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if page.NextPageToken != "tok-next" {
		t.Errorf("next token = %q, want tok-next", page.NextPageToken)
	}
	if page.PollAfter != 4*time.Second {
		t.Errorf("poll after = %v, want 4s", page.PollAfter)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(page.Messages))
	}
	m := page.Messages[0]
	if m.ID != "m1" || m.AuthorID != "chan-1" || m.AuthorName != "alice" || m.Text != "!join" {
		t.Errorf("message = %+v", m)
	}
	if m.PublishedAt.IsZero() {
		t.Error("publishedAt not parsed")
	}
}
