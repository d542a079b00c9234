// Package youtubeapi wraps the YouTube Data API for the single purpose of
// polling live chat: resolving a video target to its active live chat id and
// fetching one page of messages at a time. Auth is an API key by default, or
// an OAuth bearer token when YT_ACCESS_TOKEN is set.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/chat-arena/config"
)

var (
	// ErrInvalidTarget means the target could not be resolved to a video.
	ErrInvalidTarget = errors.New("target does not resolve to a video")
	// ErrNoActiveFeed means the video exists but has no live chat attached.
	ErrNoActiveFeed = errors.New("video has no active live chat")
)

// ChatMessage is the minimal slice of a live chat message the game needs.
type ChatMessage struct {
	ID          string
	AuthorID    string // stable channel id of the author
	AuthorName  string
	AvatarURL   string
	Text        string
	PublishedAt time.Time
}

// Page is one fetch of the live chat, plus the cursor for the next fetch and
// the server-suggested wait before it.
type Page struct {
	Messages      []ChatMessage
	NextPageToken string
	PollAfter     time.Duration
}

type Client struct {
	svc *yt.Service
}

// New builds a live chat client. Extra options are appended after the auth
// option, so tests can override the endpoint.
func New(ctx context.Context, cfg *config.Config, extra ...option.ClientOption) (*Client, error) {
	if err := cfg.ValidateFeedReady(); err != nil {
		return nil, err
	}
	var opts []option.ClientOption
	if cfg.YTAccessToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.YTAccessToken})
		opts = append(opts, option.WithTokenSource(ts))
	} else {
		opts = append(opts, option.WithAPIKey(cfg.YTAPIKey))
	}
	opts = append(opts, extra...)
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ExtractVideoID accepts a bare video id, a watch URL, a youtu.be short link,
// or a /live/ URL and returns the video id.
func ExtractVideoID(target string) string {
	t := strings.TrimSpace(target)
	if t == "" {
		return ""
	}
	if !strings.Contains(t, "/") && !strings.Contains(t, "?") {
		return t
	}
	u, err := url.Parse(t)
	if err != nil {
		return ""
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	// youtu.be/<id> and youtube.com/live/<id>
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 0 && parts[len(parts)-1] != "" {
		return parts[len(parts)-1]
	}
	return ""
}

// ResolveLiveChat resolves a target to the id of its active live chat.
func (c *Client) ResolveLiveChat(ctx context.Context, target string) (string, error) {
	videoID := ExtractVideoID(target)
	if videoID == "" {
		return "", ErrInvalidTarget
	}
	resp, err := c.svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("videos.list: %w", err)
	}
	if len(resp.Items) == 0 {
		return "", ErrInvalidTarget
	}
	details := resp.Items[0].LiveStreamingDetails
	if details == nil || details.ActiveLiveChatId == "" {
		return "", ErrNoActiveFeed
	}
	return details.ActiveLiveChatId, nil
}

// FetchPage retrieves one page of live chat messages after pageToken (empty
// for the first call). Messages come back in feed order.
func (c *Client) FetchPage(ctx context.Context, liveChatID, pageToken string) (*Page, error) {
	call := c.svc.LiveChatMessages.List(liveChatID, []string{"snippet", "authorDetails"}).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("liveChatMessages.list: %w", err)
	}

	page := &Page{
		NextPageToken: resp.NextPageToken,
		PollAfter:     time.Duration(resp.PollingIntervalMillis) * time.Millisecond,
	}
	for _, item := range resp.Items {
		if item.Snippet == nil {
			continue
		}
		m := ChatMessage{
			ID:   item.Id,
			Text: item.Snippet.DisplayMessage,
		}
		if ts, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			m.PublishedAt = ts
		}
		if item.AuthorDetails != nil {
			m.AuthorID = item.AuthorDetails.ChannelId
			m.AuthorName = item.AuthorDetails.DisplayName
			m.AvatarURL = item.AuthorDetails.ProfileImageUrl
		}
		page.Messages = append(page.Messages, m)
	}
	return page, nil
}
