package feed

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onnwee/chat-arena/config"
	"github.com/onnwee/chat-arena/youtubeapi"
)

type staticResolver struct {
	id  string
	err error
}

func (r *staticResolver) ResolveLiveChat(context.Context, string) (string, error) {
	return r.id, r.err
}

type emptySource struct{}

func (emptySource) FetchPage(context.Context, string, string) (*youtubeapi.Page, error) {
	return &youtubeapi.Page{}, nil
}

func testControllerConfig() *config.Config {
	return &config.Config{PollInterval: 5 * time.Second, FingerprintCap: 100}
}

func TestControllerLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewController(ctx, testControllerConfig(), &staticResolver{id: "chat-1"}, emptySource{}, &recordDispatcher{}, nil, clockwork.NewFakeClock())

	if running, _ := c.Running(); running {
		t.Fatal("running before start")
	}
	if err := c.Start(ctx, "vid-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	running, target := c.Running()
	if !running || target != "vid-1" {
		t.Errorf("running = %v, target = %q", running, target)
	}

	if err := c.Start(ctx, "vid-2"); err != ErrAlreadySyncing {
		t.Errorf("second start: got %v, want ErrAlreadySyncing", err)
	}

	c.Stop()
	if running, _ := c.Running(); running {
		t.Error("still running after stop")
	}
	// Stop on an idle controller is a no-op.
	c.Stop()

	if err := c.Start(ctx, "vid-3"); err != nil {
		t.Errorf("restart: %v", err)
	}
}

func TestControllerResolverErrorPropagates(t *testing.T) {
	ctx := context.Background()
	c := NewController(ctx, testControllerConfig(), &staticResolver{err: youtubeapi.ErrNoActiveFeed}, emptySource{}, &recordDispatcher{}, nil, clockwork.NewFakeClock())
	if err := c.Start(ctx, "vid-1"); err != youtubeapi.ErrNoActiveFeed {
		t.Errorf("got %v, want ErrNoActiveFeed", err)
	}
	if running, _ := c.Running(); running {
		t.Error("running after failed start")
	}
}

func TestControllerWithoutClient(t *testing.T) {
	ctx := context.Background()
	c := NewController(ctx, testControllerConfig(), nil, nil, &recordDispatcher{}, nil, clockwork.NewFakeClock())
	if err := c.Start(ctx, "vid-1"); err == nil {
		t.Error("expected error when no client is configured")
	}
}
