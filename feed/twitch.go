package feed

import (
	"context"
	"log/slog"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-arena/command"
	"github.com/onnwee/chat-arena/config"
)

// StartTwitchFeed bridges a Twitch IRC channel into the same dispatch path as
// the polled feed, for channels that stream there instead. IRC pushes
// messages, so no cursor or dedup cache is needed; message order is the
// server's delivery order.
func StartTwitchFeed(ctx context.Context, cfg *config.Config, dispatch Dispatcher) {
	if err := cfg.ValidateTwitchReady(); err != nil {
		slog.Info("twitch feed disabled", slog.Any("err", err), slog.String("component", "feed"))
		return
	}
	client := twitch.NewClient(cfg.TwitchBotUsername, cfg.TwitchOAuthToken)

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		cmd := command.Parse(msg.Message)
		var err error
		switch cmd.Kind {
		case command.Join:
			err = dispatch.HandleJoin(ctx, msg.User.ID, msg.User.DisplayName, "")
		case command.Number:
			err = dispatch.HandleNumber(ctx, msg.User.ID, cmd.Value)
		case command.StartDuel:
			err = dispatch.StartDuel(ctx)
		case command.StartElimination:
			err = dispatch.StartElimination(ctx)
		case command.Noise:
			return
		}
		if err != nil {
			slog.Debug("command refused",
				slog.String("kind", cmd.Kind.String()),
				slog.String("author", msg.User.DisplayName),
				slog.Any("err", err),
				slog.String("component", "feed"))
		}
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		client.Disconnect()
		close(done)
	}()

	client.Join(cfg.TwitchChannel)
	if err := client.Connect(); err != nil {
		slog.Error("twitch chat connect error", slog.Any("err", err), slog.String("component", "feed"))
	}
	<-done
}
