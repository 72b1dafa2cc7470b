// Package chat runs the Twitch chat bot: it dispatches viewer commands to the
// session manager and Spotify client, and announces track changes emitted by
// the track monitor.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/tunebridge/tunebridge/config"
	"github.com/tunebridge/tunebridge/session"
	"github.com/tunebridge/tunebridge/spotifyapi"
)

// Bot wires chat messages to command handlers. say is swapped out in tests.
type Bot struct {
	cfg     *config.Config
	mgr     *session.Manager
	monitor *session.Monitor

	say func(text string)
}

func NewBot(cfg *config.Config, mgr *session.Manager, monitor *session.Monitor) *Bot {
	b := &Bot{cfg: cfg, mgr: mgr, monitor: monitor}
	b.say = func(text string) {
		slog.Debug("chat reply dropped: not connected", slog.String("text", text))
	}
	return b
}

// Run connects to Twitch chat and blocks until ctx is cancelled or the
// connection fails.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.cfg.ValidateChatReady(); err != nil {
		return err
	}
	client := twitch.NewClient(b.cfg.TwitchBotUsername, b.cfg.TwitchOAuthToken)
	channel := b.cfg.TwitchChannel
	b.say = func(text string) { client.Say(channel, text) }

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		text := strings.TrimSpace(msg.Message)
		if !strings.HasPrefix(text, "!") {
			return
		}
		// One lightweight task per command; slow Spotify calls must not
		// block the IRC read loop.
		go b.handleMessage(ctx, msg.User.Name, text)
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := client.Disconnect(); err != nil {
			slog.Warn("twitch chat disconnect error", slog.Any("err", err))
		}
		close(done)
	}()

	client.Join(channel)
	slog.Info("twitch chat bot connecting", slog.String("channel", channel))
	if err := client.Connect(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("twitch chat connect: %w", err)
	}
	<-done
	return nil
}

// TrackChanged implements session.Notifier by announcing the new track.
func (b *Bot) TrackChanged(userID string, track spotifyapi.Track) {
	b.say(fmt.Sprintf("🎵 @%s is now playing: %s by %s %s", userID, track.Name, track.Artist, track.URL))
}
