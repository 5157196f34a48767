package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gitlab.com/zephyrtronium/tmi"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kappatan/kappatan/auth"
	"github.com/kappatan/kappatan/channel"
	"github.com/kappatan/kappatan/metrics"
	"github.com/kappatan/kappatan/store"
	"github.com/kappatan/kappatan/syncmap"
	"github.com/kappatan/kappatan/twitch"
)

// Bot is the bot session.
type Bot struct {
	// tmi is the bot's Twitch chat connection.
	tmi *client[*tmi.Message, *tmi.Message]
	// channels are the channels the bot serves.
	channels *syncmap.Map[string, *channel.Channel]
	// store is the template and points store.
	store store.Interface
	// twitch is the Twitch API client.
	twitch twitch.Client
	// helix is the token source for Twitch API requests.
	helix auth.TokenSource
	// secrets are the bot's keys.
	secrets *keys
	// metrics are the bot's metrics collectors.
	metrics *metrics.Metrics
	// start is the time at which the current session started.
	start time.Time
	// botID is the Twitch user ID of the bot account as the points ledger
	// subject.
	botID int64
	// quit requests session shutdown. It is set during Run.
	quit context.CancelFunc
}

// client is a connection to a chat service.
type client[Send, Receive any] struct {
	// send is the channel on which messages are sent.
	send chan Send
	// recv is the channel on which received messages are communicated.
	recv chan Receive
	// clientID is the client ID for OAuth2.
	clientID string
	// name is the bot's login name on the service.
	name string
	// userID is the bot's user ID on the service.
	userID string
	// rate is the global rate limiter for sending messages.
	rate *rate.Limiter
	// tokens is the source of OAuth2 tokens for connecting.
	tokens auth.TokenSource
}

// New creates a new bot with no configuration.
func New() *Bot {
	return &Bot{
		channels: syncmap.New[string, *channel.Channel](),
		metrics:  newMetrics(),
	}
}

// Run runs the bot until the context is cancelled, a fatal error occurs, or
// the quit command is invoked.
func (robo *Bot) Run(ctx context.Context, listen string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	robo.quit = cancel
	robo.start = time.Now()
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return robo.runTwitch(ctx, group) })
	if listen != "" {
		group.Go(func() error { return robo.api(ctx, listen, http.NewServeMux(), robo.metrics.Collectors()) })
	}
	err := group.Wait()
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runTwitch runs the Twitch chat connection. It returns when the context is
// cancelled or when connecting becomes impossible.
func (robo *Bot) runTwitch(ctx context.Context, group *errgroup.Group) error {
	group.Go(func() error {
		robo.tmiLoop(ctx, robo.tmi.send, robo.tmi.recv)
		return nil
	})
	tok, err := robo.tmi.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("couldn't obtain access token for connection: %w", err)
	}
	for {
		cfg := tmi.ConnectConfig{
			Dial:         new(tls.Dialer).DialContext,
			RetryWait:    tmi.RetryList(true, 0, time.Second, time.Minute, 5*time.Minute),
			Nick:         strings.ToLower(robo.tmi.name),
			Pass:         "oauth:" + tok.AccessToken,
			Capabilities: []string{"twitch.tv/commands", "twitch.tv/tags"},
			Timeout:      300 * time.Second,
		}
		err = tmi.Connect(ctx, cfg, tmi.Log(slog.Default(), slog.Default()), robo.tmi.send, robo.tmi.recv)
		switch {
		case err == nil: // We received a RECONNECT and should do so with no delay.
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case errors.Is(err, tmi.ErrAuthenticationFailed):
			slog.WarnContext(ctx, "TMI authentication failed; refreshing token")
			tok, err = robo.tmi.tokens.Refresh(ctx, tok)
			if err != nil {
				return fmt.Errorf("couldn't refresh access token for connection: %w", err)
			}
		default:
			slog.ErrorContext(ctx, "TMI connection error", slog.Any("err", err))
		}
	}
}
