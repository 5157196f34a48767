package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gitlab.com/zephyrtronium/tmi"

	"github.com/kappatan/kappatan/command"
	"github.com/kappatan/kappatan/message"
)

// tmiMessage processes a PRIVMSG from TMI.
func (robo *Bot) tmiMessage(ctx context.Context, msg *tmi.Message) {
	robo.metrics.TMIMsgsCount.Observe(1)
	ch, _ := robo.channels.Load(msg.To())
	if ch == nil {
		// TMI gives a WHISPER for a direct message, so this is a message to a
		// channel that isn't configured. Ignore it.
		return
	}
	if ch.Ignore[strings.ToLower(msg.Nick)] {
		return
	}
	m := message.FromTMI(msg)
	cmd, ok := command.Parse(m)
	if !ok {
		return
	}
	robo.metrics.TMICommandCount.Observe(1)
	slog.InfoContext(ctx, "command",
		slog.String("in", cmd.Channel),
		slog.String("name", cmd.Name),
		slog.String("args", cmd.Args),
		slog.Bool("owner", m.IsOwner),
	)
	r := command.Robot{
		Log:   slog.Default(),
		Store: robo.store,
		Start: robo.start,
		BotID: robo.botID,
		Quit:  robo.quit,
	}
	inv := command.Invocation{
		Channel: ch,
		Message: m,
		Cmd:     cmd,
	}
	// Arbitrary template names would blow up the label cardinality.
	kind := cmd.Name
	switch kind {
	case "quit", "unset", "set", "give", "commands": // do nothing
	default:
		kind = "template"
	}
	start := time.Now()
	command.Dispatch(ctx, &r, &inv)
	robo.metrics.DispatchLatency.Observe(time.Since(start).Seconds(), kind)
}
