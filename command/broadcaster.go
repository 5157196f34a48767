package command

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kappatan/kappatan/message"
)

// Quit requests graceful session shutdown.
func Quit(ctx context.Context, robo *Robot, call *Invocation) {
	robo.Log.InfoContext(ctx, "quit",
		slog.String("in", call.Cmd.Channel),
		slog.String("by", call.Message.Sender.Name),
	)
	robo.Quit()
}

// Unset deletes a template by name.
func Unset(ctx context.Context, robo *Robot, call *Invocation) {
	name := call.Cmd.Args
	err := robo.Store.DeleteTemplate(ctx, call.Cmd.Channel, name)
	if err != nil {
		robo.Log.WarnContext(ctx, "couldn't unset template",
			slog.Any("err", err),
			slog.String("in", call.Cmd.Channel),
			slog.String("name", name),
		)
		call.Channel.Message(ctx, message.Format("", call.Message.To, "Was not able to unset '%s'", name))
		return
	}
	call.Channel.Message(ctx, message.Format("", call.Message.To, "'%s' has been unset.", name))
}

// Set creates or replaces a template. The first word of the argument is the
// template name and the rest is its body.
func Set(ctx context.Context, robo *Robot, call *Invocation) {
	name, body, _ := strings.Cut(call.Cmd.Args, " ")
	body = strings.TrimSpace(body)
	if body == "" {
		call.Channel.Message(ctx, message.Format("", call.Message.To, "usage: !set <command> <template>"))
		return
	}
	err := robo.Store.UpsertTemplate(ctx, call.Cmd.Channel, name, body)
	if err != nil {
		robo.Log.WarnContext(ctx, "couldn't set template",
			slog.Any("err", err),
			slog.String("in", call.Cmd.Channel),
			slog.String("name", name),
		)
		call.Channel.Message(ctx, message.Format("", call.Message.To, "Could not set template for '%s'", name))
		return
	}
	call.Channel.Message(ctx, message.Format("", call.Message.To, "'%s' has been set to: %s", name, body))
}

// Give credits points to the bot's ledger account and announces the transfer
// by rendering the points template with the recipient's name. A missing or
// broken points template doesn't fail the give; the announcement is simply
// skipped.
func Give(ctx context.Context, robo *Robot, call *Invocation) {
	user, amount, _ := strings.Cut(call.Cmd.Args, " ")
	amount = strings.TrimSpace(amount)
	if amount == "" {
		call.Channel.Message(ctx, message.Format("", call.Message.To, "usage: !give <user> <number>"))
		return
	}
	n, err := strconv.ParseInt(amount, 10, 64)
	if err != nil {
		call.Channel.Message(ctx, message.Format("", call.Message.To, "Could not give '%s' to '%s'", amount, user))
		return
	}
	if err := robo.Store.CreditPoints(ctx, call.Cmd.Channel, robo.BotID, n); err != nil {
		robo.Log.WarnContext(ctx, "couldn't credit points",
			slog.Any("err", err),
			slog.String("in", call.Cmd.Channel),
			slog.String("to", user),
			slog.Int64("amount", n),
		)
		call.Channel.Message(ctx, message.Format("", call.Message.To, "Could not give '%s' to '%s'", amount, user))
		return
	}
	text, err := render(ctx, robo, call.Cmd.Channel, "points", user, robo.BotID)
	if err != nil {
		robo.Log.WarnContext(ctx, "couldn't announce give",
			slog.Any("err", err),
			slog.String("in", call.Cmd.Channel),
			slog.String("to", user),
		)
		return
	}
	call.Channel.Message(ctx, message.Format("", call.Message.To, "%s", text))
}

var (
	_ Func = Quit
	_ Func = Unset
	_ Func = Set
	_ Func = Give
)
