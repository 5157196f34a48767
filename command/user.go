package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kappatan/kappatan/message"
	"github.com/kappatan/kappatan/store"
	"github.com/kappatan/kappatan/template"
)

// Commands lists the names of the templates defined in the channel.
func Commands(ctx context.Context, robo *Robot, call *Invocation) {
	names, err := robo.Store.ListTemplates(ctx, call.Cmd.Channel)
	if err != nil {
		robo.Log.WarnContext(ctx, "couldn't list templates",
			slog.Any("err", err),
			slog.String("in", call.Cmd.Channel),
		)
		call.Channel.Message(ctx, message.Format("", call.Message.To, "Could not fetch the list of commands"))
		return
	}
	for i, name := range names {
		names[i] = string(trigger) + name
	}
	call.Channel.Message(ctx, message.Format("", call.Message.To, "Currently available commands: %s", strings.Join(names, ", ")))
}

// Invoke renders the template named by the command and replies with the
// result.
func Invoke(ctx context.Context, robo *Robot, call *Invocation) {
	text, err := render(ctx, robo, call.Cmd.Channel, call.Cmd.Name, call.Message.Sender.Name, call.Message.Sender.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		call.Channel.Message(ctx, message.Format("", call.Message.To, "'%s' isn't a command here", call.Cmd.Name))
		return
	case err != nil:
		robo.Log.WarnContext(ctx, "couldn't render template",
			slog.Any("err", err),
			slog.String("in", call.Cmd.Channel),
			slog.String("name", call.Cmd.Name),
		)
		return
	}
	call.Channel.Message(ctx, message.Format("", call.Message.To, "%s", text))
}

var (
	_ Func = Commands
	_ Func = Invoke
)

// render resolves and renders a named template for a sender. A template
// which references no variables is returned verbatim with no further I/O.
// The recognized variables are name, uptime and botuptime as synonyms for
// the session uptime, and points for the sender's balance. Unrecognized
// placeholders are left unbound and fail the render. Missing templates
// report [store.ErrNotFound].
func render(ctx context.Context, robo *Robot, channel, name, sender string, senderID int64) (string, error) {
	body, err := robo.Store.GetTemplate(ctx, channel, name)
	if err != nil {
		return "", err
	}
	keys, err := template.Keys(body)
	if err != nil {
		return "", fmt.Errorf("couldn't scan template %q: %w", name, err)
	}
	if len(keys) == 0 {
		return body, nil
	}
	vars := make(map[string]string, len(keys))
	if keys["name"] {
		vars["name"] = sender
	}
	if keys["uptime"] || keys["botuptime"] {
		up := template.ReadableDuration(time.Since(robo.Start))
		if keys["uptime"] {
			vars["uptime"] = up
		}
		if keys["botuptime"] {
			vars["botuptime"] = up
		}
	}
	if keys["points"] && senderID != 0 {
		pts, err := robo.Store.GetPoints(ctx, channel, senderID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("couldn't get points for %d in %s: %w", senderID, channel, err)
		}
		// No ledger row yet reads as a zero balance.
		vars["points"] = strconv.FormatInt(pts, 10)
	}
	return template.Render(body, vars)
}
