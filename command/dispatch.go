package command

import (
	"context"
	"log/slog"
)

// Func executes a command.
type Func func(ctx context.Context, robo *Robot, call *Invocation)

// Dispatch routes a parsed command to its handler. Commands from the channel
// owner are matched against the elevated verbs first; an elevated match is
// final for the message. Everything else falls through to the normal tier,
// where any unmatched argument-free name is a template invocation.
func Dispatch(ctx context.Context, robo *Robot, call *Invocation) {
	if call.Message.IsOwner {
		if f := elevated(call.Cmd); f != nil {
			f(ctx, robo, call)
			return
		}
	}
	normal(ctx, robo, call)
}

// elevated matches the owner-only verbs. The result is nil when the command
// doesn't fit any elevated shape, in which case dispatch continues with the
// normal tier.
func elevated(cmd *Command) Func {
	switch {
	case cmd.Name == "quit" && cmd.Args == "":
		return Quit
	case cmd.Name == "unset" && cmd.Args != "":
		return Unset
	case cmd.Name == "set" && cmd.Args != "":
		return Set
	case cmd.Name == "give" && cmd.Args != "":
		return Give
	default:
		return nil
	}
}

func normal(ctx context.Context, robo *Robot, call *Invocation) {
	switch {
	case call.Cmd.Name == "commands" && call.Cmd.Args == "":
		Commands(ctx, robo, call)
	case call.Cmd.Args == "":
		Invoke(ctx, robo, call)
	default:
		// A name with an argument is not a template invocation shape.
		robo.Log.WarnContext(ctx, "bad input",
			slog.String("in", call.Cmd.Channel),
			slog.String("name", call.Cmd.Name),
			slog.String("args", call.Cmd.Args),
		)
	}
}
