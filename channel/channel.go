package channel

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/kappatan/kappatan/message"
)

type Channel struct {
	// Name is the name of the channel.
	Name string
	// Message sends a message to the channel with an optional reply message ID.
	Message func(ctx context.Context, msg message.Sent)
	// Rate is the rate limiter for messages. Attempts to speak in excess of
	// the rate limit are dropped.
	Rate *rate.Limiter
	// Ignore is the set of user logins whose commands are never dispatched.
	Ignore map[string]bool
	// Extra is extra channel data that may be added by commands.
	Extra sync.Map // map[any]any; key is a type
}
