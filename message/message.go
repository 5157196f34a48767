// Package message provides service-neutral chat message types.
package message

import (
	"fmt"
	"strings"
	"time"
)

// User identifies a message sender.
type User struct {
	// ID is the sender's numeric user ID, or zero if the service did not
	// provide one.
	ID int64
	// Name is the sender's display name.
	Name string
}

// Received is a message received from a service.
type Received struct {
	// ID is the unique ID of the message.
	ID string
	// To is the destination of the message, including any service-specific
	// sigil, e.g. "#bocchi".
	To string
	// Sender identifies the message sender.
	Sender User
	// Text is the text of the message.
	Text string
	// Timestamp is the timestamp of the message as milliseconds since the
	// Unix epoch.
	Timestamp int64
	// IsOwner indicates whether the sender owns the channel to which the
	// message was sent.
	IsOwner bool
}

func (m *Received) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Sent is a message to be sent to a service.
type Sent struct {
	// Reply is the ID of a message to reply to. If empty, the message is
	// not interpreted as a reply.
	Reply string
	// To is the channel to whom the message is sent.
	To string
	// Text is the message text.
	Text string
}

// formatString is a type to prevent misuse of format strings passed to [Format].
type formatString string

// Format constructs a message to send from a format string literal and
// formatting arguments.
func Format(reply, to string, f formatString, args ...any) Sent {
	return Sent{
		Reply: reply,
		To:    to,
		Text:  strings.TrimSpace(fmt.Sprintf(string(f), args...)),
	}
}
