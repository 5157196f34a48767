// Package command implements chat command parsing and dispatch.
package command

import (
	"strings"

	"github.com/kappatan/kappatan/channel"
	"github.com/kappatan/kappatan/message"
)

// trigger is the character that introduces a command.
const trigger = '!'

// Command is a single parsed chat command. A Command and its fields must not
// be modified or retained by any handler.
type Command struct {
	// Name is the command name, the first token after the trigger.
	Name string
	// Args is the remainder of the message after the name, trimmed of
	// surrounding space. Empty means no argument was given.
	Args string
	// Channel is the name of the channel where the command was sent, without
	// any leading sigil.
	Channel string
	// Sender identifies the user who sent the command.
	Sender message.User
}

// Parse parses a chat message as a command. The second result is false when
// the message is not a command, which happens when its text does not start
// with the trigger character or contains nothing after it.
func Parse(m *message.Received) (*Command, bool) {
	text := m.Text
	if len(text) < 2 || text[0] != trigger {
		return nil, false
	}
	name, args, _ := strings.Cut(text[1:], " ")
	if name == "" {
		return nil, false
	}
	r := Command{
		Name:    name,
		Args:    strings.TrimSpace(args),
		Channel: strings.TrimPrefix(m.To, "#"),
		Sender:  m.Sender,
	}
	return &r, true
}

// Invocation is a command invocation. An Invocation and its fields must not
// be modified or retained by any handler.
type Invocation struct {
	// Channel is the channel where the invocation occurred.
	Channel *channel.Channel
	// Message is the message which triggered the invocation.
	Message *message.Received
	// Cmd is the parsed command.
	Cmd *Command
}
