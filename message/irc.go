package message

import (
	"strconv"

	"gitlab.com/zephyrtronium/tmi"
)

// FromTMI adapts a TMI IRC message.
func FromTMI(m *tmi.Message) *Received {
	id, _ := m.Tag("id")
	ts, _ := m.Tag("tmi-sent-ts")
	u, _ := strconv.ParseInt(ts, 10, 64)
	r := Received{
		ID:        id,
		To:        m.To(),
		Sender:    sender(m),
		Text:      m.Trailing,
		Timestamp: u,
		IsOwner:   owner(m),
	}
	return &r
}

func sender(m *tmi.Message) User {
	uid, _ := m.Tag("user-id")
	id, _ := strconv.ParseInt(uid, 10, 64)
	return User{
		ID:   id,
		Name: m.DisplayName(),
	}
}

func owner(m *tmi.Message) bool {
	// The broadcaster's nick is equal to the channel name. Their mod tag is
	// 0, and badges tend to be unreliable, so the nick is the whole check.
	if to := m.To(); to[0] == '#' && to[1:] == m.Nick {
		return true
	}
	return false
}

// ToTMI creates a message to send to TMI. If reply is not empty, then the
// result is a reply to the message with that ID.
func ToTMI(reply, to, text string) *tmi.Message {
	r := tmi.Privmsg(to, text)
	if reply != "" {
		r.Tags = "reply-parent-msg-id=" + reply
	}
	return r
}
