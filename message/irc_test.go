package message_test

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/kappatan/kappatan/message"
	"gitlab.com/zephyrtronium/tmi"
)

func TestFromTMI(t *testing.T) {
	cases := []struct {
		name  string
		msg   string
		id    string
		to    string
		uid   int64
		disp  string
		text  string
		time  time.Time
		owner bool
	}{
		{
			name:  "regular",
			msg:   `@badge-info=;badges=;client-nonce=eb10a5865f1231b6e96d6ae2dbcecdb4;color=#B22222;display-name=Someone;emotes=;first-msg=0;flags=;id=a74eb158-9732-4e6f-9150-2648cdf3c902;mod=0;returning-chatter=0;room-id=12345678;subscriber=0;tmi-sent-ts=1662882968379;turbo=0;user-id=123456789;user-type= :someone!someone@someone.tmi.twitch.tv PRIVMSG #channel :hello, world!`,
			id:    "a74eb158-9732-4e6f-9150-2648cdf3c902",
			to:    "#channel",
			uid:   123456789,
			disp:  "Someone",
			text:  "hello, world!",
			time:  time.UnixMilli(1662882968379),
			owner: false,
		},
		{
			name:  "broadcaster",
			msg:   `@badge-info=;badges=broadcaster/1;color=#1E90FF;display-name=Bocchi;emotes=;first-msg=0;flags=;id=2a9bb533-2837-48d0-8aba-032f844c91f6;mod=0;returning-chatter=0;room-id=12345678;subscriber=0;tmi-sent-ts=1662887850257;turbo=0;user-id=12345678;user-type= :bocchi!bocchi@bocchi.tmi.twitch.tv PRIVMSG #bocchi :hello, world!`,
			id:    "2a9bb533-2837-48d0-8aba-032f844c91f6",
			to:    "#bocchi",
			uid:   12345678,
			disp:  "Bocchi",
			text:  "hello, world!",
			time:  time.UnixMilli(1662887850257),
			owner: true,
		},
		{
			name:  "mod",
			msg:   `@badge-info=subscriber/42;badges=moderator/1,subscriber/2036;color=#0000FF;display-name=aMod;emotes=;first-msg=0;flags=;id=d2129ccd-0763-434c-bd00-7354bfe1a781;mod=1;returning-chatter=0;room-id=12345678;subscriber=1;tmi-sent-ts=1662885432414;turbo=0;user-id=87654321;user-type=mod :amod!amod@amod.tmi.twitch.tv PRIVMSG #channel :hello, world!`,
			to:    "#channel",
			id:    "d2129ccd-0763-434c-bd00-7354bfe1a781",
			uid:   87654321,
			disp:  "aMod",
			text:  "hello, world!",
			time:  time.UnixMilli(1662885432414),
			owner: false,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tm, err := tmi.Parse(strings.NewReader(c.msg + "\r\n"))
			if err != nil && err != io.EOF {
				panic(err)
			}
			msg := message.FromTMI(tm)
			if got := msg.ID; got != c.id {
				t.Errorf("wrong id: want %q, got %q", c.id, got)
			}
			if got := msg.To; got != c.to {
				t.Errorf("wrong to: want %q, got %q", c.to, got)
			}
			if got := msg.Sender.ID; got != c.uid {
				t.Errorf("wrong sender id: want %d, got %d", c.uid, got)
			}
			if got := msg.Sender.Name; got != c.disp {
				t.Errorf("wrong display name: want %q, got %q", c.disp, got)
			}
			if got := msg.Text; got != c.text {
				t.Errorf("wrong text: want %q, got %q", c.text, got)
			}
			if got := msg.Time(); !got.Equal(c.time) {
				t.Errorf("wrong time: want %v, got %v", c.time, got)
			}
			if got := msg.IsOwner; got != c.owner {
				t.Errorf("wrong owner: want %t, got %t", c.owner, got)
			}
		})
	}
}
