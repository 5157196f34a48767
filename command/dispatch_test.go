package command_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/kappatan/kappatan/channel"
	"github.com/kappatan/kappatan/command"
	"github.com/kappatan/kappatan/message"
	"github.com/kappatan/kappatan/store/sqlstore"
)

var dbCount atomic.Int64

const testBotID = 999

// testRobot creates a robot with an in-memory store and records whether quit
// was requested.
func testRobot(ctx context.Context, t *testing.T) (*command.Robot, *atomic.Bool) {
	t.Helper()
	k := dbCount.Add(1)
	pool, err := sqlitex.NewPool(fmt.Sprintf("file:test-dispatch-%d.db?mode=memory&cache=shared", k), sqlitex.PoolOptions{Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenMemory | sqlite.OpenSharedCache | sqlite.OpenURI})
	if err != nil {
		t.Fatalf("couldn't open pool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	s, err := sqlstore.Open(ctx, pool)
	if err != nil {
		t.Fatalf("couldn't open store: %v", err)
	}
	var quit atomic.Bool
	robo := command.Robot{
		Log:   slog.Default(),
		Store: s,
		Start: time.Now(),
		BotID: testBotID,
		Quit:  func() { quit.Store(true) },
	}
	return &robo, &quit
}

// sendTo returns a channel whose messages append to sent.
func sendTo(sent *[]string) *channel.Channel {
	return &channel.Channel{
		Name: "#bocchi",
		Message: func(ctx context.Context, msg message.Sent) {
			*sent = append(*sent, msg.Text)
		},
	}
}

// dispatch parses text as a message in #bocchi and dispatches it.
func dispatch(ctx context.Context, t *testing.T, robo *command.Robot, ch *channel.Channel, sender message.User, owner bool, text string) {
	t.Helper()
	m := &message.Received{
		ID:      "1",
		To:      "#bocchi",
		Sender:  sender,
		Text:    text,
		IsOwner: owner,
	}
	cmd, ok := command.Parse(m)
	if !ok {
		t.Fatalf("%q didn't parse as a command", text)
	}
	command.Dispatch(ctx, robo, &command.Invocation{Channel: ch, Message: m, Cmd: cmd})
}

func TestSetInvoke(t *testing.T) {
	ctx := context.Background()
	robo, _ := testRobot(ctx, t)
	var sent []string
	ch := sendTo(&sent)
	owner := message.User{ID: 1, Name: "Bocchi"}
	dispatch(ctx, t, robo, ch, owner, true, "!set hi hello ${name}")
	dispatch(ctx, t, robo, ch, message.User{ID: 2, Name: "Bob"}, false, "!hi")
	want := []string{
		"'hi' has been set to: hello ${name}",
		"hello Bob",
	}
	if len(sent) != len(want) {
		t.Fatalf("wrong number of replies: want %d, got %d (%q)", len(want), len(sent), sent)
	}
	for i, w := range want {
		if sent[i] != w {
			t.Errorf("wrong reply %d: want %q, got %q", i, w, sent[i])
		}
	}
}

func TestSetUsage(t *testing.T) {
	ctx := context.Background()
	robo, _ := testRobot(ctx, t)
	var sent []string
	ch := sendTo(&sent)
	dispatch(ctx, t, robo, ch, message.User{ID: 1, Name: "Bocchi"}, true, "!set hi")
	// A name with no body gets the usage text and no storage action.
	if want := "usage: !set <command> <template>"; len(sent) != 1 || sent[0] != want {
		t.Errorf("wrong replies: want [%q], got %q", want, sent)
	}
	if _, err := robo.Store.GetTemplate(ctx, "bocchi", "hi"); err == nil {
		t.Error("usage error still stored a template")
	}
	sent = sent[:0]
	// With no argument at all, set doesn't match the elevated shape and is an
	// ordinary template invocation.
	dispatch(ctx, t, robo, ch, message.User{ID: 1, Name: "Bocchi"}, true, "!set")
	if want := "'set' isn't a command here"; len(sent) != 1 || sent[0] != want {
		t.Errorf("wrong replies: want [%q], got %q", want, sent)
	}
}

func TestUnset(t *testing.T) {
	ctx := context.Background()
	robo, _ := testRobot(ctx, t)
	var sent []string
	ch := sendTo(&sent)
	owner := message.User{ID: 1, Name: "Bocchi"}
	dispatch(ctx, t, robo, ch, owner, true, "!unset hi")
	if want := "Was not able to unset 'hi'"; len(sent) != 1 || sent[0] != want {
		t.Fatalf("wrong replies for missing template: want [%q], got %q", want, sent)
	}
	sent = sent[:0]
	dispatch(ctx, t, robo, ch, owner, true, "!set hi hello")
	sent = sent[:0]
	dispatch(ctx, t, robo, ch, owner, true, "!unset hi")
	// The elevated tier short-circuits; there must be exactly one reply.
	if want := "'hi' has been unset."; len(sent) != 1 || sent[0] != want {
		t.Errorf("wrong replies: want [%q], got %q", want, sent)
	}
	sent = sent[:0]
	dispatch(ctx, t, robo, ch, message.User{ID: 2, Name: "Bob"}, false, "!hi")
	if want := "'hi' isn't a command here"; len(sent) != 1 || sent[0] != want {
		t.Errorf("wrong replies after unset: want [%q], got %q", want, sent)
	}
}

func TestQuitPrivilege(t *testing.T) {
	ctx := context.Background()
	robo, quit := testRobot(ctx, t)
	var sent []string
	ch := sendTo(&sent)
	dispatch(ctx, t, robo, ch, message.User{ID: 2, Name: "Bob"}, false, "!quit")
	if quit.Load() {
		t.Error("non-owner quit requested shutdown")
	}
	// The non-owner's quit is an ordinary template invocation.
	if want := "'quit' isn't a command here"; len(sent) != 1 || sent[0] != want {
		t.Errorf("wrong replies: want [%q], got %q", want, sent)
	}
	sent = sent[:0]
	dispatch(ctx, t, robo, ch, message.User{ID: 1, Name: "Bocchi"}, true, "!quit")
	if !quit.Load() {
		t.Error("owner quit didn't request shutdown")
	}
	if len(sent) != 0 {
		t.Errorf("quit sent replies: %q", sent)
	}
}

func TestGive(t *testing.T) {
	ctx := context.Background()
	robo, _ := testRobot(ctx, t)
	var sent []string
	ch := sendTo(&sent)
	owner := message.User{ID: 1, Name: "Bocchi"}
	// With no points template, give succeeds but the announcement is
	// skipped.
	dispatch(ctx, t, robo, ch, owner, true, "!give alice 50")
	if len(sent) != 0 {
		t.Errorf("give without points template sent replies: %q", sent)
	}
	got, err := robo.Store.GetPoints(ctx, "bocchi", testBotID)
	if err != nil {
		t.Errorf("couldn't fetch points: %v", err)
	}
	if got != 50 {
		t.Errorf("wrong balance: want 50, got %d", got)
	}
	dispatch(ctx, t, robo, ch, owner, true, "!set points ${name} now has ${points} points")
	sent = sent[:0]
	dispatch(ctx, t, robo, ch, owner, true, "!give alice 25")
	if want := "alice now has 75 points"; len(sent) != 1 || sent[0] != want {
		t.Errorf("wrong replies: want [%q], got %q", want, sent)
	}
}

func TestGiveBadInput(t *testing.T) {
	ctx := context.Background()
	robo, _ := testRobot(ctx, t)
	var sent []string
	ch := sendTo(&sent)
	owner := message.User{ID: 1, Name: "Bocchi"}
	dispatch(ctx, t, robo, ch, owner, true, "!give alice")
	if want := "usage: !give <user> <number>"; len(sent) != 1 || sent[0] != want {
		t.Errorf("wrong replies for missing amount: want [%q], got %q", want, sent)
	}
	sent = sent[:0]
	dispatch(ctx, t, robo, ch, owner, true, "!give alice lots")
	if want := "Could not give 'lots' to 'alice'"; len(sent) != 1 || sent[0] != want {
		t.Errorf("wrong replies for bad amount: want [%q], got %q", want, sent)
	}
	if _, err := robo.Store.GetPoints(ctx, "bocchi", testBotID); err == nil {
		t.Error("bad amount still mutated the ledger")
	}
}

func TestCommands(t *testing.T) {
	ctx := context.Background()
	robo, _ := testRobot(ctx, t)
	var sent []string
	ch := sendTo(&sent)
	user := message.User{ID: 2, Name: "Bob"}
	dispatch(ctx, t, robo, ch, user, false, "!commands")
	if want := "Currently available commands:"; len(sent) != 1 || sent[0] != want {
		t.Errorf("wrong replies for empty list: want [%q], got %q", want, sent)
	}
	owner := message.User{ID: 1, Name: "Bocchi"}
	dispatch(ctx, t, robo, ch, owner, true, "!set uptime up for ${uptime}")
	dispatch(ctx, t, robo, ch, owner, true, "!set hello hi")
	sent = sent[:0]
	dispatch(ctx, t, robo, ch, user, false, "!commands")
	if want := "Currently available commands: !hello, !uptime"; len(sent) != 1 || sent[0] != want {
		t.Errorf("wrong replies: want [%q], got %q", want, sent)
	}
}

func TestInvokeUptime(t *testing.T) {
	ctx := context.Background()
	robo, _ := testRobot(ctx, t)
	// Fix the session start so the rendered text is predictable. The extra
	// half second keeps the elapsed time away from a whole-second boundary.
	robo.Start = time.Now().Add(-90061*time.Second - 500*time.Millisecond)
	var sent []string
	ch := sendTo(&sent)
	owner := message.User{ID: 1, Name: "Bocchi"}
	dispatch(ctx, t, robo, ch, owner, true, "!set uptime live for ${uptime}")
	dispatch(ctx, t, robo, ch, owner, true, "!set botuptime live for ${botuptime}")
	sent = sent[:0]
	user := message.User{ID: 2, Name: "Bob"}
	dispatch(ctx, t, robo, ch, user, false, "!uptime")
	dispatch(ctx, t, robo, ch, user, false, "!botuptime")
	// Both placeholders bind the same session uptime sentence.
	want := "live for 1 day, 1 hour, 1 minute, and 1 second"
	if len(sent) != 2 {
		t.Fatalf("wrong number of replies: want 2, got %d (%q)", len(sent), sent)
	}
	for i, got := range sent {
		if got != want {
			t.Errorf("wrong reply %d: want %q, got %q", i, want, got)
		}
	}
}

func TestNormalBadInput(t *testing.T) {
	ctx := context.Background()
	robo, _ := testRobot(ctx, t)
	var sent []string
	ch := sendTo(&sent)
	dispatch(ctx, t, robo, ch, message.User{ID: 2, Name: "Bob"}, false, "!hello everyone")
	if len(sent) != 0 {
		t.Errorf("bad input sent replies: %q", sent)
	}
}

func TestInvokeVariables(t *testing.T) {
	ctx := context.Background()
	robo, _ := testRobot(ctx, t)
	var sent []string
	ch := sendTo(&sent)
	owner := message.User{ID: 1, Name: "Bocchi"}
	dispatch(ctx, t, robo, ch, owner, true, "!set points ${name} has ${points} points")
	sent = sent[:0]
	// No ledger row reads as zero.
	dispatch(ctx, t, robo, ch, message.User{ID: 2, Name: "Bob"}, false, "!points")
	if want := "Bob has 0 points"; len(sent) != 1 || sent[0] != want {
		t.Errorf("wrong replies: want [%q], got %q", want, sent)
	}
	// Unrecognized placeholders fail the render with no reply.
	dispatch(ctx, t, robo, ch, owner, true, "!set broken hello ${world}")
	sent = sent[:0]
	dispatch(ctx, t, robo, ch, message.User{ID: 2, Name: "Bob"}, false, "!broken")
	if len(sent) != 0 {
		t.Errorf("unbound placeholder sent replies: %q", sent)
	}
	// A template with no placeholders is returned verbatim.
	dispatch(ctx, t, robo, ch, owner, true, "!set plain have a nice day")
	sent = sent[:0]
	dispatch(ctx, t, robo, ch, message.User{Name: "anon"}, false, "!plain")
	if want := "have a nice day"; len(sent) != 1 || sent[0] != want {
		t.Errorf("wrong replies: want [%q], got %q", want, sent)
	}
}
