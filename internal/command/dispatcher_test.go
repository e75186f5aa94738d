package command

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/vovakirdan/linechat-server/internal/core"
)

func TestParseFrame(t *testing.T) {
	id := uuid.New()

	frame, err := ParseFrame(id.String() + ":hello: world")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if frame.Identity != id || frame.Payload != "hello: world" {
		t.Fatalf("unexpected frame: %+v", frame)
	}

	for _, bad := range []string{"", "no-colon", "not-a-uuid:hi", uuid.Nil.String() + ":hi"} {
		if _, err := ParseFrame(bad); !errors.Is(err, core.ErrProtocol) {
			t.Fatalf("%q: expected protocol error, got %v", bad, err)
		}
	}

	exit, _ := ParseFrame(id.String() + ":exit")
	if !exit.IsExit() {
		t.Fatalf("exit payload not detected")
	}
}

func TestFrameSplit(t *testing.T) {
	known := func(s string) bool { return s == "?" || s == "kickall" }
	tests := []struct {
		payload string
		name    string
		args    string
		chat    bool
	}{
		{payload: "ban:1234 spam", name: "ban", args: "1234 spam"},
		{payload: "?", name: "?"},
		{payload: "kickall", name: "kickall"},
		{payload: "hello there", args: "hello there", chat: true},
		{payload: "note to self: hi", args: "note to self: hi", chat: true},
		{payload: "dance:", name: "dance"},
	}
	for _, tt := range tests {
		name, args, chat := Frame{Payload: tt.payload}.split(known)
		if name != tt.name || args != tt.args || chat != tt.chat {
			t.Fatalf("%q: got (%q, %q, %v), want (%q, %q, %v)", tt.payload, name, args, chat, tt.name, tt.args, tt.chat)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	noop := func(*Context) error { return nil }

	if err := env.disp.Register(Command{Name: "fly", Permissions: []string{"wings"}, Run: noop}); err == nil {
		t.Fatalf("unknown permission must be rejected")
	}
	if err := env.disp.Register(Command{Name: CmdSay, Run: noop}); err == nil {
		t.Fatalf("duplicate name must be rejected")
	}
	if err := env.disp.Register(Command{Name: "a:b", Run: noop}); err == nil {
		t.Fatalf("name with colon must be rejected")
	}
}

func TestUnknownSender(t *testing.T) {
	env := newTestEnv(t)
	a := env.connect(t, "alice")
	b := env.connect(t, "bob")

	frame, _ := ParseFrame(b.id.String() + ":hi")
	if err := env.disp.Handle(context.Background(), a.sess, frame); !errors.Is(err, ErrUnknownSender) {
		t.Fatalf("expected unknown sender, got %v", err)
	}
	b.expectNothing(t)
}

func TestChatFanOutSkipsSender(t *testing.T) {
	env := newTestEnv(t)
	a := env.connect(t, "alice")
	b := env.connect(t, "bob")
	c := env.connect(t, "carol")

	env.send(t, a, "hi")
	b.expect(t, "alice> hi")
	c.expect(t, "alice> hi")
	a.expectNothing(t)

	if got := env.stats.ChatsDelivered.Load(); got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}
}

func TestMutedChatStaysWithSender(t *testing.T) {
	env := newTestEnv(t)
	a := env.connect(t, "alice")
	b := env.connect(t, "bob")

	if _, err := env.svc.Mute(context.Background(), a.id, "1h", "quiet"); err != nil {
		t.Fatalf("mute: %v", err)
	}
	b.expect(t, "alice has been muted")

	env.send(t, a, "can anyone hear me")
	a.expect(t, "cannot use 'say' while muted.")
	b.expectNothing(t)
}

func TestNotRecognized(t *testing.T) {
	env := newTestEnv(t)
	a := env.connect(t, "alice")

	env.send(t, a, "dance:now")
	a.expect(t, "dance is not a recognized command.")
}

func TestPermissionGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.connect(t, "alice")
	b := env.connect(t, "bob")

	env.send(t, a, "ban:"+b.id.String()+" spam")
	a.expect(t, "insufficient permissions to execute ban")
	if !env.registry.Has(b.id) {
		t.Fatalf("ban ran without permission")
	}

	if _, err := env.svc.Grant(ctx, "op", a.id, core.PermBan); err != nil {
		t.Fatalf("grant: %v", err)
	}
	env.send(t, a, "ban:bob spam")
	a.expect(t, "banned bob.")
	if env.registry.Has(b.id) {
		t.Fatalf("banned session still connected")
	}

	if _, err := env.svc.Revoke(ctx, "op", a.id, core.PermBan); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	env.send(t, a, "unban:"+b.id.String())
	a.expect(t, "insufficient permissions to execute unban")
}

func TestUsageAndBadArguments(t *testing.T) {
	env := newTestEnv(t)
	a := env.connect(t, "alice")
	b := env.connect(t, "bob")
	if _, err := env.svc.Grant(context.Background(), "op", a.id, core.PermMute); err != nil {
		t.Fatalf("grant: %v", err)
	}

	env.send(t, a, "mute:/")
	a.expect(t, "usage: :mute <user> <duration> [reason]")

	env.send(t, a, "mute:bob forever")
	a.expect(t, "is not a valid duration")

	env.send(t, a, "mute:bob 10m loud")
	a.expect(t, "muted bob for 10m0s.")
	b.expect(t, "You've been muted for 10m0s. Reason - loud")
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	env := newTestEnv(t)
	a := env.connect(t, "alice")
	if err := env.disp.Register(Command{Name: "boom", Run: func(*Context) error { panic("kaboom") }}); err != nil {
		t.Fatalf("register: %v", err)
	}

	env.send(t, a, "boom:")
	a.expect(t, "something went wrong while executing boom.")

	env.send(t, a, "?")
	a.expect(t, "available commands:")
}

func TestSaveAndFetch(t *testing.T) {
	env := newTestEnv(t)
	a := env.connect(t, "alice")
	if _, err := env.svc.Grant(context.Background(), "op", a.id, core.PermStore); err != nil {
		t.Fatalf("grant: %v", err)
	}

	env.send(t, a, "save:color deep blue")
	a.expect(t, "saved successfully")
	env.send(t, a, "save:color red")
	a.expect(t, "'color' already has a value.")
	env.send(t, a, "fetch:color")
	a.expect(t, "color: deep blue")
	env.send(t, a, "fetch:size")
	a.expect(t, "cannot fetch 'size'")
}

func TestServerValues(t *testing.T) {
	env := newTestEnv(t)
	a := env.connect(t, "alice")
	env.serverKV.Set(context.Background(), "motd", "be nice")

	env.send(t, a, "motd")
	a.expect(t, "motd: be nice")
	env.send(t, a, "owner")
	a.expect(t, "owner: not set")
}
