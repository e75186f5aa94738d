package moderation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vovakirdan/linechat-server/internal/core"
)

func TestMuteRejectsBadDurationWithoutMutation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.connect(t, "alice")

	for _, bad := range []string{"", "10", "0s", "-5m", "abc", "5x"} {
		if _, err := env.svc.Mute(ctx, a.id, bad, "r"); !errors.Is(err, core.ErrBadRequest) {
			t.Fatalf("duration %q: expected bad request, got %v", bad, err)
		}
	}

	rec, err := env.book.Get(ctx, a.id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.State(env.clock.Now()) != core.StateClear {
		t.Fatalf("record changed after rejected mute: %v", rec.State(env.clock.Now()))
	}
	if env.sched.Watching(a.id) {
		t.Fatalf("rejected mute must not be watched")
	}
}

func TestMuteExpiresOnTick(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.connect(t, "alice")
	b := env.connect(t, "bob")

	if _, err := env.svc.Mute(ctx, b.id, "2s", "test"); err != nil {
		t.Fatalf("mute: %v", err)
	}
	a.expect(t, "bob has been muted for test")
	b.expect(t, "client.settitle:Muted")
	if !env.sched.Watching(b.id) {
		t.Fatalf("muted identity not watched")
	}

	env.sched.Tick(ctx, env.clock.Advance(time.Second))
	rec, _ := env.book.Get(ctx, b.id)
	if !rec.IsMuted(env.clock.Now()) {
		t.Fatalf("mute ended early")
	}
	b.expect(t, "Muted (1s remaining)")

	env.sched.Tick(ctx, env.clock.Advance(1500*time.Millisecond))
	rec, _ = env.book.Get(ctx, b.id)
	if rec.State(env.clock.Now()) != core.StateClear || !rec.MutedUntil.IsZero() {
		t.Fatalf("expected clear after expiry, got %+v", rec)
	}
	b.expect(t, "client.settitle:testsrv")
	b.expect(t, "You've been unmuted.")
	if env.sched.Watching(b.id) {
		t.Fatalf("expired mute still watched")
	}
	if !env.events.Has(core.EventUnmuted, b.id) {
		t.Fatalf("unmuted event not emitted")
	}

	stored, err := env.store.LoadRecord(ctx, b.id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !stored.MutedUntil.IsZero() {
		t.Fatalf("expiry not persisted: %v", stored.MutedUntil)
	}
}

func TestMuteSurvivesRestart(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	dir := t.TempDir()
	ctx := context.Background()

	first := newTestEnvAt(t, dir, clock)
	a := first.connect(t, "alice")
	if _, err := first.svc.Mute(ctx, a.id, "1h", "flood"); err != nil {
		t.Fatalf("mute: %v", err)
	}
	first.svc.Leave(ctx, a.sess, "exit")

	clock.Advance(10 * time.Minute)
	second := newTestEnvAt(t, dir, clock)
	if err := second.sched.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !second.sched.Watching(a.id) {
		t.Fatalf("restored mute not watched")
	}

	rec, err := second.book.Open(ctx, a.id, "alice")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := rec.MuteRemaining(clock.Now()); got != 50*time.Minute {
		t.Fatalf("reconnect changed remaining mute: %v", got)
	}
	if rec.MuteReason != "flood" {
		t.Fatalf("mute reason lost: %q", rec.MuteReason)
	}
}

func TestUnmute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.connect(t, "alice")

	if _, err := env.svc.Unmute(ctx, a.id); !errors.Is(err, core.ErrBadRequest) {
		t.Fatalf("unmute of clear record: expected bad request, got %v", err)
	}
	if _, err := env.svc.Mute(ctx, a.id, "5m", ""); err != nil {
		t.Fatalf("mute: %v", err)
	}
	a.expect(t, "No reason supplied.")

	rec, err := env.svc.Unmute(ctx, a.id)
	if err != nil {
		t.Fatalf("unmute: %v", err)
	}
	if rec.IsMuted(env.clock.Now()) {
		t.Fatalf("still muted after unmute")
	}
	a.expect(t, "[testsrv][PM] You've been unmuted.")
}

func TestBanDisconnectsAndBlocks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.connect(t, "alice")
	b := env.connect(t, "bob")

	if _, err := env.svc.Ban(ctx, b.id, "spam"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	b.expect(t, "You've been banned. Reason - spam")
	b.expect(t, "client.close:Now")
	b.expectClosed(t)
	a.expect(t, "bob has been banned. Reason - spam")

	if env.registry.Has(b.id) {
		t.Fatalf("banned session still registered")
	}
	stored, err := env.store.LoadRecord(ctx, b.id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !stored.Banned || stored.BanReason != "spam" {
		t.Fatalf("ban not persisted: %+v", stored)
	}
	if !env.events.Has(core.EventBanned, b.id) {
		t.Fatalf("banned event not emitted")
	}

	if _, err := env.svc.Ban(ctx, uuid.New(), "who"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("ban of unknown identity: expected not found, got %v", err)
	}
}

func TestUnbanLeavesMute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.connect(t, "alice")

	if _, err := env.svc.Mute(ctx, a.id, "1d", "x"); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if _, err := env.svc.Ban(ctx, a.id, ""); err != nil {
		t.Fatalf("ban: %v", err)
	}
	rec, err := env.svc.Unban(ctx, a.id)
	if err != nil {
		t.Fatalf("unban: %v", err)
	}
	if rec.Banned || rec.BanReason != "" {
		t.Fatalf("ban fields not cleared: %+v", rec)
	}
	if !rec.IsMuted(env.clock.Now()) {
		t.Fatalf("unban must not clear the mute")
	}
	if _, err := env.svc.Unban(ctx, a.id); !errors.Is(err, core.ErrBadRequest) {
		t.Fatalf("second unban: expected bad request, got %v", err)
	}
}

func TestGrantAndRevoke(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.connect(t, "alice")

	if _, err := env.svc.Grant(ctx, "op", a.id, "fly"); !errors.Is(err, core.ErrBadRequest) {
		t.Fatalf("unknown permission: expected bad request, got %v", err)
	}

	rec, err := env.svc.Grant(ctx, "op", a.id, core.PermBan)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !rec.Permissions.Has(core.PermBan) {
		t.Fatalf("grant did not apply")
	}
	a.expect(t, "op granted you the permission 'ban'")

	rec, err = env.svc.Revoke(ctx, "op", a.id, core.PermBan)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if rec.Permissions.Has(core.PermBan) {
		t.Fatalf("revoke did not apply")
	}
	if _, present := rec.Permissions[core.PermBan]; !present {
		t.Fatalf("revoked permission should stay present as false")
	}

	stored, _ := env.store.LoadRecord(ctx, a.id)
	if stored.Permissions.Has(core.PermBan) {
		t.Fatalf("revoke not persisted")
	}
}

func TestPrivateMessageAndBroadcast(t *testing.T) {
	env := newTestEnv(t)
	a := env.connect(t, "alice")
	b := env.connect(t, "bob")

	if err := env.svc.PrivateMessage("alice", "BOB", "psst"); err != nil {
		t.Fatalf("pm by name: %v", err)
	}
	b.expect(t, "[alice][PM] psst")

	if err := env.svc.PrivateMessage("", "nobody", "x"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("pm unknown: expected not found, got %v", err)
	}

	n, err := env.svc.Broadcast("welcome to {motd}")
	if err == nil {
		t.Fatalf("unknown variable should fail, delivered %d", n)
	}

	n, err = env.svc.Broadcast("hello all")
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	a.expect(t, "[Server] hello all")
	b.expect(t, "[Server] hello all")
}

func TestKickAllClosesAdmission(t *testing.T) {
	env := newTestEnv(t)
	a := env.connect(t, "alice")
	b := env.connect(t, "bob")

	if n := env.svc.KickAll(); n != 2 {
		t.Fatalf("expected 2 kicked, got %d", n)
	}
	a.expect(t, "Server is shutting down.")
	b.expectClosed(t)
	if env.registry.Len() != 0 {
		t.Fatalf("registry not drained")
	}
	if env.svc.Accepting() {
		t.Fatalf("kickall must close admission")
	}
	if !env.events.Has(core.EventKicked, a.id) {
		t.Fatalf("kicked event missing")
	}
}

func TestClientsListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.connect(t, "alice")
	b := env.connect(t, "bob")
	if _, err := env.svc.Mute(ctx, b.id, "90s", ""); err != nil {
		t.Fatalf("mute: %v", err)
	}

	infos := env.svc.Clients(ctx)
	if len(infos) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(infos))
	}
	var found bool
	for _, info := range infos {
		if info.Identity == b.id {
			found = true
			if !info.Muted || info.MuteRemaining != "1m30s" {
				t.Fatalf("unexpected mute info: %+v", info)
			}
			if !strings.Contains(info.Permissions, "say") {
				t.Fatalf("permissions missing: %q", info.Permissions)
			}
		}
	}
	if !found {
		t.Fatalf("bob not listed")
	}
}
