package console

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/kv"
	"github.com/vovakirdan/linechat-server/internal/moderation"
	"github.com/vovakirdan/linechat-server/internal/store"
	"github.com/vovakirdan/linechat-server/internal/store/filestore"
)

type testEnv struct {
	console  *Console
	svc      *moderation.Service
	registry *core.Registry
	serverKV *kv.Table
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()
	serverKV, err := kv.Open(context.Background(), st, store.ScopeServer, &logger)
	if err != nil {
		t.Fatalf("kv: %v", err)
	}
	registry := core.NewRegistry(5)
	svc := moderation.NewService(moderation.Options{
		Book:       moderation.NewBook(st, &logger),
		Registry:   registry,
		Gate:       core.NewGate(true),
		ServerKV:   serverKV,
		ServerName: "testsrv",
		Logger:     &logger,
	})
	c := New(Options{
		Service:   svc,
		ServerKV:  serverKV,
		Addr:      func() string { return "127.0.0.1:27550" },
		Version:   "v0.0.0-test",
		Copyright: "Copyright (c) linechat authors",
		Logger:    &logger,
	})
	return &testEnv{console: c, svc: svc, registry: registry, serverKV: serverKV}
}

// join admits a session whose peer end is discarded.
func (e *testEnv) join(t *testing.T, name string) core.Identity {
	t.Helper()
	id := uuid.New()
	server, client := net.Pipe()
	go func() {
		buf := make([]byte, 1024)
		for {
			if _, err := client.Read(buf); err != nil {
				return
			}
		}
	}()
	sess := core.NewSession(server, id, name, core.SessionOptions{})
	if _, err := e.svc.Join(context.Background(), sess); err != nil {
		t.Fatalf("join: %v", err)
	}
	t.Cleanup(func() {
		sess.Close()
		client.Close()
	})
	return id
}

func (e *testEnv) run(t *testing.T, line string) string {
	t.Helper()
	var out bytes.Buffer
	if err := e.console.Execute(context.Background(), line, &out); err != nil {
		t.Fatalf("%q: %v", line, err)
	}
	return out.String()
}

func TestUnknownCommandAndHelpFlag(t *testing.T) {
	env := newTestEnv(t)

	var out bytes.Buffer
	if err := env.console.Execute(context.Background(), "server.fly", &out); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	got := env.run(t, "server.mute --help")
	if !strings.HasPrefix(got, "server.mute: mute a specific user") {
		t.Fatalf("unexpected help output: %q", got)
	}
	if env.run(t, "   ") != "" {
		t.Fatalf("blank line should be a no-op")
	}
}

func TestHelpListsEveryCommand(t *testing.T) {
	env := newTestEnv(t)
	got := env.run(t, "server.help")
	for _, name := range []string{
		"server.send", "server.clients", "server.mute", "server.unmute", "server.globalsay",
		"server.dmsay", "server.kickall", "server.accepting", "server.hostname", "server.ban",
		"server.unban", "server.capacity", "server.store", "server.grant", "server.revoke",
		"server.port", "visual.name", "info.owner", "info.email", "info.copyright", "info.motd",
	} {
		if !strings.Contains(got, name+":") {
			t.Fatalf("help output missing %s", name)
		}
	}
}

func TestModerationCommands(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.join(t, "bob")

	var out bytes.Buffer
	if err := env.console.Execute(ctx, "server.mute "+id.String()+" ten", &out); !errors.Is(err, core.ErrBadRequest) {
		t.Fatalf("bad duration: expected bad request, got %v", err)
	}

	env.run(t, "server.mute "+id.String()+" 2s test")
	rec, _ := env.svc.Book().Get(ctx, id)
	if !rec.IsMuted(env.svc.Now()) || rec.MuteReason != "test" {
		t.Fatalf("mute not applied: %+v", rec)
	}

	if got := env.run(t, "server.clients"); !strings.Contains(got, "bob("+id.String()+")") {
		t.Fatalf("clients listing missing bob: %q", got)
	}

	env.run(t, "server.unmute bob")
	rec, _ = env.svc.Book().Get(ctx, id)
	if rec.IsMuted(env.svc.Now()) {
		t.Fatalf("unmute not applied")
	}

	env.run(t, "server.ban "+id.String()+" being rude")
	if env.registry.Has(id) {
		t.Fatalf("ban did not disconnect")
	}
	rec, _ = env.svc.Book().Get(ctx, id)
	if !rec.Banned || rec.BanReason != "being rude" {
		t.Fatalf("ban not applied: %+v", rec)
	}

	env.run(t, "server.unban "+id.String())
	rec, _ = env.svc.Book().Get(ctx, id)
	if rec.Banned {
		t.Fatalf("unban not applied")
	}

	if err := env.console.Execute(ctx, "server.ban "+uuid.NewString(), &out); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("ban of unknown id: expected not found, got %v", err)
	}
}

func TestGrantRevoke(t *testing.T) {
	env := newTestEnv(t)
	id := env.join(t, "alice")

	if got := env.run(t, "server.grant "+id.String()+" store"); !strings.Contains(got, "say,store") {
		t.Fatalf("grant output: %q", got)
	}
	if got := env.run(t, "server.revoke alice store"); strings.Contains(got, "store") {
		t.Fatalf("revoke output: %q", got)
	}

	var out bytes.Buffer
	if err := env.console.Execute(context.Background(), "server.grant alice wings", &out); !errors.Is(err, core.ErrBadRequest) {
		t.Fatalf("unknown permission: expected bad request, got %v", err)
	}
}

func TestAdmissionAndCapacity(t *testing.T) {
	env := newTestEnv(t)
	env.join(t, "alice")

	if got := env.run(t, "server.accepting"); got != "server.accepting: true\n" {
		t.Fatalf("unexpected: %q", got)
	}
	env.run(t, "server.accepting false")
	if env.svc.Accepting() {
		t.Fatalf("accepting not turned off")
	}
	env.run(t, "server.accepting true")

	env.run(t, "server.capacity 42")
	if env.svc.Capacity() != 42 {
		t.Fatalf("capacity not applied")
	}

	if got := env.run(t, "server.kickall"); !strings.Contains(got, "kicked 1 clients") {
		t.Fatalf("kickall output: %q", got)
	}
	if env.svc.Accepting() || env.registry.Len() != 0 {
		t.Fatalf("kickall must drain and close admission")
	}
}

func TestStoreAndInfo(t *testing.T) {
	env := newTestEnv(t)

	env.run(t, "server.store -s greeting hello there")
	if got := env.run(t, "server.store -f greeting"); got != "greeting: hello there\n" {
		t.Fatalf("unexpected fetch: %q", got)
	}
	var out bytes.Buffer
	if err := env.console.Execute(context.Background(), "server.store -x greeting", &out); !errors.Is(err, core.ErrBadRequest) {
		t.Fatalf("unknown option: expected bad request, got %v", err)
	}

	env.run(t, "info.owner Jane Doe")
	if env.serverKV.Fetch(kv.KeyOwner) != "Jane Doe" {
		t.Fatalf("owner not stored")
	}
	env.run(t, "info.motd be kind")
	if got := env.run(t, "info.motd"); got != "motd: be kind\n" {
		t.Fatalf("unexpected motd: %q", got)
	}

	env.run(t, "visual.name lobby")
	if env.svc.ServerName() != "lobby" {
		t.Fatalf("server name not changed")
	}

	if got := env.run(t, "server.port"); !strings.Contains(got, "127.0.0.1:27550") {
		t.Fatalf("port output: %q", got)
	}
	env.run(t, "server.port 4000")
	if env.serverKV.Fetch(KeyPort) != "4000" {
		t.Fatalf("port not saved")
	}
	if got := env.run(t, "info.copyright"); !strings.Contains(got, "v0.0.0-test") {
		t.Fatalf("copyright output: %q", got)
	}
}

func TestRunPromptsAndReportsErrors(t *testing.T) {
	env := newTestEnv(t)
	in := strings.NewReader("server.capacity\nserver.fly\n")
	var out bytes.Buffer

	if err := env.console.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "testsrv> ") {
		t.Fatalf("prompt missing: %q", got)
	}
	if !strings.Contains(got, "server.capacity: 5") {
		t.Fatalf("command output missing: %q", got)
	}
	if !strings.Contains(got, "error: attempted to execute command that does not exist. (server.fly)") {
		t.Fatalf("error not reported: %q", got)
	}
}
