package command

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/kv"
	"github.com/vovakirdan/linechat-server/internal/moderation"
	"github.com/vovakirdan/linechat-server/internal/store"
	"github.com/vovakirdan/linechat-server/internal/store/filestore"
)

type testEnv struct {
	svc      *moderation.Service
	registry *core.Registry
	disp     *Dispatcher
	serverKV *kv.Table
	stats    *core.Stats
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	logger := zerolog.Nop()
	serverKV, err := kv.Open(ctx, st, store.ScopeServer, &logger)
	if err != nil {
		t.Fatalf("server kv: %v", err)
	}
	clientKV, err := kv.Open(ctx, st, store.ScopeClient, &logger)
	if err != nil {
		t.Fatalf("client kv: %v", err)
	}

	registry := core.NewRegistry(10)
	svc := moderation.NewService(moderation.Options{
		Book:       moderation.NewBook(st, &logger),
		Registry:   registry,
		Gate:       core.NewGate(true),
		ServerKV:   serverKV,
		ServerName: "testsrv",
		Logger:     &logger,
	})
	stats := &core.Stats{}
	disp := NewDispatcher(Options{
		Service:  svc,
		ServerKV: serverKV,
		ClientKV: clientKV,
		Stats:    stats,
		Logger:   &logger,
	})
	if err := RegisterBuiltins(disp); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	return &testEnv{svc: svc, registry: registry, disp: disp, serverKV: serverKV, stats: stats}
}

type testClient struct {
	id    core.Identity
	sess  *core.Session
	lines chan string
}

func (e *testEnv) connect(t *testing.T, name string) *testClient {
	t.Helper()

	id := uuid.New()
	server, client := net.Pipe()
	sess := core.NewSession(server, id, name, core.SessionOptions{QueueSize: 32})
	if _, err := e.svc.Join(context.Background(), sess); err != nil {
		t.Fatalf("join: %v", err)
	}

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		r := bufio.NewReader(client)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			lines <- strings.TrimRight(line, "\n")
		}
	}()
	t.Cleanup(func() {
		sess.Close()
		client.Close()
	})
	return &testClient{id: id, sess: sess, lines: lines}
}

// send dispatches payload as if the client had written "<id>:<payload>".
func (e *testEnv) send(t *testing.T, c *testClient, payload string) {
	t.Helper()
	frame, err := ParseFrame(c.id.String() + ":" + payload)
	if err != nil {
		t.Fatalf("parse frame: %v", err)
	}
	if err := e.disp.Handle(context.Background(), c.sess, frame); err != nil {
		t.Fatalf("handle %q: %v", payload, err)
	}
}

func (c *testClient) expect(t *testing.T, want string) string {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				t.Fatalf("connection closed before %q arrived", want)
			}
			if strings.Contains(line, want) {
				return line
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

// expectNothing fails if any line arrives within a short window.
func (c *testClient) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case line, ok := <-c.lines:
		if ok {
			t.Fatalf("unexpected line %q", line)
		}
	case <-time.After(100 * time.Millisecond):
	}
}
