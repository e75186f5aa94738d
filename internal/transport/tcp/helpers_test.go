package tcp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/linechat-server/internal/command"
	"github.com/vovakirdan/linechat-server/internal/console"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/kv"
	"github.com/vovakirdan/linechat-server/internal/moderation"
	"github.com/vovakirdan/linechat-server/internal/notify"
	"github.com/vovakirdan/linechat-server/internal/store"
	"github.com/vovakirdan/linechat-server/internal/store/filestore"
)

type testEnv struct {
	addr     string
	srv      *Server
	svc      *moderation.Service
	registry *core.Registry
	console  *console.Console
	events   *notify.Recorder
	stats    *core.Stats
}

type envOptions struct {
	capacity     int
	maxFrameSize int
	chatRate     float64
}

func newTestEnv(t *testing.T, eo envOptions) *testEnv {
	t.Helper()

	if eo.capacity == 0 {
		eo.capacity = 10
	}
	st, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := zerolog.Nop()
	serverKV, err := kv.Open(ctx, st, store.ScopeServer, &logger)
	if err != nil {
		t.Fatalf("server kv: %v", err)
	}
	clientKV, err := kv.Open(ctx, st, store.ScopeClient, &logger)
	if err != nil {
		t.Fatalf("client kv: %v", err)
	}
	serverKV.Insert(ctx, kv.KeyMOTD, "Welcome to {name}")
	serverKV.Insert(ctx, "name", "testsrv")

	registry := core.NewRegistry(eo.capacity)
	gate := core.NewGate(true)
	events := &notify.Recorder{}
	stats := &core.Stats{}
	svc := moderation.NewService(moderation.Options{
		Book:       moderation.NewBook(st, &logger),
		Registry:   registry,
		Gate:       gate,
		Notifier:   events,
		ServerKV:   serverKV,
		ServerName: "testsrv",
		Logger:     &logger,
	})
	sched := moderation.NewScheduler(svc, 100*time.Millisecond, &logger)

	disp := command.NewDispatcher(command.Options{
		Service:  svc,
		ServerKV: serverKV,
		ClientKV: clientKV,
		Stats:    stats,
		Logger:   &logger,
	})
	if err := command.RegisterBuiltins(disp); err != nil {
		t.Fatalf("builtins: %v", err)
	}

	srv := NewServer(Options{
		Service:              svc,
		Dispatcher:           disp,
		Gate:                 gate,
		ServerKV:             serverKV,
		Stats:                stats,
		Logger:               &logger,
		HandshakeTimeout:     time.Second,
		PausedNoticeInterval: 100 * time.Millisecond,
		MaxFrameSize:         eo.maxFrameSize,
		ChatRate:             eo.chatRate,
		ChatBurst:            2,
	})
	cons := console.New(console.Options{
		Service:  svc,
		ServerKV: serverKV,
		Addr:     srv.Addr,
		Logger:   &logger,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	served := make(chan struct{})
	go func() {
		defer close(served)
		srv.Serve(ctx, ln)
	}()
	go sched.Run(ctx)

	t.Cleanup(func() {
		cancel()
		<-served
		srv.Wait(2 * time.Second)
		st.Close()
	})

	return &testEnv{
		addr:     ln.Addr().String(),
		srv:      srv,
		svc:      svc,
		registry: registry,
		console:  cons,
		events:   events,
		stats:    stats,
	}
}

type testConn struct {
	id    core.Identity
	conn  net.Conn
	lines chan string
}

func (e *testEnv) dial(t *testing.T, id core.Identity) *testConn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", e.addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			lines <- strings.TrimRight(line, "\r\n")
		}
	}()
	t.Cleanup(func() { conn.Close() })
	return &testConn{id: id, conn: conn, lines: lines}
}

// connect dials and completes the handshake as name.
func (e *testEnv) connect(t *testing.T, name string) *testConn {
	t.Helper()
	return e.connectAs(t, uuid.New(), name)
}

func (e *testEnv) connectAs(t *testing.T, id core.Identity, name string) *testConn {
	t.Helper()
	c := e.dial(t, id)
	c.writeLine(t, fmt.Sprintf("%s:%s", id, name))
	c.expect(t, "client.settitle:")
	return c
}

func (c *testConn) writeLine(t *testing.T, line string) {
	t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func (c *testConn) send(t *testing.T, payload string) {
	t.Helper()
	c.writeLine(t, c.id.String()+":"+payload)
}

func (c *testConn) expect(t *testing.T, want string) string {
	t.Helper()
	timeout := time.After(3 * time.Second)
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

func (c *testConn) expectNothing(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case line, ok := <-c.lines:
		if ok {
			t.Fatalf("unexpected line %q", line)
		}
	case <-time.After(within):
	}
}

func (c *testConn) expectClosed(t *testing.T) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-c.lines:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatalf("connection was not closed")
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
