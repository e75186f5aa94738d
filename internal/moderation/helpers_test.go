package moderation

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/kv"
	"github.com/vovakirdan/linechat-server/internal/notify"
	"github.com/vovakirdan/linechat-server/internal/store"
	"github.com/vovakirdan/linechat-server/internal/store/filestore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type testEnv struct {
	dir      string
	store    store.Store
	book     *Book
	registry *core.Registry
	gate     *core.Gate
	events   *notify.Recorder
	clock    *fakeClock
	svc      *Service
	sched    *Scheduler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvAt(t, t.TempDir(), &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)})
}

func newTestEnvAt(t *testing.T, dir string, clock *fakeClock) *testEnv {
	t.Helper()

	st, err := filestore.New(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()
	serverKV, err := kv.Open(context.Background(), st, store.ScopeServer, &logger)
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}

	env := &testEnv{
		dir:      dir,
		store:    st,
		book:     NewBook(st, &logger),
		registry: core.NewRegistry(10),
		gate:     core.NewGate(true),
		events:   &notify.Recorder{},
		clock:    clock,
	}
	env.svc = NewService(Options{
		Book:       env.book,
		Registry:   env.registry,
		Gate:       env.gate,
		Notifier:   env.events,
		ServerKV:   serverKV,
		ServerName: "testsrv",
		Logger:     &logger,
		Now:        clock.Now,
	})
	env.sched = NewScheduler(env.svc, time.Second, &logger)
	return env
}

type testClient struct {
	id    core.Identity
	sess  *core.Session
	lines chan string
}

// connect opens a record and admits a pipe-backed session for it.
func (e *testEnv) connect(t *testing.T, name string) *testClient {
	t.Helper()
	return e.connectAs(t, uuid.New(), name)
}

func (e *testEnv) connectAs(t *testing.T, id core.Identity, name string) *testClient {
	t.Helper()

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

// expect waits for a line containing want, skipping others.
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

// expectClosed waits for the server side to close the connection.
func (c *testClient) expectClosed(t *testing.T) {
	t.Helper()
	timeout := time.After(2 * time.Second)
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
