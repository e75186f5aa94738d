package tcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/linechat-server/internal/command"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/kv"
	"github.com/vovakirdan/linechat-server/internal/lang"
	"github.com/vovakirdan/linechat-server/internal/moderation"
)

// Options configures a Server.
type Options struct {
	Service    *moderation.Service
	Dispatcher *command.Dispatcher
	Gate       *core.Gate
	ServerKV   *kv.Table
	Stats      *core.Stats
	Logger     *zerolog.Logger

	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
	PausedNoticeInterval time.Duration
	MaxFrameSize         int
	MaxNameLength        int
	QueueSize            int
	ChatRate             float64
	ChatBurst            int
}

// Server runs the accept loop and one worker per admitted connection.
type Server struct {
	svc      *moderation.Service
	disp     *command.Dispatcher
	gate     *core.Gate
	serverKV *kv.Table
	stats    *core.Stats
	log      *zerolog.Logger
	opts     Options

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// NewServer creates a server. Zero options fall back to defaults.
func NewServer(opts Options) *Server {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PausedNoticeInterval <= 0 {
		opts.PausedNoticeInterval = 30 * time.Second
	}
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = DefaultMaxFrameSize
	}
	if opts.MaxNameLength <= 0 {
		opts.MaxNameLength = 15
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	stats := opts.Stats
	if stats == nil {
		stats = &core.Stats{}
	}
	gate := opts.Gate
	if gate == nil {
		gate = core.NewGate(true)
	}
	return &Server{
		svc:      opts.Service,
		disp:     opts.Dispatcher,
		gate:     gate,
		serverKV: opts.ServerKV,
		stats:    stats,
		log:      logger,
		opts:     opts,
	}
}

// Addr returns the bound listener address, or "" before Serve.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Serve accepts connections on ln until ctx is cancelled. While admission is
// closed it parks on the gate and periodically tells connected clients so.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
			s.gate.Close()
		case <-stop:
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("accepting connections")

	var backoff time.Duration
	for {
		if ctx.Err() != nil {
			return nil
		}

		if !s.gate.IsOpen() {
			if s.gate.Closed() {
				return nil
			}
			s.svc.Announce(s.svc.Strings().Get(lang.ServerPaused))
			s.gate.WaitOpen(s.opts.PausedNoticeInterval)
			continue
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("accept error")
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0

		// Admission may have closed while blocked in Accept.
		if !s.gate.IsOpen() {
			s.writeRaw(conn, s.svc.Strings().Get(lang.ServerPaused))
			conn.Close()
			continue
		}

		sess, lr, ok := s.admit(ctx, conn)
		if !ok {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.work(ctx, sess, lr)
		}()
	}
}

// ServeConn runs the handshake and worker for one connection inline.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	if !s.gate.IsOpen() {
		s.writeRaw(conn, s.svc.Strings().Get(lang.ServerPaused))
		conn.Close()
		return
	}
	sess, lr, ok := s.admit(ctx, conn)
	if !ok {
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	s.work(ctx, sess, lr)
}

// Wait blocks until every worker has finished or timeout elapses.
func (s *Server) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}
