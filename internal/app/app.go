package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	stdhttp "net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat-server/internal/auth"
	"github.com/vovakirdan/linechat-server/internal/command"
	"github.com/vovakirdan/linechat-server/internal/config"
	"github.com/vovakirdan/linechat-server/internal/console"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/kv"
	"github.com/vovakirdan/linechat-server/internal/lang"
	"github.com/vovakirdan/linechat-server/internal/moderation"
	"github.com/vovakirdan/linechat-server/internal/notify"
	"github.com/vovakirdan/linechat-server/internal/store"
	"github.com/vovakirdan/linechat-server/internal/store/filestore"
	"github.com/vovakirdan/linechat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/linechat-server/internal/transport/http"
	"github.com/vovakirdan/linechat-server/internal/transport/tcp"
)

// Build metadata reported by info.copyright.
var (
	Version   = "dev"
	Copyright = "linechat-server"
)

// recentEvents bounds the event history served by GET /api/events.
const recentEvents = 200

// App wires together core and transport layers.
type App struct {
	cfg     *config.Config
	addr    string
	store   store.Store
	strings *lang.Pool
	svc     *moderation.Service
	sched   *moderation.Scheduler
	tcp     *tcp.Server
	console *console.Console
	stats   *core.Stats
	events  *notify.Recorder
	jwt     *auth.JWTConfig
	log     *zerolog.Logger

	consoleIn  io.Reader
	consoleOut io.Writer

	mu       sync.Mutex
	httpAddr string
	ready    chan struct{}
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	ctx := context.Background()

	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("backend", cfg.StoreBackend).Str("data_dir", cfg.DataDir).Msg("store initialized")

	serverKV, err := kv.Open(ctx, st, store.ScopeServer, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	clientKV, err := kv.Open(ctx, st, store.ScopeClient, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	seedServerValues(ctx, cfg, serverKV)

	strs, err := lang.New(cfg.StringsPath, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load strings: %w", err)
	}

	registry := core.NewRegistry(cfg.MaxCapacity)
	gate := core.NewGate(true)
	stats := &core.Stats{}
	events := &notify.Recorder{Limit: recentEvents}

	svc := moderation.NewService(moderation.Options{
		Book:       moderation.NewBook(st, logger),
		Registry:   registry,
		Gate:       gate,
		Strings:    strs,
		Notifier:   notify.Multi{notify.NewLogNotifier(logger), events},
		ServerKV:   serverKV,
		ServerName: cfg.ServerName,
		Logger:     logger,
	})
	sched := moderation.NewScheduler(svc, cfg.MuteTick, logger)

	disp := command.NewDispatcher(command.Options{
		Service:  svc,
		ServerKV: serverKV,
		ClientKV: clientKV,
		Stats:    stats,
		Logger:   logger,
	})
	if err := command.RegisterBuiltins(disp); err != nil {
		st.Close()
		return nil, fmt.Errorf("register commands: %w", err)
	}

	srv := tcp.NewServer(tcp.Options{
		Service:              svc,
		Dispatcher:           disp,
		Gate:                 gate,
		ServerKV:             serverKV,
		Stats:                stats,
		Logger:               logger,
		HandshakeTimeout:     cfg.HandshakeTimeout,
		WriteTimeout:         cfg.WriteTimeout,
		PausedNoticeInterval: cfg.PausedNoticeInterval,
		MaxFrameSize:         cfg.MaxFrameSize,
		MaxNameLength:        cfg.MaxNameLength,
		ChatRate:             cfg.ChatRate,
		ChatBurst:            cfg.ChatBurst,
	})

	cons := console.New(console.Options{
		Service:   svc,
		ServerKV:  serverKV,
		Stats:     stats,
		Addr:      srv.Addr,
		Version:   Version,
		Copyright: Copyright,
		Logger:    logger,
	})

	return &App{
		cfg:     cfg,
		addr:    listenAddr(cfg.Addr, serverKV.Fetch(console.KeyPort), logger),
		store:   st,
		strings: strs,
		svc:     svc,
		sched:   sched,
		tcp:     srv,
		console: cons,
		stats:   stats,
		events:  events,
		jwt: &auth.JWTConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			TTL:      24 * time.Hour,
		},
		log:   logger,
		ready: make(chan struct{}),
	}, nil
}

// AttachConsole runs the operator console over in/out once the server starts.
func (a *App) AttachConsole(in io.Reader, out io.Writer) {
	a.consoleIn = in
	a.consoleOut = out
}

// Ready is closed once both listeners are bound.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// Addr returns the bound chat address.
func (a *App) Addr() string {
	return a.tcp.Addr()
}

// HTTPAddr returns the bound operator API address, or "" when disabled.
func (a *App) HTTPAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.httpAddr
}

// Run starts every component and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.addr, err)
	}

	var httpLn net.Listener
	if a.cfg.HTTPAddr != "" {
		httpLn, err = net.Listen("tcp", a.cfg.HTTPAddr)
		if err != nil {
			ln.Close()
			return fmt.Errorf("listen %s: %w", a.cfg.HTTPAddr, err)
		}
		a.mu.Lock()
		a.httpAddr = httpLn.Addr().String()
		a.mu.Unlock()
	}

	// Sessions outlive ctx until the shutdown notice has been delivered.
	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	defer stop()

	if a.cfg.StringsPath != "" {
		if err := a.strings.Watch(runCtx); err != nil {
			a.log.Warn().Err(err).Str("path", a.cfg.StringsPath).Msg("string pool reload disabled")
		}
	}

	go a.sched.Run(runCtx)
	go a.statusLoop(runCtx)

	serveErr := make(chan error, 2)
	go func() {
		serveErr <- a.tcp.Serve(runCtx, ln)
	}()

	var httpServer *stdhttp.Server
	if httpLn != nil {
		httpServer = transporthttp.NewServer(transporthttp.Options{
			Addr:              a.cfg.HTTPAddr,
			ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
			Service:           a.svc,
			Console:           a.console,
			TCP:               a.tcp,
			Stats:             a.stats,
			Events:            a.events,
			JWT:               a.jwt,
			Logger:            a.log,
			BaseContext:       runCtx,
		})
		go func() {
			if err := httpServer.Serve(httpLn); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				serveErr <- err
			}
		}()
		a.log.Info().Str("addr", httpLn.Addr().String()).Msg("operator api listening")
	}

	a.log.Info().Str("addr", ln.Addr().String()).Str("name", a.svc.ServerName()).Msg("chat server listening")
	close(a.ready)

	if a.consoleIn != nil {
		go func() {
			if err := a.console.Run(runCtx, a.consoleIn, a.consoleOut); err != nil {
				a.log.Warn().Err(err).Msg("console stopped")
			}
		}()
	}

	var runErr error
	select {
	case err := <-serveErr:
		runErr = err
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down")
	kicked := a.svc.KickAll()
	a.log.Info().Int("sessions", kicked).Msg("sessions closed")
	stop()

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("http shutdown")
		}
		cancel()
	}
	if !a.tcp.Wait(a.cfg.ShutdownTimeout) {
		a.log.Warn().Dur("timeout", a.cfg.ShutdownTimeout).Msg("sessions still running after shutdown timeout")
	}

	return runErr
}

func (a *App) statusLoop(ctx context.Context) {
	if a.cfg.StatusInterval <= 0 {
		return
	}
	ticker := time.NewTicker(a.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := a.stats.Snapshot()
			a.log.Info().
				Str("name", a.svc.ServerName()).
				Int("connected", a.svc.Registry().Len()).
				Int("capacity", a.svc.Capacity()).
				Bool("accepting", a.svc.Accepting()).
				Int64("messages", snap.MessagesReceived).
				Int64("commands", snap.CommandsRun).
				Msg("status")
		}
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if err := a.strings.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close string pool")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.StoreBackend == config.BackendSQLite {
		return sqlite.New(cfg.SQLitePath)
	}
	return filestore.New(cfg.DataDir)
}

// seedServerValues inserts config-provided values without overwriting operator edits.
func seedServerValues(ctx context.Context, cfg *config.Config, values *kv.Table) {
	motd := cfg.MOTD
	if motd == "" {
		motd = "Welcome to " + cfg.ServerName
	}
	values.Insert(ctx, kv.KeyMOTD, motd)
	values.Insert(ctx, kv.KeyOwner, cfg.Owner)
	values.Insert(ctx, kv.KeyEmail, cfg.Email)
}

// listenAddr applies a port saved through server.port to the configured address.
func listenAddr(addr, savedPort string, logger *zerolog.Logger) string {
	if savedPort == "" {
		return addr
	}
	if _, err := strconv.Atoi(savedPort); err != nil {
		logger.Warn().Str("port", savedPort).Msg("ignoring invalid saved port")
		return addr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return net.JoinHostPort(host, savedPort)
}
