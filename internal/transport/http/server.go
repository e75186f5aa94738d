package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat-server/internal/auth"
	"github.com/vovakirdan/linechat-server/internal/console"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/moderation"
	"github.com/vovakirdan/linechat-server/internal/notify"
	"github.com/vovakirdan/linechat-server/internal/transport/tcp"
)

// Options configures the operator HTTP server.
type Options struct {
	Addr              string
	ReadHeaderTimeout time.Duration

	Service *moderation.Service
	Console *console.Console
	TCP     *tcp.Server
	Stats   *core.Stats
	Events  *notify.Recorder
	JWT     *auth.JWTConfig
	Logger  *zerolog.Logger

	// BaseContext bounds WebSocket sessions; they outlive their request.
	BaseContext context.Context
}

// NewServer builds the HTTP server exposing the operator API and the WebSocket bridge.
func NewServer(opts Options) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
	}
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	api := NewAPIHandlers(opts.Service, opts.Console, opts.TCP, opts.Stats, opts.Events, logger)

	router.GET("/health", api.Health)

	group := router.Group("/api")
	group.GET("/status", api.Status)
	group.GET("/clients", api.Clients)
	group.GET("/events", api.Events)
	if opts.JWT.Enabled() {
		group.POST("/console", AuthMiddleware(opts.JWT, logger), api.Console)
	} else {
		group.POST("/console", api.ConsoleDisabled)
	}

	if opts.TCP != nil {
		base := opts.BaseContext
		if base == nil {
			base = context.Background()
		}
		router.GET("/ws", gin.WrapH(NewWSHandler(base, opts.TCP, logger)))
	}

	return router
}
