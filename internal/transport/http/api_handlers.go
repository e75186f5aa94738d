package http

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat-server/internal/console"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/moderation"
	"github.com/vovakirdan/linechat-server/internal/notify"
	"github.com/vovakirdan/linechat-server/internal/transport/tcp"
)

// APIHandlers provides HTTP handlers for the operator API.
type APIHandlers struct {
	svc     *moderation.Service
	console *console.Console
	tcp     *tcp.Server
	stats   *core.Stats
	events  *notify.Recorder
	started time.Time
	log     *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(svc *moderation.Service, cons *console.Console, srv *tcp.Server, stats *core.Stats, events *notify.Recorder, logger *zerolog.Logger) *APIHandlers {
	if stats == nil {
		stats = &core.Stats{}
	}
	return &APIHandlers{
		svc:     svc,
		console: cons,
		tcp:     srv,
		stats:   stats,
		events:  events,
		started: time.Now(),
		log:     logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse describes the running server.
type StatusResponse struct {
	ServerName string             `json:"server_name"`
	Addr       string             `json:"addr"`
	Connected  int                `json:"connected"`
	Capacity   int                `json:"capacity"`
	Accepting  bool               `json:"accepting"`
	Uptime     string             `json:"uptime"`
	Stats      core.StatsSnapshot `json:"stats"`
}

// EventResponse is one recent client event.
type EventResponse struct {
	Kind     string    `json:"kind"`
	Identity string    `json:"identity"`
	Name     string    `json:"name,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// ConsoleRequest carries one operator console line.
type ConsoleRequest struct {
	Command string `json:"command" binding:"required"`
}

// ConsoleResponse carries the console output.
type ConsoleResponse struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// Health reports liveness.
// GET /health
func (h *APIHandlers) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Status reports admission state and counters.
// GET /api/status
func (h *APIHandlers) Status(c *gin.Context) {
	addr := ""
	if h.tcp != nil {
		addr = h.tcp.Addr()
	}
	c.JSON(http.StatusOK, StatusResponse{
		ServerName: h.svc.ServerName(),
		Addr:       addr,
		Connected:  h.svc.Registry().Len(),
		Capacity:   h.svc.Capacity(),
		Accepting:  h.svc.Accepting(),
		Uptime:     core.FormatDuration(time.Since(h.started)),
		Stats:      h.stats.Snapshot(),
	})
}

// Clients lists connected clients.
// GET /api/clients
func (h *APIHandlers) Clients(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Clients(c.Request.Context()))
}

// Events lists recent client events, oldest first.
// GET /api/events
func (h *APIHandlers) Events(c *gin.Context) {
	out := []EventResponse{}
	if h.events != nil {
		for _, ev := range h.events.Events() {
			out = append(out, EventResponse{
				Kind:     ev.Kind.String(),
				Identity: ev.Identity.String(),
				Name:     ev.Name,
				Reason:   ev.Reason,
				At:       ev.At,
			})
		}
	}
	c.JSON(http.StatusOK, out)
}

// Console executes one operator console line.
// POST /api/console
func (h *APIHandlers) Console(c *gin.Context) {
	var req ConsoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid console request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	operator := c.GetString(ContextKeyOperator)
	h.log.Info().Str("operator", operator).Str("command", req.Command).Msg("remote console command")

	var out bytes.Buffer
	if err := h.console.Execute(c.Request.Context(), req.Command, &out); err != nil {
		c.JSON(statusFor(err), ConsoleResponse{Output: out.String(), Error: errorMessage(err)})
		return
	}
	c.JSON(http.StatusOK, ConsoleResponse{Output: out.String()})
}

// ConsoleDisabled answers console requests when no token secret is configured.
func (h *APIHandlers) ConsoleDisabled(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "remote console is disabled"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	var ce *core.CoreError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}
