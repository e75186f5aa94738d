package http

import (
	"context"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat-server/internal/transport/tcp"
)

// WSHandler upgrades HTTP connections and runs the line protocol over them.
// Each text message carries one or more newline-terminated frames.
type WSHandler struct {
	base context.Context
	srv  *tcp.Server
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(base context.Context, srv *tcp.Server, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{base: base, srv: srv, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}

	ctx, cancel := context.WithCancel(h.base)
	defer cancel()

	netConn := websocket.NetConn(ctx, conn, websocket.MessageText)
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("ws bridge opened")
	h.srv.ServeConn(ctx, netConn)
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("ws bridge closed")
}
