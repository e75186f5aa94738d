package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/vovakirdan/linechat-server/internal/command"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/lang"
	"golang.org/x/time/rate"
)

// work reads frames from an admitted session until it ends, then cleans up.
func (s *Server) work(ctx context.Context, sess *core.Session, lr *lineReader) {
	strs := s.svc.Strings()
	reason := "disconnect"
	defer func() {
		s.svc.Leave(context.WithoutCancel(ctx), sess, reason)
		s.log.Info().
			Str("identity", sess.Identity.String()).
			Str("name", sess.Name).
			Str("reason", reason).
			Msg("client disconnected")
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			sess.Close()
		case <-stop:
		}
	}()

	var limiter *rate.Limiter
	if s.opts.ChatRate > 0 {
		burst := s.opts.ChatBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.opts.ChatRate), burst)
	}

	for {
		line, err := lr.ReadLine()
		if err != nil {
			switch {
			case errors.Is(err, ErrFrameTooLarge):
				reason = "frame too large"
				sess.Send(strs.Get(lang.ConnInvalidFrame))
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			default:
				s.log.Debug().Err(err).Str("identity", sess.Identity.String()).Msg("read error")
			}
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		frame, err := command.ParseFrame(line)
		if err != nil {
			reason = "malformed frame"
			sess.Send(strs.Get(lang.ConnInvalidFrame))
			return
		}
		if frame.Identity != sess.Identity {
			reason = "unknown sender"
			sess.Send(strs.Get(lang.ConnUnknownSender))
			return
		}
		if frame.IsExit() {
			reason = "exit"
			return
		}

		if limiter != nil && !limiter.Allow() {
			sess.Send(strs.Get(lang.ConnRateLimited))
			continue
		}

		if err := s.disp.Handle(ctx, sess, frame); err != nil {
			if errors.Is(err, command.ErrUnknownSender) {
				reason = "unknown sender"
				sess.Send(strs.Get(lang.ConnUnknownSender))
				return
			}
			s.log.Warn().Err(err).Str("identity", sess.Identity.String()).Msg("dispatch failed")
		}
	}
}
