package tcp

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/kv"
	"github.com/vovakirdan/linechat-server/internal/lang"
)

const (
	actionSetTitle = "client.settitle"
	actionClose    = "client.close"
)

// admit runs the handshake. On success the session is registered and greeted;
// otherwise the connection has been answered and closed.
func (s *Server) admit(ctx context.Context, conn net.Conn) (*core.Session, *lineReader, bool) {
	strs := s.svc.Strings()
	remote := conn.RemoteAddr().String()
	logger := s.log.With().Str("remote", remote).Logger()

	reject := func(id core.Identity, name, line, reason string) {
		s.stats.Rejected.Add(1)
		logger.Info().Str("identity", id.String()).Str("name", name).Str("reason", reason).Msg("handshake rejected")
		s.svc.Rejected(id, name, reason)
		if line != "" {
			s.writeRaw(conn, line)
		}
		conn.Close()
	}

	if s.svc.Registry().Full() {
		reject(core.Identity{}, "", strs.Get(lang.HandshakeFull), "server full")
		return nil, nil, false
	}

	lr := newLineReader(conn, s.opts.MaxFrameSize)
	if err := conn.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout)); err != nil {
		reject(core.Identity{}, "", "", "set deadline: "+err.Error())
		return nil, nil, false
	}
	line, err := lr.ReadLine()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			reject(core.Identity{}, "", strs.Get(lang.HandshakeMalformed), "handshake timeout")
		} else {
			reject(core.Identity{}, "", strs.Get(lang.HandshakeMalformed), "handshake read: "+err.Error())
		}
		return nil, nil, false
	}
	_ = conn.SetReadDeadline(time.Time{})

	fields := strings.Split(line, ":")
	if len(fields) != 2 {
		reject(core.Identity{}, "", strs.Get(lang.HandshakeMalformed), "malformed handshake")
		return nil, nil, false
	}
	id, err := core.ParseIdentity(fields[0])
	if err != nil {
		reject(core.Identity{}, "", strs.Get(lang.HandshakeInvalidID), "invalid identity")
		return nil, nil, false
	}
	name := strings.TrimSpace(fields[1])
	if name == "" {
		reject(id, "", strs.Get(lang.HandshakeMalformed), "empty name")
		return nil, nil, false
	}
	if utf8.RuneCountInString(name) > s.opts.MaxNameLength {
		reject(id, name, strs.Get(lang.HandshakeNameTooLong, s.opts.MaxNameLength), "name too long")
		return nil, nil, false
	}

	// Early answer for the common case; Join re-checks atomically.
	if s.svc.Registry().Has(id) {
		reject(id, name, strs.Get(lang.HandshakeDuplicate), "already connected")
		return nil, nil, false
	}

	sess := core.NewSession(conn, id, name, core.SessionOptions{
		QueueSize:    s.opts.QueueSize,
		WriteTimeout: s.opts.WriteTimeout,
	})
	rec, err := s.svc.Join(ctx, sess)
	if err != nil {
		s.stats.Rejected.Add(1)
		s.svc.Rejected(id, name, err.Error())
		logger.Info().Err(err).Str("identity", id.String()).Str("name", name).Msg("handshake rejected")
		switch {
		case errors.Is(err, core.ErrBanned):
			sess.Send(strs.Get(lang.HandshakeBanned, rec.BanReason))
			sess.Send(actionClose + ":Now")
		case errors.Is(err, core.ErrCapacity):
			sess.Send(strs.Get(lang.HandshakeFull))
		case errors.Is(err, core.ErrConflict):
			sess.Send(strs.Get(lang.HandshakeDuplicate))
		default:
			logger.Error().Err(err).Str("identity", id.String()).Msg("failed to open client record")
			sess.Send(strs.Get(lang.CmdInternalError, "handshake"))
		}
		sess.Close()
		return nil, nil, false
	}

	s.stats.Admitted.Add(1)
	logger.Info().Str("identity", id.String()).Str("name", name).Msg("client connected")

	sess.Send(strs.Get(lang.HandshakeHelp))
	if motd := s.motd(); motd != "" {
		sess.Send(motd)
	}
	now := s.svc.Now()
	if rec.IsMuted(now) {
		sess.Send(actionSetTitle + ":" + strs.Get(lang.ModMutedTitle, core.FormatDuration(rec.MuteRemaining(now))))
	} else {
		sess.Send(actionSetTitle + ":" + s.svc.ServerName())
	}
	return sess, lr, true
}

func (s *Server) motd() string {
	if s.serverKV == nil {
		return ""
	}
	motd := s.serverKV.Fetch(kv.KeyMOTD)
	if formatted, err := s.serverKV.Format(motd); err == nil {
		return formatted
	}
	return motd
}

// writeRaw answers a connection that has no session yet.
func (s *Server) writeRaw(conn net.Conn, line string) {
	_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		s.log.Debug().Err(err).Msg("failed to write handshake reply")
	}
}
