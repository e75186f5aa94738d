package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/kv"
	"github.com/vovakirdan/linechat-server/internal/lang"
	"github.com/vovakirdan/linechat-server/internal/notify"
)

const (
	noReason       = "No reason supplied."
	noMessage      = "No message provided"
	actionSetTitle = "client.settitle"
	actionClose    = "client.close"
	closeNow       = "Now"
	defaultSrvName = "server"
)

// Options configures a Service.
type Options struct {
	Book       *Book
	Registry   *core.Registry
	Gate       *core.Gate
	Strings    *lang.Pool
	Notifier   notify.Notifier
	ServerKV   *kv.Table
	ServerName string
	Logger     *zerolog.Logger
	Now        func() time.Time
}

// Watcher is told about identities whose mute must be tracked to expiry.
type Watcher interface {
	Watch(id core.Identity)
}

// ClientInfo describes a live session for listings.
type ClientInfo struct {
	Identity      core.Identity `json:"identity"`
	Name          string        `json:"name"`
	RemoteAddr    string        `json:"remote_addr"`
	ConnectedAt   time.Time     `json:"connected_at"`
	Muted         bool          `json:"muted"`
	MuteRemaining string        `json:"mute_remaining,omitempty"`
	Permissions   string        `json:"permissions"`
}

// Service owns every moderation transition and the server-side actions shared
// by client commands, the operator console and the HTTP API.
type Service struct {
	book     *Book
	registry *core.Registry
	gate     *core.Gate
	strings  *lang.Pool
	notifier notify.Notifier
	serverKV *kv.Table
	log      *zerolog.Logger
	now      func() time.Time

	mu         sync.RWMutex
	serverName string
	watcher    Watcher
}

// NewService builds the moderation service.
func NewService(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	strs := opts.Strings
	if strs == nil {
		strs, _ = lang.New("", logger)
	}
	name := opts.ServerName
	if name == "" {
		name = defaultSrvName
	}
	return &Service{
		book:       opts.Book,
		registry:   opts.Registry,
		gate:       opts.Gate,
		strings:    strs,
		notifier:   notifier,
		serverKV:   opts.ServerKV,
		log:        logger,
		now:        now,
		serverName: name,
	}
}

// SetWatcher installs the mute expiry tracker.
func (s *Service) SetWatcher(w Watcher) {
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
}

// Book exposes the record book.
func (s *Service) Book() *Book { return s.book }

// Registry exposes the live session registry.
func (s *Service) Registry() *core.Registry { return s.registry }

// Strings exposes the reply string pool.
func (s *Service) Strings() *lang.Pool { return s.strings }

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

// ServerName returns the display name clients see.
func (s *Service) ServerName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverName
}

// SetServerName changes the display name clients see.
func (s *Service) SetServerName(name string) {
	s.mu.Lock()
	s.serverName = name
	s.mu.Unlock()
}

// Resolve maps a target given as an identity string or a connected display name.
func (s *Service) Resolve(target string) (core.Identity, error) {
	if id, err := core.ParseIdentity(target); err == nil {
		return id, nil
	}
	if sess, ok := s.registry.FindByName(target); ok {
		return sess.Identity, nil
	}
	return core.Identity{}, core.NewError(core.ErrCodeNotFound, fmt.Sprintf("unknown user '%s'", target))
}

// Join admits a handshaken session and starts tracking its mute, if any.
// Admission and the ban check share the record lock with Ban, so a banned
// identity is never registered. On core.ErrBanned the record is returned.
func (s *Service) Join(ctx context.Context, sess *core.Session) (*core.ClientRecord, error) {
	rec, err := s.book.Enter(ctx, sess.Identity, sess.Name, func(*core.ClientRecord) error {
		return s.registry.Admit(sess)
	})
	if err != nil {
		return rec, err
	}
	if rec.IsMuted(s.now()) {
		s.watch(rec.ID)
	}
	s.emit(core.EventConnected, rec.ID, sess.Name, sess.RemoteAddr)
	return rec, nil
}

// Rejected records a refused handshake.
func (s *Service) Rejected(id core.Identity, name, reason string) {
	s.emit(core.EventRejected, id, name, reason)
}

// Leave cleans up after a session ends: registry removal, record flush and close.
func (s *Service) Leave(ctx context.Context, sess *core.Session, reason string) {
	removed := s.registry.Remove(sess)
	s.book.Save(ctx, sess.Identity)
	sess.Close()
	if removed {
		s.emit(core.EventDisconnected, sess.Identity, sess.Name, reason)
	}
}

// Mute moves id into the muted state for durationStr. Nothing changes when the
// duration does not parse.
func (s *Service) Mute(ctx context.Context, id core.Identity, durationStr, reason string) (*core.ClientRecord, error) {
	d, err := core.ParseMuteDuration(durationStr)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = noReason
	}

	now := s.now()
	rec, err := s.book.Update(ctx, id, func(rec *core.ClientRecord) error {
		rec.Mute(now, d, reason)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.watch(id)
	s.emit(core.EventMuted, id, rec.Name, reason)

	s.registry.Broadcast(s.strings.Get(lang.ModMutedGlobal, rec.Name, reason, core.FormatDuration(d)), nil)
	if sess, ok := s.registry.Get(id); ok {
		sess.Send(s.strings.Get(lang.ModMutedNotice, core.FormatDuration(d), reason))
		sess.Send(actionSetTitle + ":" + s.strings.Get(lang.ModMutedTitle, core.FormatDuration(d)))
	}
	return rec, nil
}

// Unmute clears an active mute.
func (s *Service) Unmute(ctx context.Context, id core.Identity) (*core.ClientRecord, error) {
	now := s.now()
	rec, err := s.book.Update(ctx, id, func(rec *core.ClientRecord) error {
		if !rec.IsMuted(now) {
			return core.NewError(core.ErrCodeBadRequest, fmt.Sprintf("%s is not muted.", rec.Name))
		}
		rec.ClearMute()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.announceUnmute(rec)
	return rec, nil
}

// expire clears the mute of id when it has run out. It reports whether the
// record still needs watching and the time left.
func (s *Service) expire(ctx context.Context, id core.Identity, now time.Time) (bool, time.Duration, error) {
	var (
		expired   bool
		remaining time.Duration
	)
	rec, err := s.book.Update(ctx, id, func(rec *core.ClientRecord) error {
		switch {
		case rec.MutedUntil.IsZero():
		case rec.IsMuted(now):
			remaining = rec.MuteRemaining(now)
		default:
			rec.ClearMute()
			expired = true
		}
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	if expired {
		s.announceUnmute(rec)
	}
	return remaining > 0, remaining, nil
}

func (s *Service) announceUnmute(rec *core.ClientRecord) {
	s.emit(core.EventUnmuted, rec.ID, rec.Name, "")
	if sess, ok := s.registry.Get(rec.ID); ok {
		sess.Send(actionSetTitle + ":" + s.ServerName())
		sess.Send(s.privateLine(s.strings.Get(lang.ModUnmuted)))
	}
}

// Ban moves id into the banned state. A connected target is told, asked to
// close and disconnected.
func (s *Service) Ban(ctx context.Context, id core.Identity, reason string) (*core.ClientRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = noReason
	}

	rec, err := s.book.Update(ctx, id, func(rec *core.ClientRecord) error {
		rec.Ban(reason)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(core.EventBanned, id, rec.Name, reason)

	if sess, ok := s.registry.Get(id); ok {
		s.registry.Remove(sess)
		sess.Send(s.strings.Get(lang.ModBanNotice, reason))
		sess.Send(actionClose + ":" + closeNow)
		sess.Close()
		s.emit(core.EventDisconnected, id, sess.Name, "banned")
	}
	s.registry.Broadcast(s.strings.Get(lang.ModBannedGlobal, rec.Name, reason), nil)
	return rec, nil
}

// Unban clears the ban fields. Mute state is left as it is.
func (s *Service) Unban(ctx context.Context, id core.Identity) (*core.ClientRecord, error) {
	rec, err := s.book.Update(ctx, id, func(rec *core.ClientRecord) error {
		if !rec.Banned {
			return core.NewError(core.ErrCodeBadRequest, fmt.Sprintf("%s is not banned.", rec.Name))
		}
		rec.Unban()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(core.EventUnbanned, id, rec.Name, "")
	return rec, nil
}

// Grant gives id a permission from the known set.
func (s *Service) Grant(ctx context.Context, by string, id core.Identity, perm string) (*core.ClientRecord, error) {
	return s.setPermission(ctx, by, id, perm, true)
}

// Revoke takes a permission away from id.
func (s *Service) Revoke(ctx context.Context, by string, id core.Identity, perm string) (*core.ClientRecord, error) {
	return s.setPermission(ctx, by, id, perm, false)
}

func (s *Service) setPermission(ctx context.Context, by string, id core.Identity, perm string, grant bool) (*core.ClientRecord, error) {
	if err := core.ValidatePermission(perm); err != nil {
		return nil, err
	}
	if by == "" {
		by = s.ServerName()
	}

	rec, err := s.book.Update(ctx, id, func(rec *core.ClientRecord) error {
		if grant {
			rec.Permissions.Grant(perm)
		} else {
			rec.Permissions.Revoke(perm)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	key, verb := lang.ModRevoked, "revoked"
	if grant {
		key, verb = lang.ModGranted, "granted"
	}
	if sess, ok := s.registry.Get(id); ok {
		sess.Send(s.strings.Get(key, by, perm))
	}
	s.emit(core.EventPermissionChanged, id, rec.Name, fmt.Sprintf("%s %s by %s", perm, verb, by))
	return rec, nil
}

// PrivateMessage delivers text to a connected target given by identity or name.
func (s *Service) PrivateMessage(from, target, text string) error {
	id, err := s.Resolve(target)
	if err != nil {
		return err
	}
	sess, ok := s.registry.Get(id)
	if !ok {
		return core.NewError(core.ErrCodeNotFound, fmt.Sprintf("'%s' is not connected.", target))
	}
	if from == "" {
		from = s.ServerName()
	}
	sess.Send(s.strings.Get(lang.ModPrivate, from, text))
	return nil
}

// Broadcast sends text to every session after expanding {key} server values.
func (s *Service) Broadcast(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = noMessage
	}
	if s.serverKV != nil {
		formatted, err := s.serverKV.Format(text)
		if err != nil {
			return 0, err
		}
		text = formatted
	}
	return s.registry.Broadcast(s.strings.Get(lang.ModGlobal, text), nil), nil
}

// Announce sends a raw line to every session.
func (s *Service) Announce(line string) int {
	return s.registry.Broadcast(line, nil)
}

// Send pushes "action:args" to a connected session.
func (s *Service) Send(id core.Identity, action, args string) error {
	sess, ok := s.registry.Get(id)
	if !ok {
		return core.NewError(core.ErrCodeNotFound, "no user with that id is connected.")
	}
	sess.Send(action + ":" + args)
	return nil
}

// KickAll closes admission and disconnects every session.
func (s *Service) KickAll() int {
	s.SetAccepting(false)

	sessions := s.registry.DrainAll()
	line := s.strings.Get(lang.ServerShutdown)
	for _, sess := range sessions {
		sess.Send(line)
		sess.Close()
		s.emit(core.EventKicked, sess.Identity, sess.Name, "kickall")
	}
	if s.log != nil {
		s.log.Warn().Int("sessions", len(sessions)).Msg("kicked all clients")
	}
	return len(sessions)
}

// SetAccepting opens or closes admission.
func (s *Service) SetAccepting(open bool) {
	if s.gate != nil {
		s.gate.SetOpen(open)
	}
}

// Accepting reports whether admission is open.
func (s *Service) Accepting() bool {
	return s.gate == nil || s.gate.IsOpen()
}

// Capacity returns the session limit.
func (s *Service) Capacity() int {
	return s.registry.Capacity()
}

// SetCapacity changes the session limit.
func (s *Service) SetCapacity(capacity int) error {
	if capacity < 0 {
		return core.NewError(core.ErrCodeBadRequest, "capacity must not be negative.")
	}
	s.registry.SetCapacity(capacity)
	return nil
}

// Clients lists live sessions with their moderation state.
func (s *Service) Clients(ctx context.Context) []ClientInfo {
	now := s.now()
	sessions := s.registry.Snapshot()
	out := make([]ClientInfo, 0, len(sessions))
	for _, sess := range sessions {
		info := ClientInfo{
			Identity:    sess.Identity,
			Name:        sess.Name,
			RemoteAddr:  sess.RemoteAddr,
			ConnectedAt: sess.ConnectedAt,
		}
		if rec, err := s.book.Get(ctx, sess.Identity); err == nil {
			info.Muted = rec.IsMuted(now)
			if info.Muted {
				info.MuteRemaining = core.FormatDuration(rec.MuteRemaining(now))
			}
			info.Permissions = rec.Permissions.String()
		}
		out = append(out, info)
	}
	return out
}

// IsNotFound reports whether err means the identity is unknown.
func IsNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}

func (s *Service) privateLine(text string) string {
	return s.strings.Get(lang.ModPrivate, s.ServerName(), text)
}

func (s *Service) watch(id core.Identity) {
	s.mu.RLock()
	w := s.watcher
	s.mu.RUnlock()
	if w != nil {
		w.Watch(id)
	}
}

func (s *Service) emit(kind core.EventKind, id core.Identity, name, reason string) {
	s.notifier.Notify(core.Event{
		Kind:     kind,
		Identity: id,
		Name:     name,
		Reason:   reason,
		At:       s.now(),
	})
}
