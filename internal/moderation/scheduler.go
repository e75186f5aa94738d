package moderation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/lang"
)

// Scheduler expires mutes. A single goroutine ticks over the watched identities;
// expiry is absolute in the record, so missed ticks only delay the transition.
type Scheduler struct {
	svc  *Service
	tick time.Duration
	log  *zerolog.Logger

	mu      sync.Mutex
	watched map[core.Identity]struct{}
}

// NewScheduler creates a scheduler and registers it with svc as its watcher.
func NewScheduler(svc *Service, tick time.Duration, logger *zerolog.Logger) *Scheduler {
	if tick <= 0 {
		tick = 2 * time.Second
	}
	s := &Scheduler{
		svc:     svc,
		tick:    tick,
		log:     logger,
		watched: make(map[core.Identity]struct{}),
	}
	svc.SetWatcher(s)
	return s
}

// Watch adds id to the set checked on every tick.
func (s *Scheduler) Watch(id core.Identity) {
	s.mu.Lock()
	s.watched[id] = struct{}{}
	s.mu.Unlock()
}

// Watching reports whether id is tracked.
func (s *Scheduler) Watching(id core.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watched[id]
	return ok
}

// Seed watches every stored record that still carries a mute, so mutes set
// before a restart keep expiring.
func (s *Scheduler) Seed(ctx context.Context) error {
	records, err := s.svc.book.List(ctx)
	if err != nil {
		return err
	}
	n := 0
	for _, rec := range records {
		if !rec.MutedUntil.IsZero() {
			s.Watch(rec.ID)
			n++
		}
	}
	if s.log != nil {
		s.log.Debug().Int("muted", n).Msg("mute scheduler seeded")
	}
	return nil
}

// Run seeds the watch set and ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if err := s.Seed(ctx); err != nil && s.log != nil {
		s.log.Error().Err(err).Msg("failed to seed mute scheduler")
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, s.svc.now())
		}
	}
}

// Tick checks every watched identity against now.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	ids := make([]core.Identity, 0, len(s.watched))
	for id := range s.watched {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		stillMuted, remaining, err := s.svc.expire(ctx, id, now)
		if err != nil {
			if s.log != nil {
				s.log.Warn().Err(err).Str("identity", id.String()).Msg("dropping mute watch")
			}
			s.unwatch(id)
			continue
		}
		if !stillMuted {
			s.unwatch(id)
			continue
		}
		if sess, ok := s.svc.registry.Get(id); ok {
			sess.Send(actionSetTitle + ":" + s.svc.strings.Get(lang.ModMutedTitle, core.FormatDuration(remaining)))
		}
	}
}

func (s *Scheduler) unwatch(id core.Identity) {
	s.mu.Lock()
	delete(s.watched, id)
	s.mu.Unlock()
}
