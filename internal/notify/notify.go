package notify

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/linechat-server/internal/core"
)

// Notifier receives moderation and lifecycle events. Implementations must not block.
type Notifier interface {
	Notify(ev core.Event)
}

// LogNotifier writes every event to the logger.
type LogNotifier struct {
	log *zerolog.Logger
}

// NewLogNotifier returns a notifier that logs events at info level.
func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ev core.Event) {
	if n == nil || n.log == nil {
		return
	}
	entry := n.log.Info().
		Str("event", ev.Kind.String()).
		Str("identity", ev.Identity.String()).
		Time("at", ev.At)
	if ev.Name != "" {
		entry = entry.Str("name", ev.Name)
	}
	if ev.Reason != "" {
		entry = entry.Str("reason", ev.Reason)
	}
	entry.Msg("client event")
}

// Recorder keeps events in memory for GET /api/events. With Limit > 0 only
// the most recent Limit events are kept.
type Recorder struct {
	Limit int

	mu     sync.Mutex
	events []core.Event
}

// Notify implements Notifier.
func (r *Recorder) Notify(ev core.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	if r.Limit > 0 && len(r.events) > r.Limit {
		r.events = append(r.events[:0:0], r.events[len(r.events)-r.Limit:]...)
	}
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Has reports whether an event of kind was recorded for id.
func (r *Recorder) Has(kind core.EventKind, id core.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Kind == kind && ev.Identity == id {
			return true
		}
	}
	return false
}

// Multi fans an event out to several notifiers.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ev core.Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ev)
		}
	}
}
