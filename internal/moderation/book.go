package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/store"
)

// Book caches client records and writes every change through to the store.
// Each record has its own lock; callers only ever see copies.
type Book struct {
	st  store.RecordStore
	log *zerolog.Logger

	mu      sync.Mutex
	entries map[core.Identity]*bookEntry
}

type bookEntry struct {
	mu  sync.Mutex
	rec *core.ClientRecord
}

// NewBook creates a record book backed by st.
func NewBook(st store.RecordStore, logger *zerolog.Logger) *Book {
	return &Book{
		st:      st,
		log:     logger,
		entries: make(map[core.Identity]*bookEntry),
	}
}

// Open returns the record for id, creating and persisting a default one for a
// first-seen identity. The stored display name follows the latest handshake.
func (b *Book) Open(ctx context.Context, id core.Identity, name string) (*core.ClientRecord, error) {
	e, err := b.entry(ctx, id, name)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if name != "" && e.rec.Name != name {
		e.rec.Name = name
		b.persistLocked(ctx, e.rec)
	}
	return e.rec.Clone(), nil
}

// Enter runs admit under the record lock, so a concurrent Update either lands
// before admission or runs after it. A banned record is refused with
// core.ErrBanned and returned for its reason. The display name changes only
// once admit succeeds.
func (b *Book) Enter(ctx context.Context, id core.Identity, name string, admit func(rec *core.ClientRecord) error) (*core.ClientRecord, error) {
	e, err := b.entry(ctx, id, name)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rec.Banned {
		return e.rec.Clone(), core.ErrBanned
	}
	if err := admit(e.rec.Clone()); err != nil {
		return nil, err
	}
	if name != "" && e.rec.Name != name {
		e.rec.Name = name
		b.persistLocked(ctx, e.rec)
	}
	return e.rec.Clone(), nil
}

// Get returns the record for an identity that has connected before.
func (b *Book) Get(ctx context.Context, id core.Identity) (*core.ClientRecord, error) {
	e, err := b.entry(ctx, id, "")
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), nil
}

// Update applies fn to the record under its lock and persists the result.
// When fn fails nothing changes. Persistence failures are logged only.
func (b *Book) Update(ctx context.Context, id core.Identity, fn func(rec *core.ClientRecord) error) (*core.ClientRecord, error) {
	e, err := b.entry(ctx, id, "")
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.rec.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	e.rec = next
	b.persistLocked(ctx, e.rec)
	return e.rec.Clone(), nil
}

// Save writes the cached record for id back to the store.
func (b *Book) Save(ctx context.Context, id core.Identity) {
	b.mu.Lock()
	e, ok := b.entries[id]
	b.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	b.persistLocked(ctx, e.rec)
}

// List returns every known record, preferring cached copies over stored ones.
func (b *Book) List(ctx context.Context) ([]*core.ClientRecord, error) {
	stored, err := b.st.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	out := make([]*core.ClientRecord, 0, len(stored))
	for _, rec := range stored {
		b.mu.Lock()
		e, ok := b.entries[rec.ID]
		b.mu.Unlock()
		if !ok {
			out = append(out, rec)
			continue
		}
		e.mu.Lock()
		out = append(out, e.rec.Clone())
		e.mu.Unlock()
	}
	return out, nil
}

// entry loads id into the cache. A non-empty name creates missing records.
func (b *Book) entry(ctx context.Context, id core.Identity, name string) (*bookEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.entries[id]; ok {
		return e, nil
	}

	rec, err := b.st.LoadRecord(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		if name == "" {
			return nil, core.ErrNotFound
		}
		rec = core.NewClientRecord(id, name)
		b.persistLocked(ctx, rec)
	default:
		return nil, fmt.Errorf("%w: load %s: %v", core.ErrPersistence, id, err)
	}

	if rec.Permissions == nil {
		rec.Permissions = core.DefaultPermissions()
	}
	e := &bookEntry{rec: rec}
	b.entries[id] = e
	return e, nil
}

func (b *Book) persistLocked(ctx context.Context, rec *core.ClientRecord) {
	if err := b.st.SaveRecord(ctx, rec); err != nil && b.log != nil {
		b.log.Error().Err(err).Str("identity", rec.ID.String()).Msg("failed to persist client record")
	}
}
