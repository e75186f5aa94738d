package kv

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/store"
)

// Well-known server keys.
const (
	KeyMOTD  = "motd"
	KeyOwner = "info.owner"
	KeyEmail = "info.email"
)

// Table is one flat key/value document held in memory and written back as a
// whole after every mutation. Writes are serialized by the table mutex.
type Table struct {
	mu     sync.Mutex
	scope  string
	values map[string]string
	st     store.KVStore
	log    *zerolog.Logger
}

// Open loads the document for scope.
func Open(ctx context.Context, st store.KVStore, scope string, logger *zerolog.Logger) (*Table, error) {
	values, err := st.LoadValues(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load %s values: %w", scope, err)
	}
	return &Table{
		scope:  scope,
		values: values,
		st:     st,
		log:    logger,
	}, nil
}

// Scope returns the table scope name.
func (t *Table) Scope() string {
	return t.scope
}

// Insert adds key only when it is absent. It reports whether the value was stored.
func (t *Table) Insert(ctx context.Context, key, value string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.values[key]; exists {
		return false
	}
	t.values[key] = value
	t.persistLocked(ctx)
	return true
}

// Set stores value under key, replacing any previous value.
func (t *Table) Set(ctx context.Context, key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.values[key] = value
	t.persistLocked(ctx)
}

// Delete removes key. It reports whether the key existed.
func (t *Table) Delete(ctx context.Context, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.values[key]; !exists {
		return false
	}
	delete(t.values, key)
	t.persistLocked(ctx)
	return true
}

// Query reports whether key exists.
func (t *Table) Query(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.values[key]
	return ok
}

// Fetch returns the value for key, or "" when missing.
func (t *Table) Fetch(key string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.values[key]
}

// Keys returns the sorted key set.
func (t *Table) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]string, 0, len(t.values))
	for k := range t.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Format replaces every {key} in format with its stored value.
// Unknown or unterminated variables are rejected.
func (t *Table) Format(format string) (string, error) {
	var b strings.Builder
	rest := format

	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:open])

		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return "", core.NewError(core.ErrCodeBadRequest, "failed to format string, unterminated variable")
		}
		name := rest[open+1 : open+closing]

		t.mu.Lock()
		value, ok := t.values[name]
		t.mu.Unlock()
		if !ok {
			return "", core.NewError(core.ErrCodeBadRequest, fmt.Sprintf("failed to format string, variable %s is not recognized", name))
		}
		b.WriteString(value)
		rest = rest[open+closing+1:]
	}
}

func (t *Table) persistLocked(ctx context.Context) {
	snapshot := make(map[string]string, len(t.values))
	for k, v := range t.values {
		snapshot[k] = v
	}
	if err := t.st.SaveValues(ctx, t.scope, snapshot); err != nil && t.log != nil {
		t.log.Error().Err(err).Str("scope", t.scope).Msg("failed to persist values")
	}
}
