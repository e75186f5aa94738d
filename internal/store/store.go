package store

import (
	"context"
	"errors"

	"github.com/vovakirdan/linechat-server/internal/core"
)

// ErrNotFound is returned when a record was never persisted.
var ErrNotFound = errors.New("record not found")

// Key/value scopes.
const (
	ScopeServer = "server"
	ScopeClient = "client"
)

// RecordStore handles per-identity record persistence.
type RecordStore interface {
	// LoadRecord retrieves the record for id, or ErrNotFound.
	LoadRecord(ctx context.Context, id core.Identity) (*core.ClientRecord, error)

	// SaveRecord replaces the persisted record as a whole.
	SaveRecord(ctx context.Context, rec *core.ClientRecord) error

	// RecordExists reports whether id has ever been persisted.
	RecordExists(ctx context.Context, id core.Identity) (bool, error)

	// ListRecords returns every persisted record.
	ListRecords(ctx context.Context) ([]*core.ClientRecord, error)
}

// KVStore handles flat key/value documents.
type KVStore interface {
	// LoadValues returns the document for scope; an empty map if never saved.
	LoadValues(ctx context.Context, scope string) (map[string]string, error)

	// SaveValues replaces the document for scope.
	SaveValues(ctx context.Context, scope string, values map[string]string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	RecordStore
	KVStore

	// Close releases underlying resources.
	Close() error
}
