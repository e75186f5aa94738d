package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/store"
)

const (
	usersDir       = "users"
	recordFileName = "user.json"
)

// FileStore implements store.Store as whole-document JSON files under a data directory.
type FileStore struct {
	root  string
	locks sync.Map // path -> *sync.Mutex
}

type valuesDocument struct {
	Values map[string]string `json:"storage-current"`
}

// New creates the directory layout under root.
func New(root string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(root, usersDir), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}

// ==== RecordStore implementation ====

// LoadRecord reads users/<id>/user.json.
func (s *FileStore) LoadRecord(_ context.Context, id core.Identity) (*core.ClientRecord, error) {
	path := s.recordPath(id)

	unlock := s.lock(path)
	data, err := os.ReadFile(path)
	unlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("read record: %w", err)
	}

	var rec core.ClientRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	if rec.Permissions == nil {
		rec.Permissions = core.DefaultPermissions()
	}
	rec.ID = id
	return &rec, nil
}

// SaveRecord rewrites users/<id>/user.json.
func (s *FileStore) SaveRecord(_ context.Context, rec *core.ClientRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return s.writeFile(s.recordPath(rec.ID), data)
}

// RecordExists checks for the record file.
func (s *FileStore) RecordExists(_ context.Context, id core.Identity) (bool, error) {
	_, err := os.Stat(s.recordPath(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat record: %w", err)
}

// ListRecords loads every record directory. Unreadable entries are skipped.
func (s *FileStore) ListRecords(ctx context.Context) ([]*core.ClientRecord, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, usersDir))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	records := make([]*core.ClientRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := core.ParseIdentity(entry.Name())
		if err != nil {
			continue
		}
		rec, err := s.LoadRecord(ctx, id)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ==== KVStore implementation ====

// LoadValues reads <scope>-storage.json.
func (s *FileStore) LoadValues(_ context.Context, scope string) (map[string]string, error) {
	path := s.valuesPath(scope)

	unlock := s.lock(path)
	data, err := os.ReadFile(path)
	unlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s storage: %w", scope, err)
	}

	var doc valuesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s storage: %w", scope, err)
	}
	if doc.Values == nil {
		doc.Values = map[string]string{}
	}
	return doc.Values, nil
}

// SaveValues rewrites <scope>-storage.json.
func (s *FileStore) SaveValues(_ context.Context, scope string, values map[string]string) error {
	data, err := json.MarshalIndent(valuesDocument{Values: values}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s storage: %w", scope, err)
	}
	return s.writeFile(s.valuesPath(scope), data)
}

func (s *FileStore) recordPath(id core.Identity) string {
	return filepath.Join(s.root, usersDir, id.String(), recordFileName)
}

func (s *FileStore) valuesPath(scope string) string {
	return filepath.Join(s.root, scope+"-storage.json")
}

// writeFile replaces path atomically: temp file in the same directory, then rename.
func (s *FileStore) writeFile(path string, data []byte) error {
	unlock := s.lock(path)
	defer unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *FileStore) lock(path string) func() {
	v, _ := s.locks.LoadOrStore(path, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
