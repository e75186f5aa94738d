package lang

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Pool resolves reply strings by key. Built-in defaults can be overridden by a
// YAML map file, which is reloaded when it changes on disk.
type Pool struct {
	mu        sync.RWMutex
	strings   map[string]string
	path      string
	log       *zerolog.Logger
	watcher   *fsnotify.Watcher
	closeOnce sync.Once
}

// New builds a pool from defaults plus the overrides at path (optional).
// A missing override file is not an error.
func New(path string, logger *zerolog.Logger) (*Pool, error) {
	p := &Pool{
		strings: cloneDefaults(),
		path:    path,
		log:     logger,
	}
	if path == "" {
		return p, nil
	}
	if err := p.Reload(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return p, nil
}

// Get formats the string for key with args. Unknown keys resolve to the key itself.
func (p *Pool) Get(key string, args ...any) string {
	p.mu.RLock()
	format, ok := p.strings[key]
	p.mu.RUnlock()
	if !ok {
		return key
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// Len returns the number of resolvable keys.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.strings)
}

// Reload rereads the override file on top of the defaults.
func (p *Pool) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read strings: %w", err)
	}

	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parse strings: %w", err)
	}

	merged := cloneDefaults()
	for k, v := range overrides {
		merged[k] = v
	}

	p.mu.Lock()
	p.strings = merged
	p.mu.Unlock()

	if p.log != nil {
		p.log.Debug().Str("path", p.path).Int("overrides", len(overrides)).Msg("string pool loaded")
	}
	return nil
}

// Watch reloads the pool whenever the override file is written, until ctx ends.
// It watches the parent directory so editors that replace the file are handled.
func (p *Pool) Watch(ctx context.Context) error {
	if p.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(p.path), err)
	}
	p.watcher = watcher

	go p.watchLoop(ctx)
	return nil
}

// Close stops the watcher.
func (p *Pool) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.watcher != nil {
			err = p.watcher.Close()
		}
	})
	return err
}

func (p *Pool) watchLoop(ctx context.Context) {
	target := filepath.Clean(p.path)
	for {
		select {
		case <-ctx.Done():
			_ = p.Close()
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := p.Reload(); err != nil && p.log != nil {
				p.log.Warn().Err(err).Str("path", p.path).Msg("failed to reload strings")
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			if p.log != nil {
				p.log.Warn().Err(err).Msg("strings watcher error")
			}
		}
	}
}

func cloneDefaults() map[string]string {
	out := make(map[string]string, len(defaultStrings))
	for k, v := range defaultStrings {
		out[k] = v
	}
	return out
}
