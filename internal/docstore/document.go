// Package docstore implements the durable JSON document abstraction used
// for every metadata file on disk: an in-memory value paired with a path,
// a dirty bit, a timed flush, and an atomic write. The dirty-and-timer
// pattern is grounded on the reference corpus's internal/mediawiki.Ticker
// (a context-scoped background goroutine publishing on an interval),
// generalised here from "emit progress" to "flush if dirty".
package docstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gitlab.com/tozd/go/errors"
)

// Fixer migrates a legacy on-disk payload before it is unmarshalled into T.
// It receives the raw bytes read from disk and returns the bytes to decode.
type Fixer func(data []byte) ([]byte, error)

// Document is a generic (value, path) pair with dirty-bit tracked,
// timer-flushed, atomic persistence.
type Document[T any] struct {
	path  string
	fixer Fixer

	mu      sync.Mutex
	value   T
	loaded  bool
	dirty   bool
	stop    chan struct{}
	stopped chan struct{}
}

// New creates a Document bound to path. The file is not read until first
// accessed through Get, Update, or Load.
func New[T any](path string, fixer Fixer) *Document[T] {
	return &Document[T]{path: path, fixer: fixer}
}

// ensureLoaded lazily reads the backing file the first time the document is
// used. Must be called with mu held. On a read error (including the file
// not existing yet) the value stays at its zero value and the document is
// still marked loaded, so later reads do not retry the broken read.
func (d *Document[T]) ensureLoaded() {
	if d.loaded {
		return
	}
	d.loaded = true

	data, err := os.ReadFile(d.path)
	if err != nil {
		return
	}
	if d.fixer != nil {
		if fixed, err := d.fixer(data); err == nil {
			data = fixed
		}
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return
	}
	d.value = v
}

// Load forces the lazy first read to happen now, returning any decode error
// instead of silently swallowing it (callers that want to distinguish
// "file absent" from "corrupt file" can use this instead of Get).
func (d *Document[T]) Load() errors.E {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return nil
	}
	data, err := os.ReadFile(d.path)
	d.loaded = true
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithStack(err)
	}
	if d.fixer != nil {
		fixed, err := d.fixer(data)
		if err != nil {
			return errors.WithStack(err)
		}
		data = fixed
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.WithStack(err)
	}
	d.value = v
	return nil
}

// Get returns a copy of the current value.
func (d *Document[T]) Get() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureLoaded()
	return d.value
}

// Update calls f with the current value and stores whatever it returns,
// marking the document dirty. It is the only way to mutate a Document, so
// every mutation is naturally serialised by d.mu.
func (d *Document[T]) Update(f func(T) T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureLoaded()
	d.value = f(d.value)
	d.dirty = true
}

// MarkDirty flags the document for the next flush without changing its
// value. Idempotent.
func (d *Document[T]) MarkDirty() {
	d.mu.Lock()
	d.dirty = true
	d.mu.Unlock()
}

// Sync writes the current value to disk exactly once per dirty epoch: if
// the document is not dirty, Sync is a no-op. Concurrent callers arriving
// while a write is already in flight simply wait on d.mu and then observe
// dirty==false, so at most one physical write happens per markDirty.
func (d *Document[T]) Sync() errors.E {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.dirty {
		return nil
	}

	data, err := json.MarshalIndent(d.value, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}

	if err := atomicWrite(d.path, data); err != nil {
		return errors.WithStack(err)
	}
	d.dirty = false
	return nil
}

// StartTimer arranges a flush every interval for as long as ctx is alive.
// Call Stop (or cancel ctx) to halt it. Safe to call only once per Document.
func (d *Document[T]) StartTimer(ctx context.Context, interval time.Duration) {
	d.stop = make(chan struct{})
	d.stopped = make(chan struct{})
	go func() {
		defer close(d.stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = d.Sync()
				return
			case <-d.stop:
				_ = d.Sync()
				return
			case <-ticker.C:
				_ = d.Sync()
			}
		}
	}()
}

// Stop halts a running flush timer and performs one final synchronous
// flush, matching the "flush on shutdown" expectation of a durable store.
func (d *Document[T]) Stop() errors.E {
	if d.stop != nil {
		close(d.stop)
		<-d.stopped
		d.stop = nil
	}
	return d.Sync()
}

// atomicWrite writes data to path by writing a temp file in the same
// directory and renaming it over path, so concurrent readers on the same
// process ever see either the pre-write or post-write content, never a
// partial write.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
