package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"shopauth/pkg/logging"
)

const (
	sessionFileName = "session.json"
	lockFileName    = "session.lock"

	// lockRetryDelay is how often a blocked writer retries the file lock.
	lockRetryDelay = 10 * time.Millisecond
)

// fileDocument is the on-disk layout. Writer is the origin of the last batch
// so that watchers in other processes can attribute the change.
type fileDocument struct {
	Writer    string            `json:"writer"`
	UpdatedAt time.Time         `json:"updated_at"`
	Values    map[string]string `json:"values"`
}

// FileBackend persists values as a single JSON document under dir.
//
// SECURITY: the directory is created 0700 and the document written 0600.
// Writes go to a temporary file that is renamed over the document, so
// readers never observe a partial write.
//
// Every read-modify-write holds an advisory lock on session.lock, so batches
// from different processes never overwrite each other.
//
// Changes made by other processes are detected with fsnotify and announced
// with the writer recorded in the document.
type FileBackend struct {
	mu   sync.Mutex
	dir  string
	path string
	lock *flock.Flock

	// last is the snapshot subscribers have been told about.
	last map[string]string
	subs subscribers

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	running bool
}

// NewFileBackend creates the storage directory if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session storage directory: %w", err)
	}
	b := &FileBackend{
		dir:  dir,
		path: filepath.Join(dir, sessionFileName),
		lock: flock.New(filepath.Join(dir, lockFileName)),
	}
	doc, err := b.readDocument()
	if err != nil {
		return nil, err
	}
	b.last = doc.Values
	return b, nil
}

// Path returns the location of the session document.
func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Load(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, err := b.readDocument()
	if err != nil {
		return nil, err
	}
	return doc.Values, nil
}

func (b *FileBackend) Apply(ctx context.Context, set map[string]string, del []string, origin string) error {
	return b.ApplyIf(ctx, nil, set, del, origin)
}

// ApplyIf announces any changes another process made since the last
// notification before announcing its own batch, so subscribers never see
// foreign keys attributed to this writer.
func (b *FileBackend) ApplyIf(ctx context.Context, want, set map[string]string, del []string, origin string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	events, err := b.applyLocked(ctx, want, set, del, origin)
	fns := b.subs.snapshot()
	b.mu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
	return err
}

// applyLocked runs under b.mu and holds the file lock for the whole
// read-modify-write.
func (b *FileBackend) applyLocked(ctx context.Context, want, set map[string]string, del []string, origin string) ([]Event, error) {
	locked, err := b.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session file: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock session file %s", b.lock.Path())
	}
	defer func() {
		if err := b.lock.Unlock(); err != nil {
			logging.Warn("TokenStore", "Failed to unlock session file: %v", err)
		}
	}()

	doc, err := b.readDocument()
	if err != nil {
		return nil, err
	}

	var events []Event
	if keys := changedKeys(b.last, doc.Values); len(keys) > 0 {
		events = append(events, Event{Origin: doc.Writer, Keys: keys})
		b.last = doc.Values
	}

	if !satisfies(doc.Values, want) {
		return events, ErrPreconditionFailed
	}

	next := applyTo(doc.Values, set, del)
	if err := b.writeDocument(&fileDocument{Writer: origin, UpdatedAt: time.Now().UTC(), Values: next}); err != nil {
		return events, err
	}
	if keys := changedKeys(doc.Values, next); len(keys) > 0 {
		events = append(events, Event{Origin: origin, Keys: keys})
	}
	b.last = next
	return events, nil
}

// Subscribe registers fn and starts the file watcher on first use.
func (b *FileBackend) Subscribe(fn func(Event)) (func(), error) {
	if err := b.startWatcher(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	id := b.subs.add(fn)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.subs.remove(id)
			b.mu.Unlock()
		})
	}, nil
}

func (b *FileBackend) startWatcher() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// The directory is watched because renames replace the document's inode.
	if err := watcher.Add(b.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", b.dir, err)
	}

	b.watcher = watcher
	b.stopCh = make(chan struct{})
	b.running = true
	go b.processEvents(watcher, b.stopCh)

	logging.Debug("TokenStore", "Watching %s for session changes", b.dir)
	return nil
}

func (b *FileBackend) processEvents(watcher *fsnotify.Watcher, stopCh chan struct{}) {
	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != sessionFileName {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				b.reload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("TokenStore", err, "Session file watcher error")
		}
	}
}

// reload diffs the document against the last announced snapshot and
// notifies subscribers about anything another process changed.
func (b *FileBackend) reload() {
	b.mu.Lock()
	doc, err := b.readDocument()
	if err != nil {
		b.mu.Unlock()
		logging.Warn("TokenStore", "Failed to reload session file: %v", err)
		return
	}
	keys := changedKeys(b.last, doc.Values)
	if len(keys) == 0 {
		b.mu.Unlock()
		return
	}
	b.last = doc.Values
	fns := b.subs.snapshot()
	b.mu.Unlock()

	ev := Event{Origin: doc.Writer, Keys: keys}
	for _, fn := range fns {
		fn(ev)
	}
}

// readDocument returns an empty document when the file is missing. A
// document that is not valid JSON is treated the same way; the Store deals
// with malformed values inside a valid document.
func (b *FileBackend) readDocument() (*fileDocument, error) {
	// #nosec G304 -- path is derived from configuration, not user input
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return &fileDocument{Values: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.Warn("TokenStore", "Ignoring unreadable session file %s: %v", b.path, err)
		return &fileDocument{Values: map[string]string{}}, nil
	}
	if doc.Values == nil {
		doc.Values = map[string]string{}
	}
	return &doc, nil
}

func (b *FileBackend) writeDocument(doc *fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp, err := os.CreateTemp(b.dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict session file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Close stops the watcher.
func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil
	}
	close(b.stopCh)
	b.running = false
	return b.watcher.Close()
}
