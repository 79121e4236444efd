// Package watcher implements the directory-watcher subsystem: a
// startup non-recursive scan plus a recursive live filesystem monitor,
// debounced against partial writes, that submits new-file candidates
// for the Skip Oracle and Scheduler to accept or reject.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

var watchedExtensions = map[string]bool{".mkv": true, ".srt": true, ".ass": true}

const debounceWindow = 2 * time.Second

func matchesExtension(path string) bool {
	return watchedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Submitter is how the Supervisor hands off a stable candidate file; the
// implementation (main wiring) runs the Skip Oracle and, if it says
// PROCEED, calls the Scheduler.
type Submitter func(watcherID int64, path string) error

type entry struct {
	id      int64
	path    string
	fsw     *fsnotify.Watcher
	stop    chan struct{}
	timers  map[string]*time.Timer
	timerMu sync.Mutex
}

type Supervisor struct {
	submit Submitter
	log    zerolog.Logger

	mu      sync.Mutex
	entries map[int64]*entry
}

func New(submit Submitter, log zerolog.Logger) *Supervisor {
	return &Supervisor{submit: submit, log: log, entries: make(map[int64]*entry)}
}

// StartWatcher performs the startup scan then begins the recursive live
// monitor for one enabled Watcher row.
func (s *Supervisor) StartWatcher(id int64, path string) error {
	s.mu.Lock()
	if _, exists := s.entries[id]; exists {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.scanExisting(id, path); err != nil {
		s.log.Warn().Err(err).Int64("watcher_id", id).Msg("startup scan failed")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addRecursive(fsw, path); err != nil {
		fsw.Close()
		return err
	}

	e := &entry{id: id, path: path, fsw: fsw, stop: make(chan struct{}), timers: make(map[string]*time.Timer)}
	s.mu.Lock()
	s.entries[id] = e
	s.mu.Unlock()

	go s.eventLoop(e)
	return nil
}

// scanExisting is the one-shot non-recursive enumeration run when a
// watcher starts, picking up files that landed while nobody watched.
func (s *Supervisor) scanExisting(id int64, path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	for _, de := range entries {
		if de.IsDir() || !matchesExtension(de.Name()) {
			continue
		}
		full := filepath.Join(path, de.Name())
		if err := s.submit(id, full); err != nil {
			s.log.Warn().Err(err).Str("path", full).Msg("startup scan candidate rejected")
		}
	}
	return nil
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			// tolerate a single unreadable subdirectory; keep walking the rest
			return nil
		}
		if d.IsDir() {
			if addErr := fsw.Add(p); addErr != nil {
				return nil
			}
		}
		return nil
	})
}

func (s *Supervisor) eventLoop(e *entry) {
	for {
		select {
		case <-e.stop:
			e.fsw.Close()
			return
		case ev, ok := <-e.fsw.Events:
			if !ok {
				return
			}
			s.handleEvent(e, ev)
		case err, ok := <-e.fsw.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Int64("watcher_id", e.id).Msg("watcher event stream error")
		}
	}
}

func (s *Supervisor) handleEvent(e *entry, ev fsnotify.Event) {
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = e.fsw.Add(ev.Name)
			return
		}
	}
	if ev.Op&fsnotify.Create != fsnotify.Create && ev.Op&fsnotify.Write != fsnotify.Write && ev.Op&fsnotify.Rename != fsnotify.Rename {
		return
	}
	if !matchesExtension(ev.Name) {
		return
	}

	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	if t, exists := e.timers[ev.Name]; exists {
		t.Stop()
	}
	e.timers[ev.Name] = time.AfterFunc(debounceWindow, func() { s.onStable(e, ev.Name) })
}

func (s *Supervisor) onStable(e *entry, path string) {
	e.timerMu.Lock()
	delete(e.timers, path)
	e.timerMu.Unlock()

	if !isStable(path) {
		e.timerMu.Lock()
		e.timers[path] = time.AfterFunc(debounceWindow, func() { s.onStable(e, path) })
		e.timerMu.Unlock()
		return
	}

	if err := s.submit(e.id, path); err != nil {
		s.log.Debug().Err(err).Str("path", path).Msg("watcher candidate rejected")
	}
}

// isStable reports whether the file's size is unchanged across a short
// window, guarding against submitting a file mid-write.
func isStable(path string) bool {
	info1, err := os.Stat(path)
	if err != nil || info1.Size() == 0 {
		return false
	}
	time.Sleep(300 * time.Millisecond)
	info2, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info1.Size() == info2.Size()
}

// StopWatcher tears down the live monitor for a watcher (toggle off or
// delete both call this; delete additionally removes the row).
func (s *Supervisor) StopWatcher(id int64) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if ok {
		close(e.stop)
	}
}
