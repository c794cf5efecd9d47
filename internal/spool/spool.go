// Package spool ingests candidate memories dropped as JSON files into a
// watched directory. Agent hooks write a file per candidate; the watcher
// stages it and renames it .done, or .err when it cannot be staged. Writers
// should create files atomically (write elsewhere, rename in); the watcher
// tolerates slow writers but cannot distinguish a half-written file from a
// malformed one forever.
package spool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/mnemon-ai/mnemon/internal/engine"
)

const (
	debounceWindow = time.Second
	settleDelay    = 100 * time.Millisecond
	rereadDelay    = 500 * time.Millisecond
	ingestTimeout  = 30 * time.Second
)

// Entry is the drop file format.
type Entry struct {
	Branch      string  `json:"branch"`
	Text        string  `json:"text"`
	Payload     []byte  `json:"payload"`
	ContentType string  `json:"content_type"`
	Salience    float64 `json:"salience"`
	TTLHours    int     `json:"ttl_hours"`
	ContextText string  `json:"context_text"`
}

// Watcher stages candidate files dropped into one directory.
type Watcher struct {
	eng      *engine.Engine
	dir      string
	fsNotify *fsnotify.Watcher
	log      zerolog.Logger
	debounce map[string]time.Time
	mu       sync.Mutex
	done     chan struct{}
}

// New creates the spool directory if needed and a watcher over it.
func New(eng *engine.Engine, dir string, log zerolog.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start watcher: %w", err)
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{
		eng:      eng,
		dir:      dir,
		fsNotify: fsWatcher,
		log:      log.With().Str("component", "spool").Logger(),
		debounce: make(map[string]time.Time),
		done:     make(chan struct{}),
	}, nil
}

// Start sweeps files already in the directory, then watches for new ones.
func (w *Watcher) Start() {
	w.sweep()
	go w.eventLoop()
}

func (w *Watcher) Close() {
	w.fsNotify.Close()
	close(w.done)
}

func (w *Watcher) sweep() {
	matches, err := filepath.Glob(filepath.Join(w.dir, "*.json"))
	if err != nil {
		w.log.Error().Err(err).Msg("sweep failed")
		return
	}
	for _, path := range matches {
		w.ingest(path)
	}
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsNotify.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsNotify.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !strings.HasSuffix(event.Name, ".json") {
		return
	}

	// A writer emits a burst of events per file; take the first and ignore
	// the rest of the window.
	w.mu.Lock()
	now := time.Now()
	if last, ok := w.debounce[event.Name]; ok && now.Sub(last) < debounceWindow {
		w.mu.Unlock()
		return
	}
	w.debounce[event.Name] = now
	w.mu.Unlock()

	go func(path string) {
		time.Sleep(settleDelay)
		w.ingest(path)
	}(event.Name)
}

func (w *Watcher) ingest(path string) {
	entry, err := readEntry(path)
	if err != nil {
		// The writer may still be flushing; give it one more chance.
		time.Sleep(rereadDelay)
		entry, err = readEntry(path)
	}
	if err != nil {
		w.log.Warn().Err(err).Str("file", path).Msg("unreadable candidate file")
		w.finish(path, ".err")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	in := engine.StageInput{
		Branch:      entry.Branch,
		Payload:     entry.Payload,
		ContentType: entry.ContentType,
		Salience:    entry.Salience,
		TTLHours:    entry.TTLHours,
	}
	if len(in.Payload) == 0 && entry.Text != "" {
		in.Payload = []byte(entry.Text)
		if in.ContentType == "" {
			in.ContentType = "text/plain"
		}
	}
	if entry.ContextText != "" && w.eng.Embedder != nil {
		if vec, embedErr := w.eng.Embedder.Embed(ctx, entry.ContextText); embedErr == nil {
			in.ContextEmbedding = vec
		}
	}

	c, err := w.eng.Stage(ctx, in)
	if err != nil {
		w.log.Warn().Err(err).Str("file", path).Msg("stage failed")
		w.finish(path, ".err")
		return
	}

	w.log.Info().Str("file", path).Str("candidate", c.ID).Str("branch", c.Branch).Msg("staged")
	w.finish(path, ".done")
}

func readEntry(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &entry, nil
}

// finish renames a processed file so it is never picked up again. Losing the
// race to another ingest of the same path is fine; the rename just fails.
func (w *Watcher) finish(path, suffix string) {
	if err := os.Rename(path, path+suffix); err != nil && !os.IsNotExist(err) {
		w.log.Error().Err(err).Str("file", path).Msg("rename failed")
	}
}
