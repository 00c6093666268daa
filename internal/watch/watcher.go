// Package watch turns file-system activity in a save directory into
// debounced reload requests.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Options tunes a Watcher.
type Options struct {
	// Debounce is the quiet period that ends a burst of file events.
	Debounce time.Duration
	// StartupGrace ignores events for this long after the watcher starts.
	StartupGrace time.Duration
	// PlayersDir is the per-player save subdirectory, watched when present.
	PlayersDir string
}

// DefaultOptions returns a 1s debounce and a 3s startup grace.
func DefaultOptions() Options {
	return Options{Debounce: time.Second, StartupGrace: 3 * time.Second, PlayersDir: "Players"}
}

// Watcher monitors one save directory.
type Watcher struct {
	logger   *zap.Logger
	dir      string
	opts     Options
	onChange func()
}

// New creates a Watcher for dir that calls onChange once per burst of save
// file changes.
//
// Precondition: onChange must be non-nil.
func New(logger *zap.Logger, dir string, opts Options, onChange func()) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultOptions().Debounce
	}
	if opts.PlayersDir == "" {
		opts.PlayersDir = DefaultOptions().PlayersDir
	}
	return &Watcher{logger: logger, dir: dir, opts: opts, onChange: onChange}
}

// relevant reports whether ev concerns a save file.
func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	return strings.EqualFold(filepath.Ext(ev.Name), ".sav")
}

// Run watches until ctx is done.
//
// Postcondition: Returns nil on cancellation, or an error when the directory
// cannot be watched.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	players := filepath.Join(w.dir, w.opts.PlayersDir)
	if err := fw.Add(players); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Warn("not watching player saves", zap.String("dir", players), zap.Error(err))
	}

	signals := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Debounce(ctx, signals, w.opts.Debounce, w.onChange)
	}()
	defer func() { <-done }()
	defer close(signals)

	graceUntil := time.Now().Add(w.opts.StartupGrace)
	w.logger.Info("watching save directory", zap.String("dir", w.dir), zap.Duration("debounce", w.opts.Debounce))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) && filepath.Clean(ev.Name) == players {
				if err := fw.Add(players); err != nil {
					w.logger.Warn("watching new player save directory", zap.Error(err))
				}
				continue
			}
			if !relevant(ev) || time.Now().Before(graceUntil) {
				continue
			}
			w.logger.Debug("save file event", zap.String("file", ev.Name), zap.Stringer("op", ev.Op))
			select {
			case signals <- struct{}{}:
			default:
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}
