// Package loader runs parse passes over a save directory and owns the current
// snapshot.
//
// At most one pass is applied at a time. A Load always starts a new pass and
// supersedes any pass in flight; Reload joins the pass in flight when there
// is one.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cory-johannsen/palworld-lens/internal/gamedata"
	"github.com/cory-johannsen/palworld-lens/internal/gvas"
	"github.com/cory-johannsen/palworld-lens/internal/model"
	"github.com/cory-johannsen/palworld-lens/internal/schema"
)

const tracerName = "github.com/cory-johannsen/palworld-lens/internal/loader"

// Options configures where a pass looks for files and how it decodes them.
type Options struct {
	LevelFile  string
	MetaFile   string
	PlayersDir string
	// PlayerWorkers bounds concurrent player save decodes.
	PlayerWorkers int
	Decode        gvas.Options
	// Now stamps snapshots. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the file layout of a Palworld world directory.
func DefaultOptions() Options {
	return Options{
		LevelFile:     "Level.sav",
		MetaFile:      "LevelMeta.sav",
		PlayersDir:    "Players",
		PlayerWorkers: 4,
		Decode:        gvas.PalworldOptions(),
		Now:           time.Now,
	}
}

// pass is one parse request.
type pass struct {
	seq    uint64
	dir    string
	cancel context.CancelFunc
	done   chan struct{}
	snap   *model.Snapshot
	err    error
}

// Loader runs parse passes and publishes their snapshots.
type Loader struct {
	logger  *zap.Logger
	schemas *schema.Set
	tables  *gamedata.Tables
	opts    Options
	tracer  trace.Tracer

	reloads singleflight.Group

	mu        sync.Mutex
	seq       uint64
	current   *pass
	last      *pass
	dir       string
	listeners []func(Event)

	// notifyMu orders listener calls; notified is the highest seq delivered.
	notifyMu sync.Mutex
	notified uint64

	view atomic.Pointer[View]

	// beforeParse is a test hook run at the start of every pass.
	beforeParse func(seq uint64)
}

// New creates a Loader in StateUnloaded.
//
// Precondition: schemas must define the character, player, pal and guild
// kinds; tables must be non-nil.
// Postcondition: Returns a *schema.SchemaError when a required kind is missing.
func New(logger *zap.Logger, schemas *schema.Set, tables *gamedata.Tables, opts Options) (*Loader, error) {
	if err := schemas.Require(schema.KindCharacter, schema.KindPlayer, schema.KindPal, schema.KindGuild); err != nil {
		return nil, err
	}
	if tables == nil {
		return nil, errors.New("loader: lookup tables are required")
	}
	def := DefaultOptions()
	if opts.LevelFile == "" {
		opts.LevelFile = def.LevelFile
	}
	if opts.MetaFile == "" {
		opts.MetaFile = def.MetaFile
	}
	if opts.PlayersDir == "" {
		opts.PlayersDir = def.PlayersDir
	}
	if opts.PlayerWorkers <= 0 {
		opts.PlayerWorkers = def.PlayerWorkers
	}
	if opts.Decode.Hints == nil {
		opts.Decode.Hints = def.Decode.Hints
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := &Loader{
		logger:  logger,
		schemas: schemas,
		tables:  tables,
		opts:    opts,
		tracer:  otel.Tracer(tracerName),
	}
	l.view.Store(&View{Status: Status{State: StateUnloaded}})
	return l, nil
}

// Snapshot returns the current snapshot and status. It never blocks.
func (l *Loader) Snapshot() View {
	return *l.view.Load()
}

// OnTransition registers fn to be called after every state transition, in
// registration order, from the goroutine that caused it.
//
// Precondition: fn must not call Load or Reload synchronously.
func (l *Loader) OnTransition(fn func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Load parses dir and, on success, publishes the new snapshot. A pass still
// in flight is cancelled and its result discarded.
//
// Postcondition: On failure the previous snapshot stays published and the
// state becomes StateFailed. Cancelling ctx stops the wait, not the pass.
func (l *Loader) Load(ctx context.Context, dir string) (*model.Snapshot, error) {
	p := l.start(ctx, dir)
	return l.wait(ctx, p)
}

// Reload re-parses the most recently loaded directory. Concurrent calls, and
// calls made while any pass is in flight, share that pass.
//
// Postcondition: Returns ErrNotConfigured before the first Load.
func (l *Loader) Reload(ctx context.Context) (*model.Snapshot, error) {
	l.mu.Lock()
	dir := l.dir
	l.mu.Unlock()
	if dir == "" {
		return nil, ErrNotConfigured
	}
	ch := l.reloads.DoChan("reload", func() (any, error) {
		l.mu.Lock()
		p := l.current
		l.mu.Unlock()
		if p == nil {
			p = l.start(context.WithoutCancel(ctx), dir)
		}
		return l.follow(p)
	})
	select {
	case res := <-ch:
		snap, _ := res.Val.(*model.Snapshot)
		return snap, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// follow waits for p and, when p was superseded, for the pass that replaced
// it.
func (l *Loader) follow(p *pass) (*model.Snapshot, error) {
	for {
		<-p.done
		if !errors.Is(p.err, ErrSuperseded) {
			return p.snap, p.err
		}
		l.mu.Lock()
		next := l.current
		if next == nil {
			next = l.last
		}
		l.mu.Unlock()
		if next == nil || next == p {
			return p.snap, p.err
		}
		p = next
	}
}

func (l *Loader) wait(ctx context.Context, p *pass) (*model.Snapshot, error) {
	select {
	case <-p.done:
		return p.snap, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// start registers a new pass, cancels the one in flight and runs the new one
// in the background.
func (l *Loader) start(ctx context.Context, dir string) *pass {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	l.mu.Lock()
	l.seq++
	p := &pass{seq: l.seq, dir: dir, cancel: cancel, done: make(chan struct{})}
	if l.current != nil {
		l.current.cancel()
	}
	l.current = p
	l.dir = dir
	prev := l.view.Load()
	next := &View{Snapshot: prev.Snapshot, Status: prev.Status}
	next.Status.State = StateLoading
	next.Status.Dir = dir
	next.Status.Seq = p.seq
	l.view.Store(next)
	listeners := l.listeners
	l.mu.Unlock()

	l.logger.Info("parse pass started", zap.Uint64("seq", p.seq), zap.String("dir", dir))
	l.notify(listeners, Event{From: prev.Status.State, To: StateLoading, Seq: p.seq, Snapshot: prev.Snapshot})

	go l.run(runCtx, p)
	return p
}

func (l *Loader) run(ctx context.Context, p *pass) {
	defer close(p.done)
	defer p.cancel()

	if l.beforeParse != nil {
		l.beforeParse(p.seq)
	}
	started := time.Now()
	snap, err := l.parse(ctx, p.dir)

	l.mu.Lock()
	if p.seq != l.seq {
		l.mu.Unlock()
		p.err = fmt.Errorf("pass %d: %w", p.seq, ErrSuperseded)
		l.logger.Info("parse pass discarded", zap.Uint64("seq", p.seq), zap.NamedError("cause", err))
		return
	}
	l.current = nil
	l.last = p
	prev := l.view.Load()
	next := &View{Snapshot: prev.Snapshot, Status: prev.Status}
	next.Status.LastAttempt = l.opts.Now()
	ev := Event{From: prev.Status.State, Seq: p.seq}
	if err != nil {
		p.err = err
		next.Status.State = StateFailed
		next.Status.Err = err.Error()
		ev.Err = err
	} else {
		p.snap = snap
		next.Snapshot = snap
		next.Status.State = StateLoaded
		next.Status.Err = ""
	}
	ev.To = next.Status.State
	ev.Snapshot = next.Snapshot
	l.view.Store(next)
	listeners := l.listeners
	l.mu.Unlock()

	elapsed := time.Since(started)
	if err != nil {
		l.logger.Error("parse pass failed",
			zap.Uint64("seq", p.seq),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	} else {
		c := snap.Counts()
		l.logger.Info("parse pass loaded",
			zap.Uint64("seq", p.seq),
			zap.Duration("elapsed", elapsed),
			zap.Int("players", c["players"]),
			zap.Int("pals", c["pals"]),
			zap.Int("guilds", c["guilds"]),
			zap.Int("bases", c["bases"]),
			zap.Int("skipped_characters", snap.Stats.SkippedCharacters),
			zap.Int("unresolved_owners", snap.Stats.UnresolvedOwners),
		)
	}
	l.notify(listeners, ev)
}

// notify delivers ev to listeners one event at a time. Events of a pass older
// than one already delivered are dropped, so listeners never see a stale
// snapshot after a newer transition.
func (l *Loader) notify(listeners []func(Event), ev Event) {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()
	if ev.Seq < l.notified {
		l.logger.Debug("dropping stale transition",
			zap.Uint64("seq", ev.Seq),
			zap.Uint64("delivered", l.notified),
			zap.String("to", string(ev.To)),
		)
		return
	}
	l.notified = ev.Seq
	for _, fn := range listeners {
		fn(ev)
	}
}
