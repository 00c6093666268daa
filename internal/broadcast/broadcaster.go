// Package broadcast fans snapshot updates out to live subscribers.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/palworld-lens/internal/loader"
	"github.com/cory-johannsen/palworld-lens/internal/model"
)

// Frame types.
const (
	FrameInit   = "init"
	FrameUpdate = "update"
	FramePing   = "ping"
	FrameError  = "error"
)

const (
	DefaultBufferSize        = 10
	DefaultKeepaliveInterval = 30 * time.Second
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("broadcaster closed")

// Frame is the wire form of every pushed message.
type Frame struct {
	Type     string          `json:"type"`
	Seq      uint64          `json:"seq,omitempty"`
	State    loader.State    `json:"state,omitempty"`
	Error    string          `json:"error,omitempty"`
	Snapshot *model.Snapshot `json:"snapshot,omitempty"`
	Time     time.Time       `json:"time"`
}

// Source provides the current snapshot for init frames.
type Source interface {
	Snapshot() loader.View
}

// Options tunes a Broadcaster.
type Options struct {
	BufferSize        int
	KeepaliveInterval time.Duration
	// WatchActive reports whether the file watcher is running.
	WatchActive func() bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Broadcaster owns the subscriber set. All methods are safe for concurrent
// use.
type Broadcaster struct {
	logger *zap.Logger
	source Source
	opts   Options

	mu     sync.RWMutex
	subs   map[string]*Subscriber
	closed bool
}

// New creates a Broadcaster serving init frames from source.
func New(logger *zap.Logger, source Source, opts Options) *Broadcaster {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Broadcaster{
		logger: logger,
		source: source,
		opts:   opts,
		subs:   make(map[string]*Subscriber),
	}
}

func (b *Broadcaster) encode(f Frame) ([]byte, error) {
	f.Time = b.opts.Now()
	return json.Marshal(f)
}

// Subscribe registers a new subscriber and queues its init frame, which
// carries the current snapshot and load state.
//
// The subscriber is registered before the snapshot is read, so a transition
// published in between is delivered after the init frame instead of lost.
//
// Postcondition: Returns ErrClosed after Close.
func (b *Broadcaster) Subscribe() (*Subscriber, error) {
	s := newSubscriber(uuid.NewString(), b.opts.BufferSize)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.subs[s.id] = s
	count := len(b.subs)
	b.mu.Unlock()

	view := b.source.Snapshot()
	frame, err := b.encode(Frame{
		Type:     FrameInit,
		Seq:      view.Status.Seq,
		State:    view.Status.State,
		Error:    view.Status.Err,
		Snapshot: view.Snapshot,
	})
	if err != nil {
		b.Unsubscribe(s.id)
		return nil, err
	}
	if err := s.start(frame, view.Status.Seq, b.opts.Now()); err != nil {
		b.Unsubscribe(s.id)
		return nil, err
	}
	b.logger.Debug("subscriber added", zap.String("id", s.id), zap.Int("subscribers", count))
	return s, nil
}

// Unsubscribe removes and closes the subscriber with id. Unknown ids are
// ignored.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	s, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()
	if ok {
		s.close()
	}
}

// SubscriberCount returns the number of live subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// HasActiveWatch reports whether the file watcher is currently running.
func (b *Broadcaster) HasActiveWatch() bool {
	return b.opts.WatchActive != nil && b.opts.WatchActive()
}

// Publish reacts to a loader transition: StateLoaded sends an update frame
// with the new snapshot, StateFailed an error frame. Other transitions are
// ignored.
func (b *Broadcaster) Publish(ev loader.Event) {
	var f Frame
	switch ev.To {
	case loader.StateLoaded:
		f = Frame{Type: FrameUpdate, Seq: ev.Seq, State: ev.To, Snapshot: ev.Snapshot}
	case loader.StateFailed:
		f = Frame{Type: FrameError, Seq: ev.Seq, State: ev.To}
		if ev.Err != nil {
			f.Error = ev.Err.Error()
		}
	default:
		return
	}
	frame, err := b.encode(f)
	if err != nil {
		b.logger.Error("encoding frame", zap.String("type", f.Type), zap.Error(err))
		return
	}
	b.fanOut(frame, ev.Seq, nil)
}

// fanOut pushes frame to every subscriber accepted by want (all when nil) and
// drops the subscribers that cannot take it.
func (b *Broadcaster) fanOut(frame []byte, seq uint64, want func(*Subscriber) bool) {
	now := b.opts.Now()
	b.mu.RLock()
	targets := make([]*Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if want == nil || want(s) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if err := s.push(frame, seq, now); err != nil {
			b.logger.Warn("dropping subscriber", zap.String("id", s.id), zap.Error(err))
			b.Unsubscribe(s.id)
		}
	}
}

// Keepalive sends a ping to every subscriber idle for at least the keepalive
// interval.
func (b *Broadcaster) Keepalive() {
	frame, err := b.encode(Frame{Type: FramePing})
	if err != nil {
		return
	}
	cutoff := b.opts.Now().Add(-b.opts.KeepaliveInterval)
	b.fanOut(frame, 0, func(s *Subscriber) bool {
		return !s.idleSince().After(cutoff)
	})
}

// Run sends keepalives until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.opts.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.Keepalive()
		}
	}
}

// Close removes every subscriber and rejects new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscriber)
	b.closed = true
	b.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
}
