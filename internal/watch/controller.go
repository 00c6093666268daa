package watch

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrWatchNotAllowed is returned by Start when watching is disabled by
// configuration.
var ErrWatchNotAllowed = errors.New("file watching is not allowed")

// Status reports whether watching is permitted and whether it is running.
type Status struct {
	Active  bool `json:"active"`
	Allowed bool `json:"allowed"`
}

// Controller starts and stops a Watcher on demand.
type Controller struct {
	logger   *zap.Logger
	allowed  bool
	dir      string
	opts     Options
	onChange func()

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	// listeners are told about every change of Active.
	listeners []func(Status)
}

// NewController creates an inactive Controller.
func NewController(logger *zap.Logger, allowed bool, dir string, opts Options, onChange func()) *Controller {
	return &Controller{logger: logger, allowed: allowed, dir: dir, opts: opts, onChange: onChange}
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{Active: c.cancel != nil, Allowed: c.allowed}
}

// OnChange registers fn to be called after the watcher starts or stops.
func (c *Controller) OnChange(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Start launches the watcher. Starting an active controller is a no-op.
//
// Postcondition: Returns ErrWatchNotAllowed when watching is disallowed.
func (c *Controller) Start() error {
	if !c.allowed {
		return ErrWatchNotAllowed
	}
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	listeners := c.listeners
	c.mu.Unlock()

	w := New(c.logger, c.dir, c.opts, c.onChange)
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil {
			c.logger.Error("file watcher stopped", zap.Error(err))
			c.clear(done)
		}
	}()
	c.notify(listeners, Status{Active: true, Allowed: true})
	return nil
}

// clear marks the controller inactive if done still belongs to the running
// watcher.
func (c *Controller) clear(done chan struct{}) {
	c.mu.Lock()
	if c.done != done {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.cancel, c.done = nil, nil
	listeners := c.listeners
	c.mu.Unlock()
	c.notify(listeners, Status{Active: false, Allowed: c.allowed})
}

// Stop halts the watcher and waits for it to exit. Stopping an inactive
// controller is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	listeners := c.listeners
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info("file watcher stopped")
	c.notify(listeners, Status{Active: false, Allowed: c.allowed})
}

func (c *Controller) notify(listeners []func(Status), s Status) {
	for _, fn := range listeners {
		fn(s)
	}
}
