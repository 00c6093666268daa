package broadcast

import (
	"fmt"
	"sync"
	"time"
)

// Subscriber is one live push channel. Frames are pre-encoded and delivered
// through a bounded buffer; a full buffer marks the subscriber stale.
type Subscriber struct {
	id     string
	frames chan []byte
	mu     sync.Mutex
	closed bool
	// lastSent is when the most recent frame was enqueued.
	lastSent time.Time
	// ready is set once the init frame is queued. Frames pushed before that
	// wait in held.
	ready bool
	held  []heldFrame
}

type heldFrame struct {
	frame []byte
	seq   uint64
}

// newSubscriber creates a Subscriber with an open frame channel.
//
// Precondition: id must be non-empty.
func newSubscriber(id string, bufferSize int) *Subscriber {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Subscriber{id: id, frames: make(chan []byte, bufferSize)}
}

// ID returns the subscriber's identifier.
func (s *Subscriber) ID() string {
	return s.id
}

// push enqueues one encoded frame carrying pass seq (0 for pings). Before
// the init frame is queued the frame is held instead.
//
// Postcondition: Returns an error if the subscriber is closed or its buffer
// is full.
func (s *Subscriber) push(frame []byte, seq uint64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("subscriber %s is closed", s.id)
	}
	if !s.ready {
		if len(s.held) == cap(s.frames) {
			return fmt.Errorf("subscriber %s frame buffer full", s.id)
		}
		s.held = append(s.held, heldFrame{frame: frame, seq: seq})
		return nil
	}
	return s.send(frame, now)
}

func (s *Subscriber) send(frame []byte, now time.Time) error {
	select {
	case s.frames <- frame:
		s.lastSent = now
		return nil
	default:
		return fmt.Errorf("subscriber %s frame buffer full", s.id)
	}
}

// start queues the init frame for pass initSeq, then every held frame from a
// later pass. Held frames the init frame already covers are dropped.
func (s *Subscriber) start(init []byte, initSeq uint64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("subscriber %s is closed", s.id)
	}
	s.ready = true
	held := s.held
	s.held = nil
	if err := s.send(init, now); err != nil {
		return err
	}
	for _, h := range held {
		if h.seq <= initSeq {
			continue
		}
		if err := s.send(h.frame, now); err != nil {
			return err
		}
	}
	return nil
}

// idleSince reports when the subscriber last received a frame.
func (s *Subscriber) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSent
}

// Frames returns the read-only frame channel. It is closed when the
// subscriber is removed.
func (s *Subscriber) Frames() <-chan []byte {
	return s.frames
}

// close marks the subscriber closed and closes its channel.
func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
}

// Closed reports whether the subscriber has been removed.
func (s *Subscriber) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
