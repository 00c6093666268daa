package loader

import (
	"errors"
	"time"

	"github.com/cory-johannsen/palworld-lens/internal/model"
)

// State is the loader lifecycle state.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateLoaded   State = "loaded"
	StateFailed   State = "failed"
)

var (
	// ErrSuperseded is returned by a pass whose result was discarded because
	// a newer pass started after it.
	ErrSuperseded = errors.New("parse pass superseded by a newer request")
	// ErrNotConfigured is returned by Reload before any Load named a save
	// directory.
	ErrNotConfigured = errors.New("no save directory loaded yet")
)

// Status describes the loader at one instant.
type Status struct {
	State State `json:"state"`
	// Err is the reason of the most recent failed pass. It is cleared by the
	// next successful pass.
	Err string `json:"error,omitempty"`
	// Dir is the save directory of the most recent request.
	Dir string `json:"dir,omitempty"`
	// Seq is the sequence number of the most recent request.
	Seq uint64 `json:"seq"`
	// LastAttempt is when the most recent pass finished.
	LastAttempt time.Time `json:"lastAttempt,omitzero"`
}

// View is a consistent pairing of the current snapshot and status. Snapshot
// is the last successfully loaded snapshot and may be nil.
type View struct {
	Snapshot *model.Snapshot
	Status   Status
}

// Event reports a state transition to OnTransition listeners.
type Event struct {
	From     State
	To       State
	Seq      uint64
	Snapshot *model.Snapshot
	Err      error
}
