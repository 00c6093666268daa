package watch

import (
	"context"
	"time"
)

// Debounce calls fire once for every burst of signals on in. A burst ends
// when window passes without a new signal.
//
// Precondition: window > 0.
// Postcondition: Returns when ctx is done or in is closed; a pending burst is
// flushed when in closes unless ctx is already done, and dropped otherwise.
func Debounce(ctx context.Context, in <-chan struct{}, window time.Duration, fire func()) {
	timer := time.NewTimer(window)
	timer.Stop()
	defer timer.Stop()
	pending := false
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-in:
			if !ok {
				if pending && ctx.Err() == nil {
					fire()
				}
				return
			}
			pending = true
			timer.Reset(window)
		case <-timer.C:
			if pending {
				pending = false
				fire()
			}
		}
	}
}
