package reconciler

import "context"

// Signal is the level-triggered update signal shared between the per-pod
// refresh jobs and the incremental update loop. It is passed explicitly to
// every task that reads or triggers reconciliation.
type Signal struct {
	ch chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Set raises the signal. Setting an already-raised signal is a no-op.
func (s *Signal) Set() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the signal is raised or the context is done.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clear drops a pending raise, coalescing every Set that happened since the
// last Wait.
func (s *Signal) Clear() {
	select {
	case <-s.ch:
	default:
	}
}
