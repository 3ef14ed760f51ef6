package engine

import "github.com/taskfleet/clustersched/schederr"

// stateGuard serializes scheduling rounds and mutation calls against
// each other without ever blocking a caller: a second caller that
// arrives while a round is in flight is turned away immediately with
// a usage error rather than queued. sync.Mutex has no non-blocking
// TryLock in this module's Go version, so the guard is built from the
// standard one-slot-buffered-channel idiom instead of adding a
// dependency for what is a three-line primitive.
type stateGuard struct {
	slot chan struct{}
}

func newStateGuard() *stateGuard {
	g := &stateGuard{slot: make(chan struct{}, 1)}
	g.slot <- struct{}{}
	return g
}

// tryEnter acquires the guard, returning false without blocking if
// another round or mutation already holds it.
func (g *stateGuard) tryEnter() bool {
	select {
	case <-g.slot:
		return true
	default:
		return false
	}
}

func (g *stateGuard) exit() {
	g.slot <- struct{}{}
}

var errConcurrentEntry = schederr.Newf(schederr.ConcurrentEntry, "a scheduling round or mutation is already in progress")
