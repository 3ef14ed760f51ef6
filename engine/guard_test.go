package engine

import "testing"

func TestStateGuardTryEnterExit(t *testing.T) {
	g := newStateGuard()
	if !g.tryEnter() {
		t.Fatal("first tryEnter should succeed on a fresh guard")
	}
	if g.tryEnter() {
		t.Fatal("second tryEnter should fail while the guard is held")
	}
	g.exit()
	if !g.tryEnter() {
		t.Fatal("tryEnter should succeed again after exit")
	}
	g.exit()
}

func TestStateGuardNeverBlocks(t *testing.T) {
	g := newStateGuard()
	g.tryEnter()
	done := make(chan bool, 1)
	go func() {
		done <- g.tryEnter()
	}()
	if ok := <-done; ok {
		t.Fatal("concurrent tryEnter should report failure, not block until released")
	}
}
