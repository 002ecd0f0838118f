// Package gate implements the one-shot readiness latch every public
// operation suspends on: construction starts initialisation in the
// background, and callers await its result before proceeding. A failed
// initialisation is terminal — the gate never opens, and every waiter
// (present and future) receives the same error forever.
package gate

// Gate is a future that resolves exactly once, successfully or not.
type Gate struct {
	done chan struct{}
	err  error
}

// New starts init in the background and returns a Gate that opens when it
// completes. init's error, if any, is returned to every caller of Await for
// the lifetime of the Gate.
func New(init func() error) *Gate {
	g := &Gate{done: make(chan struct{})}
	go func() {
		defer close(g.done)
		g.err = init()
	}()
	return g
}

// Await blocks until initialisation has completed, then returns its result.
// Once the gate has opened, Await returns immediately.
func (g *Gate) Await() error {
	<-g.done
	return g.err
}
