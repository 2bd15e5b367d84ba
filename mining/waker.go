package mining

// Waker is the wake-registration slot shared between the polling task and
// anything that can make new work available (the transaction pool, a mode
// timer, a mode change). The polling task suspends on C after a pending
// poll; Wake never blocks and coalesces repeated signals.
type Waker struct {
	ch chan struct{}
}

// NewWaker returns an unsignalled waker.
func NewWaker() *Waker {
	return &Waker{ch: make(chan struct{}, 1)}
}

// Wake signals the waker. A signal already pending is left in place.
func (w *Waker) Wake() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// C returns the channel the polling task suspends on.
func (w *Waker) C() <-chan struct{} {
	return w.ch
}
