package mining

import (
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

// Miner owns the block-production mode and the wake-registration slot the
// polling task suspends on. The mode is shared: arbitrarily many readers may
// inspect it concurrently, while a mode change takes exclusive access for
// the instant of the swap.
//
// Poll is driven by a single cooperative task. The task suspends by
// selecting on WakeC after a pending poll and polls again when the waker
// fires (pool notification, interval tick, or mode change).
type Miner struct {
	mu     sync.RWMutex
	mode   Mode
	waker  *Waker
	logger zerolog.Logger
}

// New returns a miner starting in the given mode.
func New(mode Mode, logger zerolog.Logger) *Miner {
	m := &Miner{
		mode:   mode,
		waker:  NewWaker(),
		logger: logger.With().Str("component", "miner").Logger(),
	}
	mode.start(m.waker)
	return m
}

// Poll consults the current mode for the next block's transactions. It never
// blocks. A false return means nothing is due yet; the caller must poll
// again after WakeC fires. A true return with an empty list is a valid
// empty block (interval mode only).
//
// Poll must be driven by a single task at a time.
func (m *Miner) Poll(pool Pool) ([]*types.Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode.poll(pool)
}

// SetMode atomically replaces the mining mode and unconditionally re-fires
// the waker, so a task suspended on the old mode's wake source is retried
// promptly instead of waiting on a source that no longer applies.
func (m *Miner) SetMode(mode Mode) {
	m.mu.Lock()
	old := m.mode
	m.mode = mode
	m.mu.Unlock()

	old.stop()
	mode.start(m.waker)
	m.waker.Wake()

	m.logger.Info().Str("mode", modeName(mode)).Msg("mining mode changed")
}

// IsAutoMine reports whether instant mining is active.
func (m *Miner) IsAutoMine() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.mode.(*Auto)
	return ok
}

// IsInterval reports whether fixed-interval mining is active.
func (m *Miner) IsInterval() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.mode.(*Interval)
	return ok
}

// Wake signals the miner's waker.
func (m *Miner) Wake() {
	m.waker.Wake()
}

// WakeC returns the channel the polling task suspends on.
func (m *Miner) WakeC() <-chan struct{} {
	return m.waker.C()
}

func modeName(mode Mode) string {
	switch mode.(type) {
	case *Auto:
		return "auto"
	case *Interval:
		return "interval"
	default:
		return "disabled"
	}
}
