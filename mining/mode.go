package mining

import (
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Pool is the miner's view of the pending transaction pool. Ordering and
// prioritization are the pool's own concern.
type Pool interface {
	// Ready pops up to max ready transactions. max <= 0 means all.
	Ready(max int) []*types.Transaction
}

// Mode decides which ready transactions, if any, go into the next block and
// when. A mode's poll never blocks; the mode set is closed.
type Mode interface {
	// poll returns the transactions for the next block. The second return is
	// false when the poller should suspend until the waker fires. A true
	// return with an empty list is a valid outcome (an empty block).
	poll(pool Pool) ([]*types.Transaction, bool)

	// start attaches the miner's waker. Called once when the mode is
	// installed.
	start(w *Waker)

	// stop releases mode resources. Called when the mode is replaced.
	stop()
}

// Disabled is the mode that never produces a block.
type Disabled struct{}

// NewDisabled returns a mode whose poll is always pending.
func NewDisabled() *Disabled { return &Disabled{} }

func (*Disabled) poll(Pool) ([]*types.Transaction, bool) { return nil, false }
func (*Disabled) start(*Waker)                           {}
func (*Disabled) stop()                                  {}

type pendingState int8

const (
	pendingUnknown pendingState = iota
	pendingYes
	pendingNo
)

// Auto is the event-driven "instant mining" mode: a block is produced as
// soon as the pool announces ready transactions, pulling at most limit
// transactions per block.
//
// The notification channel decouples "a transaction became ready" (cheap,
// always observed) from "how many transactions to pull" (capped per poll).
// The tri-state hasPending flag avoids re-scanning an empty pool between
// notifications.
type Auto struct {
	limit      int
	notif      <-chan common.Hash
	hasPending pendingState
}

// NewAuto returns an instant-mining mode pulling at most limit transactions
// per block. notif carries the hashes of newly-ready pool transactions.
// A limit of zero yields a mode that never produces a block.
func NewAuto(limit int, notif <-chan common.Hash) *Auto {
	return &Auto{limit: limit, notif: notif}
}

// Limit returns the per-block transaction cap.
func (a *Auto) Limit() int { return a.limit }

func (a *Auto) poll(pool Pool) ([]*types.Transaction, bool) {
	// Drain every queued notification without blocking. Any delivery means
	// the pool has (or had) work for us.
	for {
		select {
		case <-a.notif:
			a.hasPending = pendingYes
			continue
		default:
		}
		break
	}

	if a.hasPending == pendingNo {
		return nil, false
	}

	var txs []*types.Transaction
	if a.limit > 0 {
		txs = pool.Ready(a.limit)
	}

	// Pulling exactly limit transactions means the pool may hold more beyond
	// the cap, so the next poll must scan again even without a notification.
	if len(txs) == a.limit {
		a.hasPending = pendingYes
	} else {
		a.hasPending = pendingNo
	}

	if len(txs) == 0 {
		return nil, false
	}
	return txs, true
}

func (a *Auto) start(*Waker) {}
func (a *Auto) stop()        {}

// Interval produces a block on a fixed cadence, pulling all currently-ready
// transactions on each tick. A tick with an empty pool produces an empty
// block; emptiness is not distinguished at this layer.
type Interval struct {
	period time.Duration
	ticker *time.Ticker
	fired  atomic.Bool
	done   chan struct{}
}

// NewInterval returns a fixed-cadence mode. The first tick lands one period
// after construction. A non-positive period is clamped to one second, the
// smallest cadence the configuration surface hands out.
func NewInterval(period time.Duration) *Interval {
	if period <= 0 {
		period = time.Second
	}
	return &Interval{
		period: period,
		ticker: time.NewTicker(period),
		done:   make(chan struct{}),
	}
}

// Period returns the configured block interval.
func (i *Interval) Period() time.Duration { return i.period }

func (i *Interval) poll(pool Pool) ([]*types.Transaction, bool) {
	if !i.fired.Swap(false) {
		return nil, false
	}
	return pool.Ready(0), true
}

func (i *Interval) start(w *Waker) {
	go func() {
		for {
			select {
			case <-i.ticker.C:
				i.fired.Store(true)
				w.Wake()
			case <-i.done:
				return
			}
		}
	}()
}

func (i *Interval) stop() {
	i.ticker.Stop()
	close(i.done)
}
