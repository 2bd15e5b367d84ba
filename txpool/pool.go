// Package txpool holds transactions waiting for inclusion in a block and
// announces newly-ready ones to subscribers. Readiness here is simple
// arrival order; nonce gaps and fee ordering are the concern of whatever
// feeds the pool.
package txpool

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

// subscriptionBuffer bounds a subscriber's notification channel. Dropping a
// hash when the buffer is full is harmless: a non-empty channel already
// tells the consumer that work is pending.
const subscriptionBuffer = 1024

type subscription struct {
	ch     chan common.Hash
	notify func()
}

// Pool is a FIFO pending-transaction pool.
type Pool struct {
	mu      sync.Mutex
	pending []*types.Transaction
	subs    []subscription
	logger  zerolog.Logger
}

// New returns an empty pool.
func New(logger zerolog.Logger) *Pool {
	return &Pool{
		logger: logger.With().Str("component", "txpool").Logger(),
	}
}

// Add marks a transaction ready and announces it to all subscribers.
func (p *Pool) Add(tx *types.Transaction) {
	p.mu.Lock()
	p.pending = append(p.pending, tx)
	subs := make([]subscription, len(p.subs))
	copy(subs, p.subs)
	n := len(p.pending)
	p.mu.Unlock()

	hash := tx.Hash()
	for _, s := range subs {
		select {
		case s.ch <- hash:
		default:
		}
		if s.notify != nil {
			s.notify()
		}
	}

	p.logger.Debug().Str("tx", hash.Hex()).Int("pending", n).Msg("transaction ready")
}

// Ready pops up to max ready transactions in arrival order. max <= 0 pops
// all of them.
func (p *Pool) Ready(max int) []*types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.pending)
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]*types.Transaction, n)
	copy(out, p.pending[:n])
	p.pending = p.pending[n:]
	return out
}

// Len returns the number of transactions currently ready.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// SubscribeReady registers a listener for newly-ready transaction hashes.
// notify, when non-nil, is invoked on every delivery; it is how a suspended
// consumer gets woken even when it is not currently draining the channel.
func (p *Pool) SubscribeReady(notify func()) <-chan common.Hash {
	ch := make(chan common.Hash, subscriptionBuffer)
	p.mu.Lock()
	p.subs = append(p.subs, subscription{ch: ch, notify: notify})
	p.mu.Unlock()
	return ch
}
