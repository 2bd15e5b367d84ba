// Package node wires the transaction pool, the mining scheduler, the fork
// client, and the block store into a running devnet node.
package node

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/rs/zerolog"

	"github.com/evstack/devnode/fork"
	"github.com/evstack/devnode/inspect"
	"github.com/evstack/devnode/mining"
	"github.com/evstack/devnode/pkg/store"
	"github.com/evstack/devnode/txpool"
)

// ExecResult is the outcome of executing a batch of transactions on top of
// the current chain head.
type ExecResult struct {
	StateRoot common.Hash
	Receipts  types.Receipts
	GasUsed   uint64
}

// Executor runs transactions against the execution environment. Every
// transaction is executed with the given observer attached; implementations
// must call observer.Initialize before each transaction.
type Executor interface {
	ExecuteTxs(ctx context.Context, txs []*types.Transaction, height uint64, timestamp time.Time, observer inspect.Observer) (*ExecResult, error)
}

// Node drives block production. It polls the miner for ready transactions,
// executes them, and persists the resulting blocks.
type Node struct {
	pool     *txpool.Pool
	miner    *mining.Miner
	store    *store.BlockStore
	fork     *fork.ClientFork // nil when not forking
	executor Executor
	pipeline *inspect.Pipeline
	metrics  *Metrics
	logger   zerolog.Logger

	lastHeight uint64
	lastHash   common.Hash
	totalTxs   uint64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// Options configures optional node collaborators.
type Options struct {
	Fork     *fork.ClientFork
	Pipeline *inspect.Pipeline
	Metrics  *Metrics
}

// New creates a node. The pool, miner, store, and executor are required.
func New(pool *txpool.Pool, miner *mining.Miner, blockStore *store.BlockStore, executor Executor, opts Options, logger zerolog.Logger) (*Node, error) {
	if pool == nil || miner == nil || blockStore == nil || executor == nil {
		return nil, errors.New("node: pool, miner, store, and executor are required")
	}
	pipeline := opts.Pipeline
	if pipeline == nil {
		pipeline = inspect.NewPipeline(logger)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Node{
		pool:     pool,
		miner:    miner,
		store:    blockStore,
		fork:     opts.Fork,
		executor: executor,
		pipeline: pipeline,
		metrics:  metrics,
		logger:   logger.With().Str("component", "node").Logger(),
	}, nil
}

// Miner returns the mining scheduler, for runtime mode changes.
func (n *Node) Miner() *mining.Miner { return n.miner }

// Pool returns the transaction pool.
func (n *Node) Pool() *txpool.Pool { return n.pool }

// Fork returns the fork client, or nil when the node is not forking.
func (n *Node) Fork() *fork.ClientFork { return n.fork }

// Head returns the current chain head height and hash.
func (n *Node) Head() (uint64, common.Hash) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastHeight, n.lastHash
}

// SubmitTransaction adds a transaction to the pool, waking the scheduler.
func (n *Node) SubmitTransaction(tx *types.Transaction) {
	n.pool.Add(tx)
}

// Start restores the chain head from the store and launches the scheduler
// loop. It returns once the loop is running.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return errors.New("node: already started")
	}

	if err := n.restoreHead(ctx); err != nil {
		return fmt.Errorf("restore chain head: %w", err)
	}

	n.ctx, n.cancel = context.WithCancel(ctx)
	n.started = true
	n.wg.Add(1)
	go n.schedulerLoop()

	n.logger.Info().Uint64("height", n.lastHeight).Msg("node started")
	return nil
}

// Stop cancels the scheduler loop and waits for it to exit.
func (n *Node) Stop() {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return
	}
	n.cancel()
	n.started = false
	n.mu.Unlock()

	n.wg.Wait()
	n.logger.Info().Msg("node stopped")
}

// restoreHead loads the last persisted height. A fresh store starts at the
// fork boundary when forking, otherwise at height zero.
func (n *Node) restoreHead(ctx context.Context) error {
	height, err := n.store.Height(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if n.fork != nil {
			n.lastHeight = n.fork.BlockNumber()
			n.lastHash = n.fork.BlockHash()
		}
		return nil
	case err != nil:
		return err
	}

	n.lastHeight = height
	b, err := n.store.BlockByNumber(ctx, height)
	if err != nil {
		return err
	}
	n.lastHash = b.Hash()
	return nil
}

// schedulerLoop polls the miner for the next batch of transactions. When the
// miner reports nothing pending, the loop suspends until woken.
func (n *Node) schedulerLoop() {
	defer n.wg.Done()

	for {
		if n.ctx.Err() != nil {
			return
		}

		txs, pending := n.miner.Poll(n.pool)
		if pending {
			if err := n.produceBlock(n.ctx, txs); err != nil {
				if n.ctx.Err() != nil {
					return
				}
				n.logger.Error().Err(err).Msg("block production failed")
			}
			continue
		}

		select {
		case <-n.ctx.Done():
			return
		case <-n.miner.WakeC():
		}
	}
}

// produceBlock executes txs on top of the current head and persists the
// sealed block. An empty txs slice still produces a block; interval mining
// mines empty blocks on schedule.
func (n *Node) produceBlock(ctx context.Context, txs []*types.Transaction) error {
	start := time.Now()

	n.mu.Lock()
	height := n.lastHeight + 1
	parent := n.lastHash
	n.mu.Unlock()

	timestamp := time.Now()
	result, err := n.executor.ExecuteTxs(ctx, txs, height, timestamp, n.pipeline)
	if err != nil {
		return fmt.Errorf("execute txs at height %d: %w", height, err)
	}

	block := sealBlock(parent, height, timestamp, txs, result)
	stampReceipts(result.Receipts, block)

	if err := n.store.PutBlock(ctx, block); err != nil {
		return fmt.Errorf("store block %d: %w", height, err)
	}
	if err := n.store.PutReceipts(ctx, result.Receipts); err != nil {
		return fmt.Errorf("store receipts for block %d: %w", height, err)
	}
	if err := n.store.SetHeight(ctx, height); err != nil {
		return fmt.Errorf("set height %d: %w", height, err)
	}

	n.mu.Lock()
	n.lastHeight = height
	n.lastHash = block.Hash()
	n.totalTxs += uint64(len(txs))
	totalTxs := n.totalTxs
	n.mu.Unlock()

	n.pipeline.PrintLogs()

	n.metrics.Height.Set(float64(height))
	n.metrics.NumTxs.Set(float64(len(txs)))
	n.metrics.TotalTxs.Set(float64(totalTxs))
	n.metrics.BlockProductionDuration.Observe(time.Since(start).Seconds())
	if n.fork != nil {
		hits, misses := n.fork.CacheStats()
		n.metrics.ForkCacheHits.Set(float64(hits))
		n.metrics.ForkCacheMisses.Set(float64(misses))
	}

	n.logger.Info().
		Uint64("height", height).
		Int("num_txs", len(txs)).
		Uint64("gas_used", result.GasUsed).
		Str("hash", block.Hash().Hex()).
		Dur("elapsed", time.Since(start)).
		Msg("produced block")
	return nil
}

func sealBlock(parent common.Hash, height uint64, timestamp time.Time, txs []*types.Transaction, result *ExecResult) *types.Block {
	header := &types.Header{
		ParentHash: parent,
		Number:     new(big.Int).SetUint64(height),
		Difficulty: new(big.Int),
		Time:       uint64(timestamp.Unix()),
		GasLimit:   blockGasLimit,
		GasUsed:    result.GasUsed,
		Root:       result.StateRoot,
	}
	body := &types.Body{Transactions: txs}
	return types.NewBlock(header, body, result.Receipts, trie.NewStackTrie(nil))
}

// stampReceipts fills the block-derived receipt fields the executor cannot
// know before sealing.
func stampReceipts(receipts types.Receipts, block *types.Block) {
	for i, r := range receipts {
		r.BlockHash = block.Hash()
		r.BlockNumber = block.Number()
		r.TransactionIndex = uint(i)
		for _, l := range r.Logs {
			l.BlockHash = block.Hash()
			l.BlockNumber = block.NumberU64()
		}
	}
}

const blockGasLimit = 30_000_000
