// Package fork serves historical chain state from a read-through cache over
// a remote JSON-RPC client. Everything at or below the fork boundary is
// immutable history, so cached entries are written once and never
// invalidated.
package fork

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// Config describes the fork boundary: the point at which local state was
// snapshotted from the upstream chain. Immutable after construction except
// via ClientFork.Reset.
type Config struct {
	// URL is the JSON-RPC endpoint of the upstream chain.
	URL string
	// BlockNumber is the boundary height. Data at or below it is immutable.
	BlockNumber uint64
	// BlockHash is the hash of the boundary block.
	BlockHash common.Hash
	// ChainID of the upstream chain.
	ChainID *big.Int
	// Client talks to the upstream chain.
	Client RemoteClient
}

// ClientFork is a read-through cache over the upstream chain. Lookups check
// the cache first and fall back to a single network fetch, inserting the
// result on success. No lock is held during network I/O, so a slow fetch
// never blocks concurrent reads for other keys.
//
// Two concurrent misses on the same key may each issue a fetch; both race
// to insert the same immutable value, which is wasteful but safe.
type ClientFork struct {
	mu      sync.RWMutex
	config  Config
	storage *storage
	logger  zerolog.Logger
}

// New builds a fork over a fully-populated config.
func New(config Config, logger zerolog.Logger) (*ClientFork, error) {
	st, err := newStorage(DefaultStorageConfig())
	if err != nil {
		return nil, err
	}
	return &ClientFork{
		config:  config,
		storage: st,
		logger:  logger.With().Str("component", "fork").Logger(),
	}, nil
}

// Dial connects to the upstream chain and derives the fork boundary from
// it. blockNumber == 0 forks off the latest block.
func Dial(ctx context.Context, url string, blockNumber uint64, logger zerolog.Logger) (*ClientFork, error) {
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial upstream chain: %w", err)
	}
	client := WithTracing(ec)

	config, err := deriveBoundary(ctx, client, url, blockNumber)
	if err != nil {
		return nil, err
	}
	f, err := New(config, logger)
	if err != nil {
		return nil, err
	}
	f.logger.Info().
		Str("url", url).
		Uint64("block_number", config.BlockNumber).
		Str("block_hash", config.BlockHash.Hex()).
		Str("chain_id", config.ChainID.String()).
		Msg("forked off upstream chain")
	return f, nil
}

func deriveBoundary(ctx context.Context, client RemoteClient, url string, blockNumber uint64) (Config, error) {
	var number *big.Int
	if blockNumber > 0 {
		number = new(big.Int).SetUint64(blockNumber)
	}
	header, err := client.HeaderByNumber(ctx, number)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve fork block: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve upstream chain id: %w", err)
	}
	return Config{
		URL:         url,
		BlockNumber: header.Number.Uint64(),
		BlockHash:   header.Hash(),
		ChainID:     chainID,
		Client:      client,
	}, nil
}

// PredatesFork reports whether height is at or below the fork boundary,
// i.e. whether data for it is immutable upstream history.
func (f *ClientFork) PredatesFork(height uint64) bool {
	return height <= f.BlockNumber()
}

// BlockNumber returns the boundary height.
func (f *ClientFork) BlockNumber() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.config.BlockNumber
}

// BlockHash returns the boundary block hash.
func (f *ClientFork) BlockHash() common.Hash {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.config.BlockHash
}

// ChainID returns the upstream chain id.
func (f *ClientFork) ChainID() *big.Int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.config.ChainID
}

// URL returns the upstream JSON-RPC endpoint.
func (f *ClientFork) URL() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.config.URL
}

// CacheStats returns cumulative cache hit/miss counts of the current
// storage generation.
func (f *ClientFork) CacheStats() (hits, misses uint64) {
	return f.store().stats()
}

func (f *ClientFork) client() RemoteClient {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.config.Client
}

// store returns the current storage generation. Lookups capture it once so
// the miss-then-insert pair lands in the same generation; an insert racing
// with Reset goes into the discarded one and is simply lost.
func (f *ClientFork) store() *storage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.storage
}

// BlockByHash returns the block with the given hash, fetching it from the
// upstream chain at most once.
func (f *ClientFork) BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error) {
	st := f.store()
	if b, ok := st.block(hash); ok {
		return b, nil
	}
	b, err := f.client().BlockByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	st.putBlock(b)
	return b, nil
}

// BlockByNumber returns the block at the given height. The lookup is
// two-step: number resolves to a hash, the hash to a block. A miss issues
// one fetch and populates both maps from its result.
func (f *ClientFork) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	st := f.store()
	if hash, ok := st.blockHash(number); ok {
		if b, ok := st.block(hash); ok {
			return b, nil
		}
	}
	b, err := f.client().BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, err
	}
	st.putBlock(b)
	return b, nil
}

// TransactionByHash returns the transaction with the given hash.
func (f *ClientFork) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	st := f.store()
	if tx, ok := st.transaction(hash); ok {
		return tx, nil
	}
	tx, pending, err := f.client().TransactionByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !pending {
		// A pending transaction postdates the boundary and must not enter
		// the immutable cache.
		st.putTransaction(hash, tx)
	}
	return tx, nil
}

// TransactionInBlock returns the transaction at the given index of the
// given block. A cached block answers from its own body without a fetch.
func (f *ClientFork) TransactionInBlock(ctx context.Context, blockHash common.Hash, index uint) (*types.Transaction, error) {
	st := f.store()
	if b, ok := st.block(blockHash); ok {
		txs := b.Transactions()
		if int(index) >= len(txs) {
			return nil, ethereum.NotFound
		}
		return txs[index], nil
	}
	tx, err := f.client().TransactionInBlock(ctx, blockHash, index)
	if err != nil {
		return nil, err
	}
	st.putTransaction(tx.Hash(), tx)
	return tx, nil
}

// TransactionReceipt returns the receipt of the given transaction.
func (f *ClientFork) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	st := f.store()
	if r, ok := st.receipt(txHash); ok {
		return r, nil
	}
	r, err := f.client().TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	st.putReceipt(txHash, r)
	return r, nil
}

// CodeAt returns the contract code of the given account at the given
// height.
func (f *ClientFork) CodeAt(ctx context.Context, account common.Address, height uint64) ([]byte, error) {
	key := accountKey{addr: account, height: height}
	st := f.store()
	if code, ok := st.codeAt(key); ok {
		return code, nil
	}
	code, err := f.client().CodeAt(ctx, account, new(big.Int).SetUint64(height))
	if err != nil {
		return nil, err
	}
	st.putCode(key, code)
	return code, nil
}

// BalanceAt returns the balance of the given account at the given height.
// A balance pinned to a historical height is as immutable as code, so it is
// cached the same way.
func (f *ClientFork) BalanceAt(ctx context.Context, account common.Address, height uint64) (*big.Int, error) {
	key := accountKey{addr: account, height: height}
	st := f.store()
	if bal, ok := st.balance(key); ok {
		return bal, nil
	}
	bal, err := f.client().BalanceAt(ctx, account, new(big.Int).SetUint64(height))
	if err != nil {
		return nil, err
	}
	st.putBalance(key, bal)
	return bal, nil
}

// StorageAt returns the value of the given storage slot at the given
// height. Slot values are not cached here; per-slot entries churn keys far
// faster than the account-level maps and are better served by the state
// database layered above.
func (f *ClientFork) StorageAt(ctx context.Context, account common.Address, slot common.Hash, height uint64) ([]byte, error) {
	return f.client().StorageAt(ctx, account, slot, new(big.Int).SetUint64(height))
}

// Logs filters upstream logs. Filter results are not cached: the query
// space is unbounded and rarely repeats.
func (f *ClientFork) Logs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return f.client().FilterLogs(ctx, q)
}

// Reset moves the fork to a new boundary, optionally on a different
// upstream, and drops everything cached so far by installing a fresh
// storage generation. This is the only mutation the fork config admits
// after construction.
func (f *ClientFork) Reset(ctx context.Context, url string, blockNumber uint64) error {
	client := f.client()
	if url == "" {
		url = f.URL()
	} else if url != f.URL() {
		ec, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return fmt.Errorf("failed to dial upstream chain: %w", err)
		}
		client = WithTracing(ec)
	}

	config, err := deriveBoundary(ctx, client, url, blockNumber)
	if err != nil {
		return err
	}
	st, err := newStorage(DefaultStorageConfig())
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.config = config
	f.storage = st
	f.mu.Unlock()

	f.logger.Info().
		Str("url", url).
		Uint64("block_number", config.BlockNumber).
		Msg("fork reset")
	return nil
}
