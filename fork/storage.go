package fork

import (
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultBlocksCacheSize bounds the hash->block and number->hash maps.
	// Blocks dominate memory, so this is the smallest default.
	DefaultBlocksCacheSize = 50_000

	// DefaultTxCacheSize bounds the hash->transaction and hash->receipt maps.
	DefaultTxCacheSize = 500_000

	// DefaultAccountCacheSize bounds the (address,height)->code and
	// (address,height)->balance maps.
	DefaultAccountCacheSize = 200_000
)

// StorageConfig holds cache sizes for the forked storage maps. The bounds
// exist purely to cap memory: everything cached here is immutable history at
// or below the fork boundary, so an evicted key re-fetches identical data.
type StorageConfig struct {
	BlocksCacheSize  int
	TxCacheSize      int
	AccountCacheSize int
}

// DefaultStorageConfig returns the default cache sizes.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		BlocksCacheSize:  DefaultBlocksCacheSize,
		TxCacheSize:      DefaultTxCacheSize,
		AccountCacheSize: DefaultAccountCacheSize,
	}
}

// accountKey addresses per-account data pinned to a height.
type accountKey struct {
	addr   common.Address
	height uint64
}

// storage holds everything fetched from the remote chain so far. Entries
// are inserted once and never updated; any entry concerns a height at or
// below the fork boundary, which cannot change.
type storage struct {
	blocks   *lru.Cache[common.Hash, *types.Block]
	blocksMu sync.RWMutex

	// hashes resolves block number -> block hash
	hashes   *lru.Cache[uint64, common.Hash]
	hashesMu sync.RWMutex

	transactions   *lru.Cache[common.Hash, *types.Transaction]
	transactionsMu sync.RWMutex

	receipts   *lru.Cache[common.Hash, *types.Receipt]
	receiptsMu sync.RWMutex

	code   *lru.Cache[accountKey, []byte]
	codeMu sync.RWMutex

	balances   *lru.Cache[accountKey, *big.Int]
	balancesMu sync.RWMutex

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newStorage(config StorageConfig) (*storage, error) {
	blocks, err := lru.New[common.Hash, *types.Block](config.BlocksCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create blocks cache: %w", err)
	}
	hashes, err := lru.New[uint64, common.Hash](config.BlocksCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create hashes cache: %w", err)
	}
	transactions, err := lru.New[common.Hash, *types.Transaction](config.TxCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactions cache: %w", err)
	}
	receipts, err := lru.New[common.Hash, *types.Receipt](config.TxCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create receipts cache: %w", err)
	}
	code, err := lru.New[accountKey, []byte](config.AccountCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create code cache: %w", err)
	}
	balances, err := lru.New[accountKey, *big.Int](config.AccountCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create balances cache: %w", err)
	}

	return &storage{
		blocks:       blocks,
		hashes:       hashes,
		transactions: transactions,
		receipts:     receipts,
		code:         code,
		balances:     balances,
	}, nil
}

func (s *storage) recordLookup(hit bool) bool {
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return hit
}

// stats returns cumulative hit/miss counts across all maps.
func (s *storage) stats() (hits, misses uint64) {
	return s.hits.Load(), s.misses.Load()
}

func (s *storage) block(hash common.Hash) (*types.Block, bool) {
	s.blocksMu.RLock()
	defer s.blocksMu.RUnlock()
	b, ok := s.blocks.Get(hash)
	return b, s.recordLookup(ok)
}

// putBlock populates both the hash->block and number->hash maps, so a block
// fetched by number is immediately addressable by hash too.
func (s *storage) putBlock(b *types.Block) {
	s.blocksMu.Lock()
	s.blocks.Add(b.Hash(), b)
	s.blocksMu.Unlock()

	s.hashesMu.Lock()
	s.hashes.Add(b.NumberU64(), b.Hash())
	s.hashesMu.Unlock()
}

func (s *storage) blockHash(number uint64) (common.Hash, bool) {
	s.hashesMu.RLock()
	defer s.hashesMu.RUnlock()
	h, ok := s.hashes.Get(number)
	return h, ok
}

func (s *storage) transaction(hash common.Hash) (*types.Transaction, bool) {
	s.transactionsMu.RLock()
	defer s.transactionsMu.RUnlock()
	tx, ok := s.transactions.Get(hash)
	return tx, s.recordLookup(ok)
}

func (s *storage) putTransaction(hash common.Hash, tx *types.Transaction) {
	s.transactionsMu.Lock()
	defer s.transactionsMu.Unlock()
	s.transactions.Add(hash, tx)
}

func (s *storage) receipt(hash common.Hash) (*types.Receipt, bool) {
	s.receiptsMu.RLock()
	defer s.receiptsMu.RUnlock()
	r, ok := s.receipts.Get(hash)
	return r, s.recordLookup(ok)
}

func (s *storage) putReceipt(hash common.Hash, r *types.Receipt) {
	s.receiptsMu.Lock()
	defer s.receiptsMu.Unlock()
	s.receipts.Add(hash, r)
}

func (s *storage) codeAt(key accountKey) ([]byte, bool) {
	s.codeMu.RLock()
	defer s.codeMu.RUnlock()
	code, ok := s.code.Get(key)
	return code, s.recordLookup(ok)
}

func (s *storage) putCode(key accountKey, code []byte) {
	s.codeMu.Lock()
	defer s.codeMu.Unlock()
	s.code.Add(key, code)
}

func (s *storage) balance(key accountKey) (*big.Int, bool) {
	s.balancesMu.RLock()
	defer s.balancesMu.RUnlock()
	bal, ok := s.balances.Get(key)
	return bal, s.recordLookup(ok)
}

func (s *storage) putBalance(key accountKey, bal *big.Int) {
	s.balancesMu.Lock()
	defer s.balancesMu.Unlock()
	s.balances.Add(key, bal)
}
