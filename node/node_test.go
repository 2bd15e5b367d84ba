package node

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evstack/devnode/fork"
	"github.com/evstack/devnode/inspect"
	"github.com/evstack/devnode/mining"
	"github.com/evstack/devnode/pkg/store"
	"github.com/evstack/devnode/txpool"
)

type mockExecutor struct {
	mu      sync.Mutex
	batches [][]*types.Transaction
}

func (e *mockExecutor) ExecuteTxs(_ context.Context, txs []*types.Transaction, height uint64, _ time.Time, observer inspect.Observer) (*ExecResult, error) {
	e.mu.Lock()
	e.batches = append(e.batches, txs)
	e.mu.Unlock()

	receipts := make(types.Receipts, len(txs))
	for i, tx := range txs {
		observer.Initialize(tx)
		receipts[i] = &types.Receipt{
			Type:              tx.Type(),
			Status:            types.ReceiptStatusSuccessful,
			TxHash:            tx.Hash(),
			GasUsed:           21000,
			CumulativeGasUsed: uint64(i+1) * 21000,
		}
	}
	return &ExecResult{
		StateRoot: common.BigToHash(big.NewInt(int64(height))),
		Receipts:  receipts,
		GasUsed:   uint64(len(txs)) * 21000,
	}, nil
}

func (e *mockExecutor) batchCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.batches)
}

func newTestStore(t *testing.T) *store.BlockStore {
	t.Helper()
	kv, err := store.NewTestInMemoryKVStore()
	require.NoError(t, err)
	return store.New(kv)
}

func makeTx(nonce uint64) *types.Transaction {
	return types.NewTransaction(nonce, common.HexToAddress("0xdead"), big.NewInt(1), 21000, big.NewInt(1), nil)
}

func newAutoNode(t *testing.T, db *store.BlockStore) (*Node, *mockExecutor) {
	t.Helper()

	logger := zerolog.Nop()
	pool := txpool.New(logger)

	var miner *mining.Miner
	notif := pool.SubscribeReady(func() { miner.Wake() })
	miner = mining.New(mining.NewAuto(10, notif), logger)

	exec := &mockExecutor{}
	n, err := New(pool, miner, db, exec, Options{}, logger)
	require.NoError(t, err)
	return n, exec
}

func TestNodeProducesBlockOnSubmit(t *testing.T) {
	db := newTestStore(t)
	n, exec := newAutoNode(t, db)

	require.NoError(t, n.Start(context.Background()))
	defer n.Stop()

	tx := makeTx(0)
	n.SubmitTransaction(tx)

	require.Eventually(t, func() bool {
		height, _ := n.Head()
		return height == 1
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 1, exec.batchCount())

	height, headHash := n.Head()
	require.Equal(t, uint64(1), height)

	block, err := db.BlockByNumber(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, headHash, block.Hash())
	require.Len(t, block.Transactions(), 1)
	assert.Equal(t, tx.Hash(), block.Transactions()[0].Hash())

	receipt, err := db.Receipt(context.Background(), tx.Hash())
	require.NoError(t, err)
	assert.Equal(t, block.Hash(), receipt.BlockHash)
	assert.Equal(t, uint64(1), receipt.BlockNumber.Uint64())
}

func TestNodeChainsBlocks(t *testing.T) {
	db := newTestStore(t)
	n, _ := newAutoNode(t, db)

	require.NoError(t, n.Start(context.Background()))
	defer n.Stop()

	n.SubmitTransaction(makeTx(0))
	require.Eventually(t, func() bool {
		height, _ := n.Head()
		return height >= 1
	}, time.Second, 5*time.Millisecond)

	n.SubmitTransaction(makeTx(1))
	require.Eventually(t, func() bool {
		height, _ := n.Head()
		return height >= 2
	}, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	first, err := db.BlockByNumber(ctx, 1)
	require.NoError(t, err)
	second, err := db.BlockByNumber(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, first.Hash(), second.ParentHash())
}

func TestNodeIntervalMinesEmptyBlocks(t *testing.T) {
	logger := zerolog.Nop()
	pool := txpool.New(logger)
	miner := mining.New(mining.NewInterval(10*time.Millisecond), logger)
	db := newTestStore(t)

	n, err := New(pool, miner, db, &mockExecutor{}, Options{}, logger)
	require.NoError(t, err)

	require.NoError(t, n.Start(context.Background()))
	defer n.Stop()

	require.Eventually(t, func() bool {
		height, _ := n.Head()
		return height >= 2
	}, time.Second, 5*time.Millisecond)

	block, err := db.BlockByNumber(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, block.Transactions())
}

func TestNodeRestoresHead(t *testing.T) {
	db := newTestStore(t)

	n, _ := newAutoNode(t, db)
	require.NoError(t, n.Start(context.Background()))
	n.SubmitTransaction(makeTx(0))
	require.Eventually(t, func() bool {
		height, _ := n.Head()
		return height == 1
	}, time.Second, 5*time.Millisecond)
	_, headHash := n.Head()
	n.Stop()

	restarted, _ := newAutoNode(t, db)
	require.NoError(t, restarted.Start(context.Background()))
	defer restarted.Stop()

	height, hash := restarted.Head()
	assert.Equal(t, uint64(1), height)
	assert.Equal(t, headHash, hash)
}

func TestNodeStartTwice(t *testing.T) {
	db := newTestStore(t)
	n, _ := newAutoNode(t, db)

	require.NoError(t, n.Start(context.Background()))
	defer n.Stop()

	assert.Error(t, n.Start(context.Background()))
}

func TestNodeStopBeforeStart(t *testing.T) {
	db := newTestStore(t)
	n, _ := newAutoNode(t, db)
	n.Stop() // no-op
}

type stubRemote struct{}

func (stubRemote) BlockByHash(context.Context, common.Hash) (*types.Block, error) {
	return nil, ethereum.NotFound
}
func (stubRemote) BlockByNumber(context.Context, *big.Int) (*types.Block, error) {
	return nil, ethereum.NotFound
}
func (stubRemote) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return nil, ethereum.NotFound
}
func (stubRemote) TransactionByHash(context.Context, common.Hash) (*types.Transaction, bool, error) {
	return nil, false, ethereum.NotFound
}
func (stubRemote) TransactionInBlock(context.Context, common.Hash, uint) (*types.Transaction, error) {
	return nil, ethereum.NotFound
}
func (stubRemote) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}
func (stubRemote) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, ethereum.NotFound
}
func (stubRemote) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return nil, ethereum.NotFound
}
func (stubRemote) StorageAt(context.Context, common.Address, common.Hash, *big.Int) ([]byte, error) {
	return nil, ethereum.NotFound
}
func (stubRemote) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, ethereum.NotFound
}
func (stubRemote) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func TestNodeFreshStoreStartsAtForkBoundary(t *testing.T) {
	logger := zerolog.Nop()
	boundaryHash := common.HexToHash("0xabc123")

	fc, err := fork.New(fork.Config{
		URL:         "https://rpc.example.org",
		BlockNumber: 15_000_000,
		BlockHash:   boundaryHash,
		ChainID:     big.NewInt(1),
		Client:      stubRemote{},
	}, logger)
	require.NoError(t, err)

	pool := txpool.New(logger)
	miner := mining.New(mining.NewDisabled(), logger)
	db := newTestStore(t)

	n, err := New(pool, miner, db, &mockExecutor{}, Options{Fork: fc}, logger)
	require.NoError(t, err)

	require.NoError(t, n.Start(context.Background()))
	defer n.Stop()

	height, hash := n.Head()
	assert.Equal(t, uint64(15_000_000), height)
	assert.Equal(t, boundaryHash, hash)
}
