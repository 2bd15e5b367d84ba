// Package execution provides the built-in execution adapter used when the
// node is not attached to an external virtual machine. It applies
// transactions nominally, charging intrinsic gas and driving the observer
// lifecycle, which is sufficient for scheduling, storage, and inspection
// development against a running node.
package execution

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/evstack/devnode/inspect"
	"github.com/evstack/devnode/node"
)

const (
	txGas                 = 21_000
	txGasContractCreation = 53_000
	txDataNonZeroGas      = 16
	txDataZeroGas         = 4
)

// LocalExecutor applies transactions without a full virtual machine. Each
// transaction charges intrinsic gas and runs the complete observer lifecycle
// so inspection behaves the same as it would under a real interpreter.
type LocalExecutor struct {
	mu     sync.Mutex
	nonces map[common.Address]uint64
	logger zerolog.Logger
}

// NewLocalExecutor creates a LocalExecutor.
func NewLocalExecutor(logger zerolog.Logger) *LocalExecutor {
	return &LocalExecutor{
		nonces: make(map[common.Address]uint64),
		logger: logger.With().Str("component", "executor").Logger(),
	}
}

var _ node.Executor = (*LocalExecutor)(nil)

// ExecuteTxs applies txs in order. Execution is infallible at the
// transaction level; a transaction that cannot be applied gets a failed
// receipt rather than aborting the batch.
func (e *LocalExecutor) ExecuteTxs(ctx context.Context, txs []*types.Transaction, height uint64, timestamp time.Time, observer inspect.Observer) (*node.ExecResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	receipts := make(types.Receipts, 0, len(txs))
	var cumulative uint64
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		receipt := e.applyTx(tx, observer)
		cumulative += receipt.GasUsed
		receipt.CumulativeGasUsed = cumulative
		receipts = append(receipts, receipt)
	}

	return &node.ExecResult{
		StateRoot: stateRoot(height, timestamp, receipts),
		Receipts:  receipts,
		GasUsed:   cumulative,
	}, nil
}

func (e *LocalExecutor) applyTx(tx *types.Transaction, observer inspect.Observer) *types.Receipt {
	observer.Initialize(tx)

	from := sender(tx)
	gas := intrinsicGas(tx)
	value, _ := uint256.FromBig(tx.Value())

	receipt := &types.Receipt{
		Type:    tx.Type(),
		Status:  types.ReceiptStatusSuccessful,
		TxHash:  tx.Hash(),
		GasUsed: gas,
	}

	if tx.To() == nil {
		observer.Create(&inspect.CreateInput{
			From:  from,
			Init:  tx.Data(),
			Value: value,
			Gas:   tx.Gas(),
		})
		addr := crypto.CreateAddress(from, tx.Nonce())
		receipt.ContractAddress = addr
		observer.CreateEnd(&inspect.CreateOutcome{
			GasUsed: gas,
			Address: addr,
		})
	} else {
		observer.Call(&inspect.CallInput{
			From:  from,
			To:    *tx.To(),
			Input: tx.Data(),
			Value: value,
			Gas:   tx.Gas(),
		})
		observer.CallEnd(&inspect.CallOutcome{GasUsed: gas})
	}

	e.nonces[from] = tx.Nonce() + 1
	return receipt
}

// Nonce returns the next expected nonce for an account.
func (e *LocalExecutor) Nonce(account common.Address) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nonces[account]
}

func sender(tx *types.Transaction) common.Address {
	signer := types.LatestSignerForChainID(tx.ChainId())
	from, err := types.Sender(signer, tx)
	if err != nil {
		// Unsigned development transactions get a hash-derived sender so
		// nonce tracking stays stable.
		return common.BytesToAddress(tx.Hash().Bytes()[:20])
	}
	return from
}

func intrinsicGas(tx *types.Transaction) uint64 {
	gas := uint64(txGas)
	if tx.To() == nil {
		gas = txGasContractCreation
	}
	for _, b := range tx.Data() {
		if b == 0 {
			gas += txDataZeroGas
		} else {
			gas += txDataNonZeroGas
		}
	}
	if gas > tx.Gas() {
		gas = tx.Gas()
	}
	return gas
}

// stateRoot derives a deterministic pseudo state root from the block inputs.
// There is no state trie without a virtual machine; the root only needs to
// be stable for a given block.
func stateRoot(height uint64, timestamp time.Time, receipts types.Receipts) common.Hash {
	data := new(big.Int).SetUint64(height).Bytes()
	data = append(data, new(big.Int).SetInt64(timestamp.Unix()).Bytes()...)
	for _, r := range receipts {
		data = append(data, r.TxHash.Bytes()...)
	}
	return crypto.Keccak256Hash(data)
}
