package fork

import (
	"context"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RemoteClient is the upstream chain the fork was snapshotted from. All
// operations are fallible and asynchronous; *ethclient.Client satisfies the
// interface directly.
type RemoteClient interface {
	BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionInBlock(ctx context.Context, blockHash common.Hash, index uint) (*types.Transaction, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

var _ RemoteClient = (*ethclient.Client)(nil)

// tracedRemoteClient wraps a RemoteClient and records spans for observability.
type tracedRemoteClient struct {
	inner  RemoteClient
	tracer trace.Tracer
}

// WithTracing decorates a RemoteClient with OpenTelemetry tracing.
func WithTracing(inner RemoteClient) RemoteClient {
	return &tracedRemoteClient{
		inner:  inner,
		tracer: otel.Tracer("devnode/fork/remote-client"),
	}
}

func (t *tracedRemoteClient) span(ctx context.Context, name, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{attribute.String("method", method)}, attrs...)
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func end[T any](span trace.Span, result T, err error) (T, error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	return result, err
}

func blockNumberAttr(number *big.Int) attribute.KeyValue {
	if number == nil {
		return attribute.String("block_number", "latest")
	}
	return attribute.String("block_number", number.String())
}

func (t *tracedRemoteClient) BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error) {
	ctx, span := t.span(ctx, "Eth.GetBlockByHash", "eth_getBlockByHash",
		attribute.String("block_hash", hash.Hex()))
	b, err := t.inner.BlockByHash(ctx, hash)
	return end(span, b, err)
}

func (t *tracedRemoteClient) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	ctx, span := t.span(ctx, "Eth.GetBlockByNumber", "eth_getBlockByNumber", blockNumberAttr(number))
	b, err := t.inner.BlockByNumber(ctx, number)
	return end(span, b, err)
}

func (t *tracedRemoteClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	ctx, span := t.span(ctx, "Eth.GetHeaderByNumber", "eth_getBlockByNumber", blockNumberAttr(number))
	h, err := t.inner.HeaderByNumber(ctx, number)
	return end(span, h, err)
}

func (t *tracedRemoteClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	ctx, span := t.span(ctx, "Eth.GetTransactionByHash", "eth_getTransactionByHash",
		attribute.String("tx_hash", hash.Hex()))
	tx, pending, err := t.inner.TransactionByHash(ctx, hash)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Bool("pending", pending))
	}
	span.End()
	return tx, pending, err
}

func (t *tracedRemoteClient) TransactionInBlock(ctx context.Context, blockHash common.Hash, index uint) (*types.Transaction, error) {
	ctx, span := t.span(ctx, "Eth.GetTransactionByBlockHashAndIndex", "eth_getTransactionByBlockHashAndIndex",
		attribute.String("block_hash", blockHash.Hex()),
		attribute.Int("index", int(index)))
	tx, err := t.inner.TransactionInBlock(ctx, blockHash, index)
	return end(span, tx, err)
}

func (t *tracedRemoteClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, span := t.span(ctx, "Eth.GetTransactionReceipt", "eth_getTransactionReceipt",
		attribute.String("tx_hash", txHash.Hex()))
	r, err := t.inner.TransactionReceipt(ctx, txHash)
	return end(span, r, err)
}

func (t *tracedRemoteClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	ctx, span := t.span(ctx, "Eth.GetCode", "eth_getCode",
		attribute.String("address", account.Hex()), blockNumberAttr(blockNumber))
	code, err := t.inner.CodeAt(ctx, account, blockNumber)
	return end(span, code, err)
}

func (t *tracedRemoteClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	ctx, span := t.span(ctx, "Eth.GetBalance", "eth_getBalance",
		attribute.String("address", account.Hex()), blockNumberAttr(blockNumber))
	bal, err := t.inner.BalanceAt(ctx, account, blockNumber)
	return end(span, bal, err)
}

func (t *tracedRemoteClient) StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error) {
	ctx, span := t.span(ctx, "Eth.GetStorageAt", "eth_getStorageAt",
		attribute.String("address", account.Hex()),
		attribute.String("slot", key.Hex()), blockNumberAttr(blockNumber))
	val, err := t.inner.StorageAt(ctx, account, key, blockNumber)
	return end(span, val, err)
}

func (t *tracedRemoteClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	ctx, span := t.span(ctx, "Eth.GetLogs", "eth_getLogs")
	logs, err := t.inner.FilterLogs(ctx, q)
	if err == nil {
		span.SetAttributes(attribute.Int("log_count", len(logs)))
	}
	return end(span, logs, err)
}

func (t *tracedRemoteClient) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, span := t.span(ctx, "Eth.ChainId", "eth_chainId")
	id, err := t.inner.ChainID(ctx)
	return end(span, id, err)
}
