// Package store persists locally mined blocks and receipts in a key-value
// store. Blocks are addressable by hash and by height.
package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	ds "github.com/ipfs/go-datastore"
)

// ErrNotFound is returned when the requested entry is not in the store.
var ErrNotFound = ds.ErrNotFound

// BlockStore stores mined blocks, their receipts, and the current chain
// height.
type BlockStore struct {
	db    ds.Batching
	codec valueCodec
}

// New returns a BlockStore backed by the given datastore, storing values
// uncompressed.
func New(db ds.Batching) *BlockStore {
	return &BlockStore{db: db, codec: noopCompressor{}}
}

// NewCompressed returns a BlockStore that transparently compresses block and
// receipt payloads.
func NewCompressed(db ds.Batching, cfg CompressionConfig) (*BlockStore, error) {
	codec, err := newCompressor(cfg)
	if err != nil {
		return nil, err
	}
	return &BlockStore{db: db, codec: codec}, nil
}

// PutBlock stores a block under its hash and indexes it by height, in one
// batch.
func (s *BlockStore) PutBlock(ctx context.Context, b *types.Block) error {
	enc, err := rlp.EncodeToBytes(b)
	if err != nil {
		return fmt.Errorf("failed to encode block %d: %w", b.NumberU64(), err)
	}
	enc, err = s.codec.compress(enc)
	if err != nil {
		return fmt.Errorf("failed to compress block %d: %w", b.NumberU64(), err)
	}

	batch, err := s.db.Batch(ctx)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	if err := batch.Put(ctx, ds.NewKey(getBlockKey(b.Hash())), enc); err != nil {
		return fmt.Errorf("failed to put block: %w", err)
	}
	if err := batch.Put(ctx, ds.NewKey(getHeightKey(b.NumberU64())), b.Hash().Bytes()); err != nil {
		return fmt.Errorf("failed to put height index: %w", err)
	}
	return batch.Commit(ctx)
}

// BlockByHash returns the stored block with the given hash.
func (s *BlockStore) BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error) {
	data, err := s.db.Get(ctx, ds.NewKey(getBlockKey(hash)))
	if err != nil {
		return nil, fmt.Errorf("failed to get block %s: %w", hash.Hex(), err)
	}
	data, err = s.codec.decompress(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress block %s: %w", hash.Hex(), err)
	}
	b := new(types.Block)
	if err := rlp.DecodeBytes(data, b); err != nil {
		return nil, fmt.Errorf("failed to decode block %s: %w", hash.Hex(), err)
	}
	return b, nil
}

// BlockByNumber returns the stored block at the given height.
func (s *BlockStore) BlockByNumber(ctx context.Context, height uint64) (*types.Block, error) {
	data, err := s.db.Get(ctx, ds.NewKey(getHeightKey(height)))
	if err != nil {
		return nil, fmt.Errorf("failed to get block hash at height %d: %w", height, err)
	}
	return s.BlockByHash(ctx, common.BytesToHash(data))
}

// PutReceipts stores the receipts of a block, keyed by transaction hash.
func (s *BlockStore) PutReceipts(ctx context.Context, receipts types.Receipts) error {
	if len(receipts) == 0 {
		return nil
	}
	batch, err := s.db.Batch(ctx)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	for _, r := range receipts {
		enc, err := r.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to encode receipt %s: %w", r.TxHash.Hex(), err)
		}
		enc, err = s.codec.compress(enc)
		if err != nil {
			return fmt.Errorf("failed to compress receipt %s: %w", r.TxHash.Hex(), err)
		}
		if err := batch.Put(ctx, ds.NewKey(getReceiptKey(r.TxHash)), enc); err != nil {
			return fmt.Errorf("failed to put receipt: %w", err)
		}
	}
	return batch.Commit(ctx)
}

// Receipt returns the stored receipt of the given transaction.
func (s *BlockStore) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	data, err := s.db.Get(ctx, ds.NewKey(getReceiptKey(txHash)))
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt %s: %w", txHash.Hex(), err)
	}
	data, err = s.codec.decompress(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress receipt %s: %w", txHash.Hex(), err)
	}
	r := new(types.Receipt)
	if err := r.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to decode receipt %s: %w", txHash.Hex(), err)
	}
	return r, nil
}

// Height returns the current chain height. An empty store returns
// ErrNotFound.
func (s *BlockStore) Height(ctx context.Context) (uint64, error) {
	data, err := s.db.Get(ctx, ds.NewKey(getMetaKey(headHeightKey)))
	if errors.Is(err, ds.ErrNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get height: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid height entry length %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// SetHeight records the current chain height.
func (s *BlockStore) SetHeight(ctx context.Context, height uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	if err := s.db.Put(ctx, ds.NewKey(getMetaKey(headHeightKey)), buf); err != nil {
		return fmt.Errorf("failed to set height: %w", err)
	}
	return nil
}
