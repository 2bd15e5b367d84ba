package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Stored values carry a small header so compressed and raw entries can
// coexist: 1 byte flag followed by 8 bytes original size.
const compressionHeaderSize = 9

const (
	flagUncompressed = 0x00
	flagZstd         = 0x01
)

const (
	// DefaultZstdLevel is the zstd compression level used by default.
	DefaultZstdLevel = 3

	// DefaultMinCompressionRatio is the minimum savings required to store a
	// value compressed. Values that compress worse are stored raw.
	DefaultMinCompressionRatio = 0.1
)

var (
	// ErrInvalidHeader is returned for stored values shorter than the frame header.
	ErrInvalidHeader = errors.New("invalid compression header")
	// ErrInvalidCompressionFlag is returned for unknown compression flags.
	ErrInvalidCompressionFlag = errors.New("invalid compression flag")
)

// CompressionConfig controls transparent value compression in the block
// store.
type CompressionConfig struct {
	// Enabled controls whether compression is active.
	Enabled bool

	// ZstdLevel is the compression level for zstd (1-22).
	ZstdLevel int

	// MinCompressionRatio is the minimum ratio of saved bytes required to
	// keep the compressed form.
	MinCompressionRatio float64
}

// DefaultCompressionConfig returns a configuration optimized for block
// payloads.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		Enabled:             true,
		ZstdLevel:           DefaultZstdLevel,
		MinCompressionRatio: DefaultMinCompressionRatio,
	}
}

// compressor frames values with a flag header and compresses them with zstd
// when that actually saves space.
type compressor struct {
	cfg CompressionConfig
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCompressor(cfg CompressionConfig) (*compressor, error) {
	if cfg.ZstdLevel == 0 {
		cfg.ZstdLevel = DefaultZstdLevel
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(cfg.ZstdLevel)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &compressor{cfg: cfg, enc: enc, dec: dec}, nil
}

// noopCompressor passes values through unframed, for stores written before
// compression support.
type noopCompressor struct{}

func (noopCompressor) compress(data []byte) ([]byte, error)   { return data, nil }
func (noopCompressor) decompress(data []byte) ([]byte, error) { return data, nil }

type valueCodec interface {
	compress([]byte) ([]byte, error)
	decompress([]byte) ([]byte, error)
}

func frame(flag byte, originalSize int, payload []byte) []byte {
	out := make([]byte, compressionHeaderSize, compressionHeaderSize+len(payload))
	out[0] = flag
	binary.BigEndian.PutUint64(out[1:], uint64(originalSize))
	return append(out, payload...)
}

func (c *compressor) compress(data []byte) ([]byte, error) {
	if !c.cfg.Enabled {
		return frame(flagUncompressed, len(data), data), nil
	}

	compressed := c.enc.EncodeAll(data, nil)
	saved := 1 - float64(len(compressed))/float64(max(len(data), 1))
	if saved < c.cfg.MinCompressionRatio {
		return frame(flagUncompressed, len(data), data), nil
	}
	return frame(flagZstd, len(data), compressed), nil
}

func (c *compressor) decompress(data []byte) ([]byte, error) {
	if len(data) < compressionHeaderSize {
		return nil, ErrInvalidHeader
	}
	originalSize := binary.BigEndian.Uint64(data[1:compressionHeaderSize])
	payload := data[compressionHeaderSize:]

	switch data[0] {
	case flagUncompressed:
		return payload, nil
	case flagZstd:
		out, err := c.dec.DecodeAll(payload, make([]byte, 0, originalSize))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress value: %w", err)
		}
		if uint64(len(out)) != originalSize {
			return nil, fmt.Errorf("decompressed size %d does not match header %d", len(out), originalSize)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidCompressionFlag, data[0])
	}
}
