package inspect

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

// Topics of the ds-test style debugging-log events contracts emit during
// development. Their payload is a single ABI-encoded string.
var (
	logTopic       = crypto.Keccak256Hash([]byte("log(string)"))
	logStringTopic = crypto.Keccak256Hash([]byte("log_string(string)"))
)

// CollectedLog is one captured VM log event and its rendering.
type CollectedLog struct {
	Raw     *types.Log
	Message string
	// Decoded reports whether Message came from the debugging-log
	// convention rather than the raw fallback.
	Decoded bool
}

// LogCollector captures every log the transaction emits. With decoding
// enabled, events matching the debugging-log convention are forwarded to
// the informational log stream as they arrive; everything else is kept with
// a best-effort raw rendering.
type LogCollector struct {
	NoopObserver

	logger  zerolog.Logger
	decode  bool
	entries []CollectedLog
}

// NewLogCollector returns a collector writing decoded messages to logger.
func NewLogCollector(logger zerolog.Logger, decode bool) *LogCollector {
	return &LogCollector{
		logger: logger.With().Str("component", "console").Logger(),
		decode: decode,
	}
}

// Initialize resets the collector for a new transaction.
func (c *LogCollector) Initialize(*types.Transaction) {
	c.entries = c.entries[:0]
}

func (c *LogCollector) Log(entry *types.Log) {
	msg, decoded := "", false
	if c.decode {
		msg, decoded = DecodeConsoleLog(entry)
		if decoded {
			c.logger.Info().Msg(msg)
		}
	}
	if !decoded {
		msg = renderRawLog(entry)
	}
	c.entries = append(c.entries, CollectedLog{Raw: entry, Message: msg, Decoded: decoded})
}

// Entries returns everything collected so far, in emission order.
func (c *LogCollector) Entries() []CollectedLog {
	return c.entries
}

// PrintLogs flushes all collected log events to the informational log
// stream. Intended to be called once after execution completes; no VM
// interaction occurs here.
func (c *LogCollector) PrintLogs() {
	for _, e := range c.entries {
		c.logger.Info().Msg(e.Message)
	}
}

// DecodeConsoleLog extracts the string payload of a debugging-log event.
// The second return is false when the event does not match the convention
// or its payload is malformed; callers fall back to a raw rendering, never
// an error.
func DecodeConsoleLog(entry *types.Log) (string, bool) {
	if len(entry.Topics) == 0 {
		return "", false
	}
	if entry.Topics[0] != logTopic && entry.Topics[0] != logStringTopic {
		return "", false
	}
	return decodeABIString(entry.Data)
}

// decodeABIString decodes a single ABI-encoded string argument: a 32-byte
// offset word, a 32-byte length word, then the bytes.
func decodeABIString(data []byte) (string, bool) {
	if len(data) < 64 {
		return "", false
	}
	// Subtractive comparisons: adding to attacker-controlled words could
	// wrap around uint64 and slip past the bounds checks.
	offset := new(big.Int).SetBytes(data[:32])
	if !offset.IsUint64() || offset.Uint64() > uint64(len(data))-32 {
		return "", false
	}
	off := offset.Uint64()
	length := new(big.Int).SetBytes(data[off : off+32])
	if !length.IsUint64() || length.Uint64() > uint64(len(data))-off-32 {
		return "", false
	}
	return string(data[off+32 : off+32+length.Uint64()]), true
}

func renderRawLog(entry *types.Log) string {
	topics := make([]string, len(entry.Topics))
	for i, t := range entry.Topics {
		topics[i] = t.Hex()
	}
	return fmt.Sprintf("log address=%s topics=[%s] data=%s",
		entry.Address.Hex(), strings.Join(topics, ","), hexutil.Encode(entry.Data))
}
