package inspect

import (
	"bytes"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_NothingEnabled(t *testing.T) {
	p := NewPipeline(zerolog.Nop())

	assert.Nil(t, p.GasTracker())
	assert.Nil(t, p.Tracer())
	assert.Nil(t, p.Collector())

	// Hooks on an empty pipeline are harmless no-ops.
	p.Initialize(nil)
	p.Step(&StepContext{})
	p.Log(&types.Log{})
	p.PrintLogs()
	assert.Equal(t, Continue, p.Call(&CallInput{}))
	assert.Equal(t, Continue, p.Create(&CreateInput{}))
}

func TestPipeline_StepGasTrackingAutoEnablesTracer(t *testing.T) {
	p := NewPipeline(zerolog.Nop()).WithStepGasTracking()

	require.NotNil(t, p.GasTracker())
	require.NotNil(t, p.Tracer(), "gas tracking must enable the tracer it wires into")
}

func TestPipeline_GasTrackerRunsBeforeTracer(t *testing.T) {
	p := NewPipeline(zerolog.Nop()).WithStepGasTracking()

	p.Initialize(nil)
	p.Call(&CallInput{From: common.Address{1}, To: common.Address{2}, Gas: 100_000})
	p.Step(&StepContext{PC: 0, Opcode: 0x60, Depth: 1, Gas: 100_000, Cost: 3})
	p.Step(&StepContext{PC: 2, Opcode: 0x60, Depth: 1, Gas: 99_997, Cost: 3})
	p.CallEnd(&CallOutcome{GasUsed: 6})

	root := p.Tracer().Root()
	require.NotNil(t, root)
	require.Len(t, root.Steps, 2)

	// The tracer's records carry the figures the gas tracker saw for the
	// same step: the tracker must have run first.
	assert.Equal(t, uint64(100_000), root.Steps[0].GasRemaining)
	assert.Equal(t, uint64(99_997), root.Steps[1].GasRemaining)
	assert.Equal(t, uint64(3), p.GasTracker().Used())
}

func TestPipeline_DecisionHooksAlwaysContinue(t *testing.T) {
	p := NewPipeline(zerolog.Nop()).WithStepGasTracking().WithLogDecoding()

	for i := 0; i < 3; i++ {
		assert.Equal(t, Continue, p.Call(&CallInput{Gas: uint64(i)}))
		p.CallEnd(&CallOutcome{Err: errors.New("reverted")})
		assert.Equal(t, Continue, p.Create(&CreateInput{}))
		p.CreateEnd(&CreateOutcome{})
	}
}

func TestCallTracer_BuildsNestedTree(t *testing.T) {
	tr := NewCallTracer()
	tr.Initialize(nil)

	tr.Call(&CallInput{From: common.Address{1}, To: common.Address{2}, Gas: 1000})
	tr.Call(&CallInput{From: common.Address{2}, To: common.Address{3}, Gas: 500})
	tr.CallEnd(&CallOutcome{GasUsed: 100, Output: []byte{0x01}})
	tr.Create(&CreateInput{From: common.Address{2}, Gas: 300})
	tr.CreateEnd(&CreateOutcome{Address: common.Address{9}, GasUsed: 200})
	tr.CallEnd(&CallOutcome{GasUsed: 400})

	root := tr.Root()
	require.NotNil(t, root)
	assert.Equal(t, FrameCall, root.Kind)
	assert.Equal(t, common.Address{2}, root.To)
	assert.Equal(t, uint64(400), root.GasUsed)
	require.Len(t, root.Calls, 2)

	assert.Equal(t, FrameCall, root.Calls[0].Kind)
	assert.Equal(t, []byte{0x01}, root.Calls[0].Output)
	assert.Equal(t, FrameCreate, root.Calls[1].Kind)
	assert.Equal(t, common.Address{9}, root.Calls[1].To)
}

func TestGasTracker_ResetsPerTransaction(t *testing.T) {
	g := NewGasTracker()

	g.Initialize(nil)
	g.Step(&StepContext{Gas: 100})
	g.Step(&StepContext{Gas: 80})
	assert.Equal(t, uint64(20), g.Used())
	assert.Equal(t, uint64(80), g.Remaining())
	assert.Len(t, g.Records(), 2)

	g.Initialize(nil)
	assert.Zero(t, g.Used())
	assert.Empty(t, g.Records())
}

func abiString(s string) []byte {
	tail := ((len(s) + 31) / 32) * 32
	data := make([]byte, 64+tail)
	data[31] = 32
	big.NewInt(int64(len(s))).FillBytes(data[32:64])
	copy(data[64:], s)
	return data
}

func TestLogCollector_DecodesConsoleConvention(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	c := NewLogCollector(logger, true)
	c.Initialize(nil)
	c.Log(&types.Log{
		Topics: []common.Hash{logTopic},
		Data:   abiString("hello from the contract"),
	})

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Decoded)
	assert.Equal(t, "hello from the contract", entries[0].Message)
	assert.Contains(t, buf.String(), "hello from the contract")
}

func TestLogCollector_FallsBackToRawRendering(t *testing.T) {
	c := NewLogCollector(zerolog.Nop(), true)
	c.Initialize(nil)

	// Matching topic but garbage payload: degrade, never error.
	c.Log(&types.Log{
		Address: common.Address{0xaa},
		Topics:  []common.Hash{logTopic},
		Data:    []byte{0x01, 0x02},
	})
	// Unrelated event.
	c.Log(&types.Log{
		Address: common.Address{0xbb},
		Topics:  []common.Hash{{0x42}},
		Data:    []byte{0x03},
	})

	entries := c.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.False(t, e.Decoded)
		assert.Contains(t, e.Message, "log address=")
	}
}

func TestLogCollector_PrintLogsFlushesEverything(t *testing.T) {
	var buf bytes.Buffer
	c := NewLogCollector(zerolog.New(&buf), false)
	c.Initialize(nil)
	c.Log(&types.Log{Address: common.Address{0x01}})
	c.Log(&types.Log{Address: common.Address{0x02}})

	require.Empty(t, buf.String(), "nothing is emitted inline without decoding")
	c.PrintLogs()
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestDecodeConsoleLog_StringVariants(t *testing.T) {
	msg, ok := DecodeConsoleLog(&types.Log{
		Topics: []common.Hash{logStringTopic},
		Data:   abiString("named variant"),
	})
	require.True(t, ok)
	assert.Equal(t, "named variant", msg)

	_, ok = DecodeConsoleLog(&types.Log{Topics: []common.Hash{{0x01}}, Data: abiString("x")})
	assert.False(t, ok)

	_, ok = DecodeConsoleLog(&types.Log{})
	assert.False(t, ok)
}

func TestDecodeConsoleLog_WrappingWordsRejected(t *testing.T) {
	// Offset and length words near 2^64: naive `word+32` arithmetic wraps
	// below len(data) and the slice expression would panic.
	wrapWord := func(v uint64) []byte {
		w := make([]byte, 32)
		new(big.Int).SetUint64(v).FillBytes(w)
		return w
	}

	huge := append(wrapWord(math.MaxUint64-15), wrapWord(0)...)
	_, ok := DecodeConsoleLog(&types.Log{Topics: []common.Hash{logTopic}, Data: huge})
	assert.False(t, ok, "wrapping offset word must be rejected")

	// length = 2^64-64, so `off+32+length` wraps to exactly zero.
	data := abiString("ok")
	new(big.Int).SetUint64(math.MaxUint64 - 63).FillBytes(data[32:64])
	_, ok = DecodeConsoleLog(&types.Log{Topics: []common.Hash{logTopic}, Data: data})
	assert.False(t, ok, "wrapping length word must be rejected")

	// Through the collector both degrade to the raw rendering.
	c := NewLogCollector(zerolog.Nop(), true)
	c.Initialize(nil)
	c.Log(&types.Log{Topics: []common.Hash{logTopic}, Data: huge})
	c.Log(&types.Log{Topics: []common.Hash{logStringTopic}, Data: data})

	entries := c.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.False(t, e.Decoded)
		assert.Contains(t, e.Message, "log address=")
	}
}
