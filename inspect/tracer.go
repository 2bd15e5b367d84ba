package inspect

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// FrameKind distinguishes call frames from creation frames.
type FrameKind int

const (
	FrameCall FrameKind = iota
	FrameCreate
)

// StepRecord is one traced interpreter step. GasRemaining is sourced from
// the shared gas tracker when step-level gas tracking is enabled, zero
// otherwise.
type StepRecord struct {
	PC           uint64
	Opcode       byte
	Depth        int
	GasRemaining uint64
}

// CallFrame is one node of the traced call tree.
type CallFrame struct {
	Kind    FrameKind
	From    common.Address
	To      common.Address
	Input   []byte
	Gas     uint64
	GasUsed uint64
	Output  []byte
	Err     error

	Calls []*CallFrame
	Steps []StepRecord
}

// CallTracer builds a call/creation tree with per-step records. It holds a
// shared reference to the gas tracker (a sibling observer, not a child) so
// step records can carry gas-remaining figures.
type CallTracer struct {
	NoopObserver

	gas   *GasTracker
	root  *CallFrame
	stack []*CallFrame
}

// NewCallTracer returns an empty tracer.
func NewCallTracer() *CallTracer {
	return &CallTracer{}
}

// shareGasTracker hands the tracer shared access to the pipeline's gas
// tracker. Must be set before execution starts.
func (t *CallTracer) shareGasTracker(g *GasTracker) {
	t.gas = g
}

// Root returns the top-level frame of the traced transaction, nil before
// any call was observed.
func (t *CallTracer) Root() *CallFrame {
	return t.root
}

// Initialize resets the tracer for a new transaction.
func (t *CallTracer) Initialize(*types.Transaction) {
	t.root = nil
	t.stack = t.stack[:0]
}

func (t *CallTracer) push(frame *CallFrame) {
	if t.root == nil {
		t.root = frame
	} else if len(t.stack) > 0 {
		parent := t.stack[len(t.stack)-1]
		parent.Calls = append(parent.Calls, frame)
	}
	t.stack = append(t.stack, frame)
}

func (t *CallTracer) pop() *CallFrame {
	if len(t.stack) == 0 {
		return nil
	}
	frame := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	return frame
}

func (t *CallTracer) Step(step *StepContext) {
	if len(t.stack) == 0 {
		return
	}
	rec := StepRecord{PC: step.PC, Opcode: step.Opcode, Depth: step.Depth}
	if t.gas != nil {
		rec.GasRemaining = t.gas.Remaining()
	}
	frame := t.stack[len(t.stack)-1]
	frame.Steps = append(frame.Steps, rec)
}

func (t *CallTracer) Call(call *CallInput) Action {
	t.push(&CallFrame{
		Kind:  FrameCall,
		From:  call.From,
		To:    call.To,
		Input: call.Input,
		Gas:   call.Gas,
	})
	return Continue
}

func (t *CallTracer) CallEnd(outcome *CallOutcome) {
	if frame := t.pop(); frame != nil {
		frame.GasUsed = outcome.GasUsed
		frame.Output = outcome.Output
		frame.Err = outcome.Err
	}
}

func (t *CallTracer) Create(create *CreateInput) Action {
	t.push(&CallFrame{
		Kind:  FrameCreate,
		From:  create.From,
		Input: create.Init,
		Gas:   create.Gas,
	})
	return Continue
}

func (t *CallTracer) CreateEnd(outcome *CreateOutcome) {
	if frame := t.pop(); frame != nil {
		frame.To = outcome.Address
		frame.GasUsed = outcome.GasUsed
		frame.Output = outcome.Output
		frame.Err = outcome.Err
	}
}
