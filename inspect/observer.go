// Package inspect fans virtual-machine lifecycle events out to independent
// execution observers: gas accounting, call/step tracing, and log capture.
// Observers are strictly observational; nothing in this package can alter
// the interpreter's control flow.
package inspect

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Action is the outcome an observer may request for a pending call or
// creation.
type Action int

const (
	// Continue tells the interpreter to proceed unchanged.
	Continue Action = iota
	// Skip is reserved for overriding facilities layered outside this
	// package (e.g. invariant-test call injection). The composite pipeline
	// never returns it.
	Skip
)

// StepContext describes a single interpreter step.
type StepContext struct {
	PC     uint64
	Opcode byte
	Depth  int
	// Gas remaining before the step executes.
	Gas uint64
	// Cost of the step, known on StepEnd.
	Cost uint64
	// Stack is a snapshot of the operand stack, top last. May be nil when
	// the interpreter does not expose it.
	Stack []uint256.Int
}

// CallInput describes a message call about to execute.
type CallInput struct {
	From  common.Address
	To    common.Address
	Input []byte
	Value *uint256.Int
	Gas   uint64
}

// CallOutcome describes a finished message call.
type CallOutcome struct {
	GasUsed uint64
	Output  []byte
	// Err is the VM-level failure (revert, out of gas). Observed, never
	// propagated.
	Err error
}

// CreateInput describes a contract creation about to execute.
type CreateInput struct {
	From  common.Address
	Init  []byte
	Value *uint256.Int
	Gas   uint64
}

// CreateOutcome describes a finished contract creation.
type CreateOutcome struct {
	GasUsed uint64
	Address common.Address
	Output  []byte
	Err     error
}

// Observer taps the interpreter's lifecycle hooks. The interpreter invokes,
// per transaction: Initialize, then step/step-end, log, call/call-end and
// create/create-end pairs as execution unfolds. Hooks are infallible; an
// observer must never fail a transaction.
type Observer interface {
	// Initialize is called once before the transaction executes.
	Initialize(tx *types.Transaction)

	Step(step *StepContext)
	StepEnd(step *StepContext)

	// Log is called for every LOG opcode the transaction emits.
	Log(entry *types.Log)

	// Call and Create run before the interpreter executes the call or
	// creation. The returned Action is advisory; the composite pipeline
	// discards it and always continues.
	Call(call *CallInput) Action
	CallEnd(outcome *CallOutcome)
	Create(create *CreateInput) Action
	CreateEnd(outcome *CreateOutcome)
}

// NoopObserver implements every hook as a no-op. Embed it to implement only
// the hooks an observer cares about.
type NoopObserver struct{}

var _ Observer = NoopObserver{}

func (NoopObserver) Initialize(*types.Transaction) {}
func (NoopObserver) Step(*StepContext)             {}
func (NoopObserver) StepEnd(*StepContext)          {}
func (NoopObserver) Log(*types.Log)                {}
func (NoopObserver) Call(*CallInput) Action        { return Continue }
func (NoopObserver) CallEnd(*CallOutcome)          {}
func (NoopObserver) Create(*CreateInput) Action    { return Continue }
func (NoopObserver) CreateEnd(*CreateOutcome)      {}
