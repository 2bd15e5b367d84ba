package inspect

import (
	"github.com/ethereum/go-ethereum/core/types"
)

// GasRecord is the gas snapshot taken at one interpreter step.
type GasRecord struct {
	PC        uint64
	Remaining uint64
	Cost      uint64
}

// GasTracker records gas-remaining figures per step. It is shared with the
// call tracer when both are enabled; the pipeline is single-threaded, so
// plain pointer sharing is safe.
type GasTracker struct {
	NoopObserver

	records []GasRecord
	initial uint64
	last    uint64
	seen    bool
}

// NewGasTracker returns an empty tracker.
func NewGasTracker() *GasTracker {
	return &GasTracker{}
}

// Initialize resets the tracker for a new transaction.
func (g *GasTracker) Initialize(*types.Transaction) {
	g.records = g.records[:0]
	g.initial = 0
	g.last = 0
	g.seen = false
}

// Step records the gas remaining before the step executes.
func (g *GasTracker) Step(step *StepContext) {
	if !g.seen {
		g.initial = step.Gas
		g.seen = true
	}
	g.last = step.Gas
	g.records = append(g.records, GasRecord{PC: step.PC, Remaining: step.Gas, Cost: step.Cost})
}

// Remaining returns the gas remaining at the most recent step.
func (g *GasTracker) Remaining() uint64 {
	return g.last
}

// Used returns the gas consumed between the first and the most recent step.
func (g *GasTracker) Used() uint64 {
	return g.initial - g.last
}

// Records returns the per-step gas snapshots in execution order.
func (g *GasTracker) Records() []GasRecord {
	return g.records
}
