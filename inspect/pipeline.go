package inspect

import (
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

// Pipeline presents one Observer to the interpreter and fans every hook out
// to the configured sub-observers in a fixed order: gas tracker, then
// tracer, then log collector. Sub-observer return values are discarded; the
// pipeline always answers decision hooks with Continue.
//
// The zero configuration observes nothing. Builder operations enable
// sub-observers and return the pipeline for chaining.
type Pipeline struct {
	gas       *GasTracker
	tracer    *CallTracer
	collector *LogCollector
	logger    zerolog.Logger
}

var _ Observer = (*Pipeline)(nil)

// NewPipeline returns a pipeline with no sub-observers enabled.
func NewPipeline(logger zerolog.Logger) *Pipeline {
	return &Pipeline{logger: logger}
}

// WithTracing enables the call/step tracer.
func (p *Pipeline) WithTracing() *Pipeline {
	if p.tracer == nil {
		p.tracer = NewCallTracer()
	}
	return p
}

// WithLogDecoding enables the log collector with inline decoding of the
// debugging-log convention.
func (p *Pipeline) WithLogDecoding() *Pipeline {
	if p.collector == nil {
		p.collector = NewLogCollector(p.logger, true)
	}
	return p
}

// WithStepGasTracking enables step-level gas tracking. The tracer is
// enabled first if it is not already (it must exist to be wired), then
// given shared access to the tracker so step records carry gas-remaining
// figures.
func (p *Pipeline) WithStepGasTracking() *Pipeline {
	if p.gas == nil {
		p.gas = NewGasTracker()
	}
	p.WithTracing()
	p.tracer.shareGasTracker(p.gas)
	return p
}

// GasTracker returns the enabled gas tracker, nil when gas tracking is off.
func (p *Pipeline) GasTracker() *GasTracker { return p.gas }

// Tracer returns the enabled call tracer, nil when tracing is off.
func (p *Pipeline) Tracer() *CallTracer { return p.tracer }

// Collector returns the enabled log collector, nil when log capture is off.
func (p *Pipeline) Collector() *LogCollector { return p.collector }

// PrintLogs flushes all collected log events to the informational log
// stream.
func (p *Pipeline) PrintLogs() {
	if p.collector != nil {
		p.collector.PrintLogs()
	}
}

// observers yields the configured sub-observers in fan-out order.
func (p *Pipeline) observers(fn func(Observer)) {
	if p.gas != nil {
		fn(p.gas)
	}
	if p.tracer != nil {
		fn(p.tracer)
	}
	if p.collector != nil {
		fn(p.collector)
	}
}

func (p *Pipeline) Initialize(tx *types.Transaction) {
	p.observers(func(o Observer) { o.Initialize(tx) })
}

func (p *Pipeline) Step(step *StepContext) {
	p.observers(func(o Observer) { o.Step(step) })
}

func (p *Pipeline) StepEnd(step *StepContext) {
	p.observers(func(o Observer) { o.StepEnd(step) })
}

func (p *Pipeline) Log(entry *types.Log) {
	p.observers(func(o Observer) { o.Log(entry) })
}

// Call fans out for side effects only. Whatever any sub-observer computed,
// the interpreter is told to continue unmodified: this pipeline never
// redirects control flow.
func (p *Pipeline) Call(call *CallInput) Action {
	p.observers(func(o Observer) { o.Call(call) })
	return Continue
}

func (p *Pipeline) CallEnd(outcome *CallOutcome) {
	p.observers(func(o Observer) { o.CallEnd(outcome) })
}

// Create fans out for side effects only and always continues, same as Call.
func (p *Pipeline) Create(create *CreateInput) Action {
	p.observers(func(o Observer) { o.Create(create) })
	return Continue
}

func (p *Pipeline) CreateEnd(outcome *CreateOutcome) {
	p.observers(func(o Observer) { o.CreateEnd(outcome) })
}
