// Package telemetry decorates node collaborators with OpenTelemetry spans.
package telemetry

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/evstack/devnode/inspect"
	"github.com/evstack/devnode/node"
)

// tracedExecutor wraps a node.Executor and records spans for transaction
// execution.
type tracedExecutor struct {
	inner  node.Executor
	tracer trace.Tracer
}

// WithTracingExecutor decorates an Executor with OpenTelemetry spans.
func WithTracingExecutor(inner node.Executor) node.Executor {
	return &tracedExecutor{
		inner:  inner,
		tracer: otel.Tracer("devnode/execution"),
	}
}

func (t *tracedExecutor) ExecuteTxs(ctx context.Context, txs []*types.Transaction, height uint64, timestamp time.Time, observer inspect.Observer) (*node.ExecResult, error) {
	ctx, span := t.tracer.Start(ctx, "Executor.ExecuteTxs",
		trace.WithAttributes(
			attribute.Int64("block.height", int64(height)),
			attribute.Int("block.num_txs", len(txs)),
			attribute.Int64("block.time_unix", timestamp.Unix()),
		),
	)
	defer span.End()

	result, err := t.inner.ExecuteTxs(ctx, txs, height, timestamp, observer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("block.gas_used", int64(result.GasUsed)),
		attribute.String("block.state_root", result.StateRoot.Hex()),
	)
	return result, nil
}
