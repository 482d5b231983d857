package tracer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"visitproof/pkg/platform/tracer"
)

func TestNoopTracer_Start(t *testing.T) {
	tr := tracer.NewNoop()
	ctx := context.Background()

	newCtx, span := tr.Start(ctx, tracer.SpanIssuance,
		tracer.String(tracer.AttrLocationID, "L1"),
		tracer.Bool(tracer.AttrTestMode, true),
	)

	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)

	span.SetAttributes(tracer.Int64(tracer.AttrTokenID, 7))
	span.AddEvent(tracer.EventStateTransition)
	span.End(errors.New("boom"))
}

func TestOTelTracer_WithInjectedTracer(t *testing.T) {
	tr := tracer.NewOTel("test", tracer.WithOTelTracer(noop.NewTracerProvider().Tracer("test")))

	_, span := tr.Start(context.Background(), tracer.SpanLedgerClaim,
		tracer.Float64(tracer.AttrDistanceM, 12.5),
		tracer.Duration("elapsed", 0),
	)
	require.NotNil(t, span)
	span.AddEvent(tracer.EventReconcileQueued, tracer.String(tracer.AttrTxHash, "0xabc"))
	span.End(nil)
}

func TestHashHolderID(t *testing.T) {
	assert.Empty(t, tracer.HashHolderID(""))
	assert.Len(t, tracer.HashHolderID("0xabc"), 16)
	assert.Equal(t, tracer.HashHolderID("0xabc"), tracer.HashHolderID("0xabc"))
	assert.NotEqual(t, tracer.HashHolderID("0xabc"), tracer.HashHolderID("0xabd"))
}

func TestAttributeConstructors(t *testing.T) {
	assert.Equal(t, tracer.Attribute{Key: "k", Value: "v"}, tracer.String("k", "v"))
	assert.Equal(t, int64(150), tracer.Duration("latency", 150*1e6).Value)
}
