// Package tracer provides a lightweight tracing abstraction.
//
// Services depend on the Tracer interface rather than on OpenTelemetry
// directly, so tests run with NoopTracer and production wires OTelTracer.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording err when non-nil.
	// End must be called exactly once, typically via defer.
	End(err error)

	SetAttributes(attrs ...Attribute)

	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
//
//	ctx, span := tr.Start(ctx, tracer.SpanIssuance,
//	    tracer.String(tracer.AttrLocationID, claim.LocationID),
//	)
//	defer span.End(nil)
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Uint64 values above math.MaxInt64 are exported as strings.
func Uint64(key string, value uint64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashHolderID returns a short SHA-256 prefix of a holder identity so traces
// can be correlated without exporting wallet addresses.
func HashHolderID(holderID string) string {
	if holderID == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(holderID))
	return hex.EncodeToString(hash[:8])
}

// Span names.
const (
	SpanIssuance       = "issuance.collect"
	SpanLedgerHas      = "ledger.has_claimed"
	SpanLedgerClaim    = "ledger.claim"
	SpanStoreInsert    = "store.insert_credential"
	SpanReconcileEvent = "reconcile.event"
)

// Attribute keys.
const (
	AttrHolder     = "holder.hash"
	AttrLocationID = "location.id"
	AttrTokenID    = "token.id"
	AttrTestMode   = "test_mode"
	AttrOutcome    = "outcome"
	AttrTxHash     = "ledger.tx_hash"
	AttrDistanceM  = "geo.distance_m"
)

// Event names.
const (
	EventStateTransition = "state.transition"
	EventReconcileQueued = "reconcile.queued"
)
