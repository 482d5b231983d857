package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"visitproof/internal/platform/kafka/consumer"
	"visitproof/internal/stamps/metrics"
	"visitproof/internal/stamps/models"
	"visitproof/pkg/platform/sentinel"
	"visitproof/pkg/platform/tracer"
)

// Store is the write side the worker backfills.
type Store interface {
	InsertCredential(ctx context.Context, credential models.IssuedCredential) error
}

// Ledger confirms claims whose outcome was unknown when the event was raised.
type Ledger interface {
	HasClaimed(ctx context.Context, holderID string, tokenID uint64) (bool, error)
}

const (
	resultBackfilled      = "backfilled"
	resultAlreadyRecorded = "already_recorded"
	resultNotOnLedger     = "not_on_ledger"
	resultMalformed       = "malformed"
)

// Worker consumes reconciliation events and records the credentials the
// store is missing. It implements consumer.Handler.
type Worker struct {
	store   Store
	ledger  Ledger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	logger  *slog.Logger
}

var _ consumer.Handler = (*Worker)(nil)

func NewWorker(store Store, ledger Ledger, m *metrics.Metrics, t tracer.Tracer, logger *slog.Logger) *Worker {
	if t == nil {
		t = tracer.NewNoop()
	}
	return &Worker{store: store, ledger: ledger, metrics: m, tracer: t, logger: logger}
}

// Handle processes one event. A returned error leaves the record uncommitted.
func (w *Worker) Handle(ctx context.Context, msg *consumer.Message) error {
	event, err := Decode(msg.Value)
	if err != nil {
		// A poison record is logged and committed so it cannot stall the partition.
		w.logger.ErrorContext(ctx, "dropping malformed reconciliation event",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		w.metrics.IncReconciliationProcessed(resultMalformed)
		return nil
	}

	ctx, span := w.tracer.Start(ctx, tracer.SpanReconcileEvent,
		tracer.String(tracer.AttrHolder, tracer.HashHolderID(event.HolderID)),
		tracer.String(tracer.AttrLocationID, event.LocationID),
		tracer.String(tracer.AttrTxHash, event.TxHash),
	)
	result, err := w.process(ctx, event)
	if result != "" {
		span.SetAttributes(tracer.String(tracer.AttrOutcome, result))
	}
	span.End(err)
	if err != nil {
		return err
	}

	w.metrics.IncReconciliationProcessed(result)
	w.logger.InfoContext(ctx, "reconciliation event processed",
		"event_id", event.ID.String(),
		"reason", string(event.Reason),
		"location_id", event.LocationID,
		"tx_hash", event.TxHash,
		"result", result,
	)
	return nil
}

func (w *Worker) process(ctx context.Context, event Event) (string, error) {
	// Without a block number the claim was never seen finalized; the ledger
	// decides whether there is anything to record.
	if event.BlockNumber == nil {
		claimed, err := w.ledger.HasClaimed(ctx, event.HolderID, event.TokenID)
		if err != nil {
			return "", err
		}
		if !claimed {
			w.logger.WarnContext(ctx, "reconciliation event not confirmed on ledger",
				"event_id", event.ID.String(),
				"tx_hash", event.TxHash,
			)
			return resultNotOnLedger, nil
		}
	}

	credential := models.IssuedCredential{
		ID:                uuid.New(),
		HolderID:          event.HolderID,
		LocationID:        event.LocationID,
		TokenID:           event.TokenID,
		LedgerBlockNumber: event.BlockNumber,
		ObservedLatitude:  event.ObservedLatitude,
		ObservedLongitude: event.ObservedLongitude,
		CollectedAt:       event.OccurredAt,
	}
	if event.TxHash != "" {
		tx := event.TxHash
		credential.LedgerTxHash = &tx
	}

	if err := w.store.InsertCredential(ctx, credential); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return resultAlreadyRecorded, nil
		}
		return "", err
	}
	return resultBackfilled, nil
}
