// Package issuance turns a presence claim into an issued credential. Each
// request walks an explicit state machine: credential check, geofence,
// idempotency, then issuance in test mode or on the ledger.
package issuance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"visitproof/internal/geo"
	"visitproof/internal/stamps/ledger"
	"visitproof/internal/stamps/metrics"
	"visitproof/internal/stamps/models"
	"visitproof/internal/stamps/reconcile"
	dErrors "visitproof/pkg/domain-errors"
	"visitproof/pkg/platform/sentinel"
	"visitproof/pkg/platform/tracer"
)

const (
	defaultClaimTimeout      = 90 * time.Second
	defaultStoreWriteTimeout = 10 * time.Second
	defaultNotifyTimeout     = 10 * time.Second
)

// Orchestrator runs collect requests. It holds no per-holder state; the
// store's unique constraint and the ledger's claim guard are the only
// serialization points.
type Orchestrator struct {
	store    CredentialStore
	ledger   Ledger
	verifier PresenceVerifier
	notifier Notifier
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	logger   *slog.Logger
	now      func() time.Time

	claimTimeout      time.Duration
	storeWriteTimeout time.Duration

	// inflight tracks claims so shutdown can wait for their store writes.
	inflight sync.WaitGroup
}

type Option func(*Orchestrator)

// WithClaimTimeout bounds a ledger claim from submission to finalization.
// It should be shorter than the HTTP request timeout.
func WithClaimTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.claimTimeout = d
		}
	}
}

func WithStoreWriteTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.storeWriteTimeout = d
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func New(store CredentialStore, l Ledger, verifier PresenceVerifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:             store,
		ledger:            l,
		verifier:          verifier,
		tracer:            tracer.NewNoop(),
		logger:            slog.Default(),
		now:               time.Now,
		claimTimeout:      defaultClaimTimeout,
		storeWriteTimeout: defaultStoreWriteTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.notifier == nil {
		o.notifier = reconcile.NewLogNotifier(o.logger)
	}
	return o
}

// Collect processes one presence claim. Gate failures are returned as
// *Rejection. Ledger failures are *ledger.ChainError; a pending one means the
// claim was broadcast and handed to reconciliation. Store failures are
// domain errors with CodeInternal.
func (o *Orchestrator) Collect(ctx context.Context, claim models.PresenceClaim) (*Result, error) {
	start := o.now()
	claim.HolderID = models.NormalizeHolderID(claim.HolderID)

	ctx, span := o.tracer.Start(ctx, tracer.SpanIssuance,
		tracer.String(tracer.AttrHolder, tracer.HashHolderID(claim.HolderID)),
		tracer.String(tracer.AttrLocationID, claim.LocationID),
	)
	r := &request{o: o, claim: claim, state: StateReceived, span: span}

	res, err := r.run(ctx)
	outcome := outcomeOf(res, err)
	span.SetAttributes(tracer.String(tracer.AttrOutcome, outcome))

	var rej *Rejection
	if errors.As(err, &rej) {
		span.End(nil)
	} else {
		span.End(err)
	}
	o.metrics.ObserveIssuance(outcome, o.now().Sub(start))
	return res, err
}

// Wait blocks until every claim started by Collect has finished, including
// claims whose caller went away, or until ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// request is the state of one Collect call.
type request struct {
	o     *Orchestrator
	claim models.PresenceClaim
	state State
	span  tracer.Span
}

func (r *request) to(ctx context.Context, next State) {
	if !CanTransition(r.state, next) {
		// Programming error; the table and the code below must agree.
		panic(fmt.Sprintf("issuance: invalid transition %s -> %s", r.state, next))
	}
	r.o.logger.DebugContext(ctx, "issuance state transition",
		"from", r.state.String(),
		"to", next.String(),
		"location_id", r.claim.LocationID,
	)
	r.span.AddEvent(tracer.EventStateTransition,
		tracer.String("from", r.state.String()),
		tracer.String("to", next.String()),
	)
	r.state = next
}

func (r *request) reject(ctx context.Context, rej *Rejection) (*Result, error) {
	r.to(ctx, StateRejected)
	r.o.logger.InfoContext(ctx, "presence claim rejected",
		"reason", string(rej.Reason),
		"location_id", r.claim.LocationID,
		"distance_m", rej.DistanceMeters,
		"max_m", rej.MaxMeters,
	)
	return nil, rej
}

func (r *request) fail(ctx context.Context, err error) (*Result, error) {
	r.to(ctx, StateFailed)
	return nil, err
}

func (r *request) run(ctx context.Context) (*Result, error) {
	o := r.o
	claim := r.claim

	def, err := o.store.FindActiveDefinition(ctx, claim.LocationID, claim.Secret)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return r.reject(ctx, &Rejection{Reason: ReasonInvalidCredential, Message: "Invalid location or secret"})
		}
		return r.fail(ctx, storeError(err, "failed to look up location"))
	}
	r.to(ctx, StateCredentialChecked)
	r.span.SetAttributes(tracer.Uint64(tracer.AttrTokenID, def.TokenID))

	presence := geo.Outcome{Verified: true}
	if def.Coordinates != nil {
		presence = o.verifier.Verify(claim.Observed, *def.Coordinates, claim.AccuracyMeters)
		if presence.Measured {
			r.span.SetAttributes(tracer.Float64(tracer.AttrDistanceM, presence.DistanceMeters))
		}
		if !presence.Verified {
			return r.reject(ctx, rejectPresence(presence))
		}
		if presence.Warning != "" {
			o.logger.InfoContext(ctx, "presence verified with warning",
				"location_id", claim.LocationID,
				"warning", presence.Warning,
			)
		}
	}
	r.to(ctx, StateGeoVerified)

	existing, err := o.store.FindExistingCredential(ctx, claim.HolderID, claim.LocationID)
	switch {
	case err == nil && existing != nil:
		return r.reject(ctx, alreadyCollected())
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return r.fail(ctx, storeError(err, "failed to check existing credentials"))
	}
	r.to(ctx, StateIdempotencyChecked)

	if !o.ledger.Configured() {
		return r.issueTestMode(ctx, *def, presence)
	}

	if err := o.ledger.ValidateHolder(claim.HolderID); err != nil {
		return r.reject(ctx, &Rejection{Reason: ReasonInvalidHolder, Message: "holderId must be a wallet address"})
	}

	claimed, err := r.hasClaimed(ctx, def.TokenID)
	if err != nil {
		return r.fail(ctx, err)
	}
	if claimed {
		return r.reject(ctx, alreadyCollectedOnLedger())
	}

	return r.issueOnLedger(ctx, *def, presence)
}

func (r *request) issueTestMode(ctx context.Context, def models.LocationDefinition, presence geo.Outcome) (*Result, error) {
	o := r.o
	credential := r.newCredential(def)
	r.span.SetAttributes(tracer.Bool(tracer.AttrTestMode, true))

	ctx, span := o.tracer.Start(ctx, tracer.SpanStoreInsert)
	err := o.store.InsertCredential(ctx, credential)
	span.End(err)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return r.reject(ctx, alreadyCollected())
		}
		return r.fail(ctx, storeError(err, "failed to record credential"))
	}

	r.to(ctx, StateTestModeIssued)
	r.to(ctx, StateTerminal)
	o.logger.InfoContext(ctx, "credential issued in test mode",
		"location_id", def.ID,
		"token_id", def.TokenID,
	)
	return &Result{
		Credential: credential,
		Location:   def,
		TestMode:   true,
		Presence:   presence,
		State:      r.state,
	}, nil
}

func (r *request) hasClaimed(ctx context.Context, tokenID uint64) (bool, error) {
	o := r.o
	ctx, span := o.tracer.Start(ctx, tracer.SpanLedgerHas, tracer.Uint64(tracer.AttrTokenID, tokenID))
	start := o.now()
	claimed, err := o.ledger.HasClaimed(ctx, r.claim.HolderID, tokenID)
	o.metrics.ObserveLedgerCall("has_claimed", err, o.now().Sub(start))
	span.End(err)
	return claimed, err
}

// claimOutcome is what the issuing goroutine hands back to the request.
type claimOutcome struct {
	credential models.IssuedCredential
	receipt    *models.LedgerReceipt
	claimErr   error
	storeErr   error
}

// handoff records whether the caller stopped waiting before the issuing
// goroutine finished, so the detached gauge counts each claim at most once.
type handoff struct {
	mu       sync.Mutex
	finished bool
	detached bool
}

func (r *request) issueOnLedger(ctx context.Context, def models.LocationDefinition, presence geo.Outcome) (*Result, error) {
	o := r.o
	done := make(chan claimOutcome, 1)
	h := &handoff{}

	// The mint is irreversible once submitted, so it runs on a context the
	// caller cannot cancel and always reaches the store write.
	detachedCtx := context.WithoutCancel(ctx)
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		out := r.claimAndRecord(detachedCtx, def)

		h.mu.Lock()
		h.finished = true
		wasDetached := h.detached
		h.mu.Unlock()
		if wasDetached {
			o.metrics.DecDetached()
			o.logger.InfoContext(detachedCtx, "detached issuance finished",
				"location_id", def.ID,
				"claim_error", errString(out.claimErr),
				"store_error", errString(out.storeErr),
			)
		}
		done <- out
	}()

	var out claimOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		h.mu.Lock()
		if !h.finished {
			h.detached = true
			o.metrics.IncDetached()
		}
		h.mu.Unlock()
		o.logger.WarnContext(ctx, "caller left during ledger claim; issuance continues in background",
			"location_id", def.ID,
			"token_id", def.TokenID,
		)
		return r.fail(ctx, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "request ended while issuance was in progress"))
	}

	if out.claimErr != nil {
		if ledger.IsAlreadyClaimed(out.claimErr) {
			return r.reject(ctx, alreadyCollectedOnLedger())
		}
		return r.fail(ctx, out.claimErr)
	}

	r.span.SetAttributes(tracer.String(tracer.AttrTxHash, out.receipt.TxHash))
	res := &Result{
		Credential: out.credential,
		Location:   def,
		Receipt:    out.receipt,
		Presence:   presence,
	}
	if out.storeErr != nil {
		r.to(ctx, StateLedgerIssuedStoreFailed)
		res.ReconciliationPending = true
	} else {
		r.to(ctx, StateLedgerIssued)
	}
	r.to(ctx, StateTerminal)
	res.State = r.state
	return res, nil
}

// claimAndRecord submits the claim and, once it is final, writes the store
// row. Any issuance the store does not record is handed to the notifier.
func (r *request) claimAndRecord(ctx context.Context, def models.LocationDefinition) claimOutcome {
	o := r.o
	holderID := r.claim.HolderID

	claimCtx, cancel := context.WithTimeout(ctx, o.claimTimeout)
	claimCtx, span := o.tracer.Start(claimCtx, tracer.SpanLedgerClaim, tracer.Uint64(tracer.AttrTokenID, def.TokenID))
	start := o.now()
	receipt, err := o.ledger.Claim(claimCtx, holderID, def.TokenID)
	o.metrics.ObserveLedgerCall("claim", err, o.now().Sub(start))
	span.End(err)
	cancel()

	if err != nil {
		var ce *ledger.ChainError
		if errors.As(err, &ce) && ce.Pending() {
			o.logger.ErrorContext(ctx, "ledger claim not finalized before deadline",
				"location_id", def.ID,
				"token_id", def.TokenID,
				"tx_hash", ce.TxHash,
				"reconciliation_pending", true,
			)
			r.notify(ctx, def, ce.TxHash, nil, reconcile.ReasonClaimPending)
		} else if !ledger.IsAlreadyClaimed(err) {
			o.logger.ErrorContext(ctx, "ledger claim failed", "location_id", def.ID, "error", err)
		}
		return claimOutcome{claimErr: err}
	}

	credential := r.newCredential(def)
	txHash := receipt.TxHash
	block := receipt.BlockNumber
	credential.LedgerTxHash = &txHash
	credential.LedgerBlockNumber = &block

	storeCtx, cancel := context.WithTimeout(ctx, o.storeWriteTimeout)
	storeCtx, span = o.tracer.Start(storeCtx, tracer.SpanStoreInsert, tracer.String(tracer.AttrTxHash, txHash))
	storeErr := o.store.InsertCredential(storeCtx, credential)
	span.End(storeErr)
	cancel()

	if storeErr != nil {
		o.logger.ErrorContext(ctx, "credential issued on ledger but not recorded",
			"location_id", def.ID,
			"token_id", def.TokenID,
			"tx_hash", txHash,
			"block_number", block,
			"error", storeErr,
			"reconciliation_pending", true,
		)
		r.notify(ctx, def, txHash, &block, reconcile.ReasonStoreWriteFailed)
	} else {
		o.logger.InfoContext(ctx, "credential issued on ledger",
			"location_id", def.ID,
			"token_id", def.TokenID,
			"tx_hash", txHash,
			"block_number", block,
		)
	}
	return claimOutcome{credential: credential, receipt: receipt, storeErr: storeErr}
}

func (r *request) notify(ctx context.Context, def models.LocationDefinition, txHash string, block *uint64, reason reconcile.Reason) {
	o := r.o
	o.metrics.IncReconciliationPending(string(reason))
	r.span.AddEvent(tracer.EventReconcileQueued, tracer.String("reason", string(reason)))

	ctx, cancel := context.WithTimeout(ctx, defaultNotifyTimeout)
	defer cancel()
	err := o.notifier.Notify(ctx, reconcile.Event{
		ID:                uuid.New(),
		HolderID:          r.claim.HolderID,
		LocationID:        def.ID,
		TokenID:           def.TokenID,
		TxHash:            txHash,
		BlockNumber:       block,
		ObservedLatitude:  observedLatitude(r.claim),
		ObservedLongitude: observedLongitude(r.claim),
		Reason:            reason,
		OccurredAt:        o.now().UTC(),
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to enqueue reconciliation",
			"location_id", def.ID,
			"tx_hash", txHash,
			"reason", string(reason),
			"error", err,
		)
	}
}

func (r *request) newCredential(def models.LocationDefinition) models.IssuedCredential {
	return models.IssuedCredential{
		ID:                uuid.New(),
		HolderID:          r.claim.HolderID,
		LocationID:        def.ID,
		TokenID:           def.TokenID,
		ObservedLatitude:  observedLatitude(r.claim),
		ObservedLongitude: observedLongitude(r.claim),
		CollectedAt:       r.o.now().UTC(),
	}
}
