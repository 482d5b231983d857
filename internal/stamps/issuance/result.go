package issuance

import (
	"fmt"

	"visitproof/internal/geo"
	"visitproof/internal/stamps/models"
)

// Outcome is the terminal label of a request, used for metrics and traces.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeTestMode       Outcome = "test_mode"
	OutcomePartialSuccess Outcome = "partial_success"
	OutcomeChainPending   Outcome = "chain_pending"
	OutcomeChainError     Outcome = "chain_error"
	OutcomeStoreError     Outcome = "store_error"
	OutcomeAbandoned      Outcome = "abandoned"
)

// Result is a successful issuance. ReconciliationPending is set when the
// ledger recorded the credential but the store write failed.
type Result struct {
	Credential            models.IssuedCredential
	Location              models.LocationDefinition
	Receipt               *models.LedgerReceipt
	TestMode              bool
	ReconciliationPending bool
	// Presence is the geofence outcome. It is verified without a measurement
	// when the location has no coordinates.
	Presence geo.Outcome
	State    State
}

func (r *Result) Outcome() Outcome {
	switch {
	case r.ReconciliationPending:
		return OutcomePartialSuccess
	case r.TestMode:
		return OutcomeTestMode
	default:
		return OutcomeSuccess
	}
}

// RejectionReason is a caller-attributable reason a claim was not issued.
type RejectionReason string

const (
	ReasonInvalidCredential        RejectionReason = "invalid_credential"
	ReasonMissingPresence          RejectionReason = "missing_presence"
	ReasonInvalidCoordinates       RejectionReason = "invalid_coordinates"
	ReasonTooFar                   RejectionReason = "too_far"
	ReasonAlreadyCollected         RejectionReason = "already_collected"
	ReasonAlreadyCollectedOnLedger RejectionReason = "already_collected_on_ledger"
	ReasonInvalidHolder            RejectionReason = "invalid_holder"
)

// Rejection ends a request at a gate. It carries enough structured data to
// render an actionable message and never wraps an infrastructure error.
type Rejection struct {
	Reason  RejectionReason
	Message string
	// DistanceMeters and MaxMeters are set for presence rejections. Measured
	// is false when no distance could be computed.
	DistanceMeters float64
	MaxMeters      float64
	Measured       bool
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

func rejectPresence(o geo.Outcome) *Rejection {
	reason := ReasonTooFar
	switch o.Reason {
	case geo.ReasonMissingPresence:
		reason = ReasonMissingPresence
	case geo.ReasonInvalidCoordinates:
		reason = ReasonInvalidCoordinates
	}
	return &Rejection{
		Reason:         reason,
		Message:        o.Message(),
		DistanceMeters: o.DistanceMeters,
		MaxMeters:      o.MaxMeters,
		Measured:       o.Measured,
	}
}
