package handler

import (
	"math"
	"net/http"
	"time"

	"visitproof/internal/stamps/catalog"
	"visitproof/internal/stamps/issuance"
	"visitproof/internal/stamps/ledger"
)

// CredentialResponse describes an issued credential.
type CredentialResponse struct {
	ID            string    `json:"id"`
	LocationID    string    `json:"locationId"`
	LocationTitle string    `json:"locationTitle"`
	TitleEn       string    `json:"titleEn,omitempty"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	TokenID       uint64    `json:"tokenId"`
	LedgerTxHash  *string   `json:"ledgerTxHash"`
	BlockNumber   *uint64   `json:"blockNumber,omitempty"`
	ExplorerURL   string    `json:"explorerUrl,omitempty"`
	TestMode      bool      `json:"testMode"`
	CollectedAt   time.Time `json:"collectedAt"`
}

// CollectResponse is the 201 body of POST /stamps/collect.
type CollectResponse struct {
	Credential            CredentialResponse `json:"credential"`
	ReconciliationPending bool               `json:"reconciliationPending"`
	Warning               string             `json:"warning,omitempty"`
	DistanceMeters        *int               `json:"distanceMeters,omitempty"`
}

// RejectionResponse is the body for gate failures.
type RejectionResponse struct {
	Error                  string `json:"error"`
	Details                string `json:"details"`
	DistanceMeters         *int   `json:"distanceMeters,omitempty"`
	RequiredDistanceMeters *int   `json:"requiredDistanceMeters,omitempty"`
}

// ChainErrorResponse is the body when the ledger claim failed or is still pending.
type ChainErrorResponse struct {
	Error       string `json:"error"`
	Details     string `json:"details"`
	TxHash      string `json:"txHash,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
	Pending     bool   `json:"pending,omitempty"`
}

type LocationsResponse struct {
	Locations []catalog.Location `json:"locations"`
}

func toCollectResponse(res *issuance.Result, explorerBase string) CollectResponse {
	c := res.Credential
	out := CollectResponse{
		Credential: CredentialResponse{
			ID:            c.ID.String(),
			LocationID:    c.LocationID,
			LocationTitle: res.Location.Title,
			TitleEn:       res.Location.TitleEn,
			ImageURL:      res.Location.ImageURL,
			TokenID:       c.TokenID,
			LedgerTxHash:  c.LedgerTxHash,
			BlockNumber:   c.LedgerBlockNumber,
			TestMode:      res.TestMode,
			CollectedAt:   c.CollectedAt,
		},
		ReconciliationPending: res.ReconciliationPending,
		Warning:               res.Presence.Warning,
	}
	if res.Presence.Measured {
		out.DistanceMeters = roundedMeters(res.Presence.DistanceMeters)
	}
	if c.LedgerTxHash != nil {
		out.Credential.ExplorerURL = ledger.ExplorerURL(explorerBase, *c.LedgerTxHash)
	}
	return out
}

// rejectionStatus maps a gate failure to its HTTP status. Presence that was
// not proven is forbidden; malformed input is a bad request.
func rejectionStatus(reason issuance.RejectionReason) int {
	switch reason {
	case issuance.ReasonMissingPresence, issuance.ReasonTooFar:
		return http.StatusForbidden
	case issuance.ReasonAlreadyCollected, issuance.ReasonAlreadyCollectedOnLedger:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func toRejectionResponse(rej *issuance.Rejection) RejectionResponse {
	out := RejectionResponse{
		Error:   string(rej.Reason),
		Details: rej.Message,
	}
	switch rej.Reason {
	case issuance.ReasonTooFar, issuance.ReasonMissingPresence:
		out.RequiredDistanceMeters = roundedMeters(rej.MaxMeters)
		if rej.Measured {
			out.DistanceMeters = roundedMeters(rej.DistanceMeters)
		}
	}
	return out
}

func toChainErrorResponse(ce *ledger.ChainError, explorerBase string) (int, ChainErrorResponse) {
	if ce.Pending() {
		return http.StatusGatewayTimeout, ChainErrorResponse{
			Error:       "ledger_pending",
			Details:     "The ledger has not confirmed the credential yet. It will appear in your collection once confirmed.",
			TxHash:      ce.TxHash,
			ExplorerURL: ledger.ExplorerURL(explorerBase, ce.TxHash),
			Pending:     true,
		}
	}
	details := "Failed to issue credential on the ledger"
	if ce.Kind == ledger.KindRevert && ce.Reason != "" {
		details += ": " + ce.Reason
	}
	if ce.Kind == ledger.KindUnavailable {
		details = "The ledger is temporarily unavailable"
	}
	return http.StatusInternalServerError, ChainErrorResponse{
		Error:   "ledger_error",
		Details: details,
		TxHash:  ce.TxHash,
	}
}

func roundedMeters(m float64) *int {
	v := int(math.Round(m))
	return &v
}
