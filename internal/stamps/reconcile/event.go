// Package reconcile carries ledger issuances that the store has not recorded
// and backfills them. Nothing here ever submits a ledger claim.
package reconcile

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reason says why an issuance needs reconciliation.
type Reason string

const (
	// ReasonStoreWriteFailed: the claim was finalized but InsertCredential failed.
	ReasonStoreWriteFailed Reason = "store_write_failed"
	// ReasonClaimPending: the claim was broadcast but not finalized before the deadline.
	ReasonClaimPending Reason = "claim_pending"
)

// DefaultTopic is the Kafka topic reconciliation events are published to.
const DefaultTopic = "visitproof.reconciliation"

// Event describes one issuance the store may be missing.
type Event struct {
	ID                uuid.UUID `json:"id"`
	HolderID          string    `json:"holderId"`
	LocationID        string    `json:"locationId"`
	TokenID           uint64    `json:"tokenId"`
	TxHash            string    `json:"txHash"`
	BlockNumber       *uint64   `json:"blockNumber,omitempty"`
	ObservedLatitude  *float64  `json:"observedLatitude,omitempty"`
	ObservedLongitude *float64  `json:"observedLongitude,omitempty"`
	Reason            Reason    `json:"reason"`
	OccurredAt        time.Time `json:"occurredAt"`
}

// Key partitions events by holder and location so events for one credential stay ordered.
func (e Event) Key() string {
	return e.HolderID + "/" + e.LocationID
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode reconciliation event: %w", err)
	}
	if e.HolderID == "" || e.LocationID == "" {
		return Event{}, fmt.Errorf("decode reconciliation event: holder and location are required")
	}
	return e, nil
}
