// Package models holds the stamp domain types shared by the store, ledger,
// issuance and HTTP layers.
package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"visitproof/internal/geo"
)

// LocationDefinition is one collectible location. Only Active changes after creation.
type LocationDefinition struct {
	ID         string
	Title      string
	TitleEn    string
	SecretHash string
	Active     bool
	TokenID    uint64
	// Coordinates is nil for location-less credentials, which skip the geofence.
	Coordinates *geo.Coordinates
	ImageURL    string
	CreatedAt   time.Time
}

// IssuedCredential records one successful collection. (HolderID, LocationID)
// is unique; ledger fields are nil when issued without a ledger.
type IssuedCredential struct {
	ID                uuid.UUID
	HolderID          string
	LocationID        string
	TokenID           uint64
	LedgerTxHash      *string
	LedgerBlockNumber *uint64
	ObservedLatitude  *float64
	ObservedLongitude *float64
	CollectedAt       time.Time
}

// OnLedger reports whether the credential carries a ledger receipt.
func (c IssuedCredential) OnLedger() bool {
	return c.LedgerTxHash != nil && *c.LedgerTxHash != ""
}

// PresenceClaim is an inbound scan plus optional GPS fix.
type PresenceClaim struct {
	LocationID     string
	Secret         string
	HolderID       string
	Observed       *geo.Coordinates
	AccuracyMeters *float64
}

// LedgerReceipt is the finalized result of a ledger claim.
type LedgerReceipt struct {
	TxHash      string
	BlockNumber uint64
}

// CatalogLocation is the public view of a definition. It never carries the secret.
type CatalogLocation struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	TitleEn     string           `json:"titleEn,omitempty"`
	TokenID     uint64           `json:"tokenId"`
	Coordinates *geo.Coordinates `json:"coordinates,omitempty"`
	ImageURL    string           `json:"imageUrl,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// ToCatalog strips the secret digest and active flag.
func (d LocationDefinition) ToCatalog() CatalogLocation {
	return CatalogLocation{
		ID:          d.ID,
		Title:       d.Title,
		TitleEn:     d.TitleEn,
		TokenID:     d.TokenID,
		Coordinates: d.Coordinates,
		ImageURL:    d.ImageURL,
		CreatedAt:   d.CreatedAt,
	}
}

// CollectionEntry is an issued credential joined with its location's display fields.
type CollectionEntry struct {
	Credential    IssuedCredential
	LocationTitle string
	TitleEn       string
	ImageURL      string
}

var evmAddress = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsEVMAddress reports whether holderID is a 0x-prefixed 20-byte hex address.
func IsEVMAddress(holderID string) bool {
	return evmAddress.MatchString(holderID)
}

// NormalizeHolderID trims whitespace and lower-cases EVM addresses so the
// same wallet always maps to the same idempotency key.
func NormalizeHolderID(holderID string) string {
	holderID = strings.TrimSpace(holderID)
	if IsEVMAddress(holderID) {
		return strings.ToLower(holderID)
	}
	return holderID
}
