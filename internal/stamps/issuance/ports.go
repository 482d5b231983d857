package issuance

import (
	"context"

	"visitproof/internal/geo"
	"visitproof/internal/stamps/models"
	"visitproof/internal/stamps/reconcile"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks CredentialStore,Ledger,PresenceVerifier,Notifier

// CredentialStore is the relational system of record. InsertCredential must
// enforce (holder, location) uniqueness and report violations as sentinel.ErrConflict.
type CredentialStore interface {
	FindActiveDefinition(ctx context.Context, locationID, secret string) (*models.LocationDefinition, error)
	FindExistingCredential(ctx context.Context, holderID, locationID string) (*models.IssuedCredential, error)
	InsertCredential(ctx context.Context, credential models.IssuedCredential) error
}

// Ledger is the on-chain system of record. Configured reports whether the
// deployment has a ledger at all; no other method is called when it is false.
type Ledger interface {
	Configured() bool
	ValidateHolder(holderID string) error
	HasClaimed(ctx context.Context, holderID string, tokenID uint64) (bool, error)
	Claim(ctx context.Context, holderID string, tokenID uint64) (*models.LedgerReceipt, error)
}

// PresenceVerifier checks a claim's GPS fix against a location.
type PresenceVerifier interface {
	Verify(observed *geo.Coordinates, target geo.Coordinates, accuracyMeters *float64) geo.Outcome
}

// Notifier receives issuances the store could not record.
type Notifier interface {
	Notify(ctx context.Context, event reconcile.Event) error
}
