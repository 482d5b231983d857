package handler

import (
	"strings"

	"visitproof/internal/geo"
	"visitproof/internal/stamps/models"
	dErrors "visitproof/pkg/domain-errors"
)

const (
	maxLocationIDLength = 64
	maxSecretLength     = 128
	maxHolderIDLength   = 128
)

// CollectRequest is the body of POST /stamps/collect.
type CollectRequest struct {
	LocationID        string   `json:"locationId"`
	Secret            string   `json:"secret"`
	HolderID          string   `json:"holderId"`
	ObservedLatitude  *float64 `json:"observedLatitude,omitempty"`
	ObservedLongitude *float64 `json:"observedLongitude,omitempty"`
	AccuracyMeters    *float64 `json:"accuracyMeters,omitempty"`
}

func (r *CollectRequest) Normalize() {
	if r == nil {
		return
	}
	r.LocationID = strings.TrimSpace(r.LocationID)
	r.Secret = strings.TrimSpace(r.Secret)
	r.HolderID = models.NormalizeHolderID(r.HolderID)
}

// Validate checks shape only. Coordinate ranges are the geofence's concern so
// out-of-range fixes get the same structured rejection as any other.
func (r *CollectRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	if len(r.LocationID) > maxLocationIDLength {
		return dErrors.New(dErrors.CodeValidation, "locationId is too long")
	}
	if len(r.Secret) > maxSecretLength {
		return dErrors.New(dErrors.CodeValidation, "secret is too long")
	}
	if len(r.HolderID) > maxHolderIDLength {
		return dErrors.New(dErrors.CodeValidation, "holderId is too long")
	}

	if r.LocationID == "" {
		return dErrors.New(dErrors.CodeValidation, "locationId is required")
	}
	if r.Secret == "" {
		return dErrors.New(dErrors.CodeValidation, "secret is required")
	}
	if r.HolderID == "" {
		return dErrors.New(dErrors.CodeValidation, "holderId is required")
	}

	if (r.ObservedLatitude == nil) != (r.ObservedLongitude == nil) {
		return dErrors.New(dErrors.CodeValidation, "observedLatitude and observedLongitude must be provided together")
	}
	if r.AccuracyMeters != nil && *r.AccuracyMeters < 0 {
		return dErrors.New(dErrors.CodeValidation, "accuracyMeters must not be negative")
	}
	return nil
}

// Claim converts the validated request into the domain claim.
func (r *CollectRequest) Claim() models.PresenceClaim {
	claim := models.PresenceClaim{
		LocationID:     r.LocationID,
		Secret:         r.Secret,
		HolderID:       r.HolderID,
		AccuracyMeters: r.AccuracyMeters,
	}
	if r.ObservedLatitude != nil && r.ObservedLongitude != nil {
		claim.Observed = &geo.Coordinates{Latitude: *r.ObservedLatitude, Longitude: *r.ObservedLongitude}
	}
	return claim
}
