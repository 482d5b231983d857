package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and clients return these
// (optionally wrapped) so services can translate them into domain outcomes.
//
//   - ErrNotFound: row or key does not exist
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrUnavailable: backing system temporarily unreachable
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
