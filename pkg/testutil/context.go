package testutil

import (
	"net/http"

	"visitproof/pkg/requestcontext"
)

// WithHolder adds an authenticated holder identity to the request context,
// the way the holder auth middleware does for token-bearing requests.
func WithHolder(req *http.Request, holderID string) *http.Request {
	return req.WithContext(requestcontext.WithHolderID(req.Context(), holderID))
}

// WithBearer attaches a holder token the way a wallet app sends it.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
