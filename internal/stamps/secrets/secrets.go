// Package secrets generates, digests and verifies location possession secrets
// and builds the scan URLs printed on location codes.
package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const secretBytes = 16

var wellFormed = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)

// Generate returns a new random secret as 32 lower-case hex characters.
func Generate() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IsWellFormed reports whether s has the shape of a generated secret.
// Legacy definitions may carry other secrets; this is a format check, not an authorization check.
func IsWellFormed(s string) bool {
	return wellFormed.MatchString(s)
}

// Hash returns the bcrypt digest stored for a secret.
func Hash(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret is empty")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(digest), nil
}

// Verify compares a presented secret with a stored digest in constant time.
func Verify(digest, secret string) bool {
	if digest == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}

// dummyDigest is compared against when no definition matched so lookups for
// unknown ids take as long as lookups with a wrong secret.
var dummyDigest, _ = bcrypt.GenerateFromPassword([]byte("visitproof-no-such-location"), bcrypt.DefaultCost)

// VerifyMissing burns the same time as Verify and always returns false.
func VerifyMissing(secret string) bool {
	_ = bcrypt.CompareHashAndPassword(dummyDigest, []byte(secret))
	return false
}

// ScanURL builds <base>/stamps/scan?l=<locationID>&s=<secret>.
func ScanURL(baseURL, locationID, secret string) string {
	q := url.Values{}
	q.Set("l", locationID)
	q.Set("s", secret)
	return strings.TrimRight(baseURL, "/") + "/stamps/scan?" + q.Encode()
}

// ParseScanURL extracts the location id and secret from a scan URL. Both are
// empty when raw is not an absolute URL.
func ParseScanURL(raw string) (locationID, secret string) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", ""
	}
	q := u.Query()
	return q.Get("l"), q.Get("s")
}
