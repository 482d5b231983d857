package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "visitproof/pkg/domain-errors"
	"visitproof/pkg/requestcontext"
)

// HolderClaims are the claims carried by a holder token. The subject is the
// holder identity (usually a wallet address) resolved by the sign-in flow.
type HolderClaims struct {
	jwt.RegisteredClaims
}

// HolderTokens signs and validates HS256 holder tokens.
type HolderTokens struct {
	signingKey []byte
	issuer     string
}

func NewHolderTokens(signingKey, issuer string) *HolderTokens {
	return &HolderTokens{signingKey: []byte(signingKey), issuer: issuer}
}

// Issue signs a token for holderID. Used by the sign-in collaborator and tests.
func (t *HolderTokens) Issue(holderID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, HolderClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   holderID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(t.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign holder token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and returns the holder identity it names.
func (t *HolderTokens) Validate(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &HolderClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return t.signingKey, nil
	}, jwt.WithIssuer(t.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*HolderClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims.Subject, nil
}

// HolderValidator is satisfied by HolderTokens.
type HolderValidator interface {
	Validate(tokenString string) (string, error)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q,"details":%q}`, errCode, details))
}

// RequireHolder authenticates the holder from a Bearer token and stores the
// identity in the request context. A nil validator disables the check and the
// holder identity is taken from the request body instead.
func RequireHolder(validator HolderValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if validator == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing holder token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			holderID, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid holder token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithHolderID(ctx, holderID)))
		})
	}
}
