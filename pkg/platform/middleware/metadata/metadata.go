package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"visitproof/pkg/requestcontext"
)

// ClientMetadata extracts client IP, User-Agent and a coarse device summary from
// the request and adds them to the context. Apply early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(),
			ClientIPFromRequest(r),
			userAgent,
			DescribeDevice(userAgent),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DescribeDevice returns "browser/os platform" for a User-Agent, e.g. "safari/ios mobile".
// Scans come from phones pointed at a printed code, so the summary is logged with
// every issuance attempt.
func DescribeDevice(userAgentString string) string {
	if userAgentString == "" {
		return "unknown"
	}
	ua := useragent.New(userAgentString)
	browser, _ := ua.Browser()
	browser = strings.ToLower(strings.TrimSpace(browser))
	if browser == "" {
		browser = "unknown"
	}
	os := strings.ToLower(strings.TrimSpace(ua.OS()))
	if os == "" {
		os = "unknown"
	}
	platform := "desktop"
	if ua.Mobile() {
		platform = "mobile"
	}
	if ua.Bot() {
		platform = "bot"
	}
	return browser + "/" + os + " " + platform
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
