// Package fingerprint derives a stable device fingerprint from request
// headers. The fingerprint binds a token to the device it was issued to, so a
// token lifted from one browser stops working in another.
//
// Only headers that are stable across requests from the same client feed the
// hash. The client IP is deliberately excluded: mobile clients hop networks
// mid-session and must not be logged out for it.
package fingerprint

import (
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
)

// None is the fingerprint of a request that carries no identifying headers at
// all. Binding degrades to a no-op for such clients instead of locking them
// out.
const None = ""

var components = []string{
	"User-Agent",
	"Accept-Language",
	"Accept-Encoding",
}

// Compute hashes the identifying request headers into an opaque fingerprint
// string. Requests with none of the headers present yield None.
func Compute(h http.Header) string {
	parts := make([]string, 0, len(components))
	empty := true
	for _, name := range components {
		v := h.Get(name)
		if v != "" {
			empty = false
		}
		parts = append(parts, v)
	}
	if empty {
		return None
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// FromRequest is a convenience wrapper over Compute.
func FromRequest(r *http.Request) string {
	return Compute(r.Header)
}
