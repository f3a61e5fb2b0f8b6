// Package authmw provides HTTP middleware for shared-key authentication.
package authmw

import (
	"crypto/subtle"
	"net/http"
)

// KeyHeader returns middleware that validates the named header contains the
// expected shared key. Comparison uses constant-time equality to prevent
// timing side-channel attacks. A single static credential is the trust
// model of the upstream triage service too; acceptable only for a closed
// deployment.
func KeyHeader(header, key string) func(http.Handler) http.Handler {
	expected := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(header))

			if len(got) == 0 {
				http.Error(w, `{"error":"missing credential header"}`, http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare(got, expected) != 1 {
				http.Error(w, `{"error":"invalid key"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
