package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	apperrors "github.com/closetiq/closetiq/internal/errors"
)

// requireToken admits requests carrying "Authorization: Bearer <token>".
func requireToken(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="closetiq"`)
				HandleError(w, r, apperrors.NewUnauthorizedError("admin token required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
