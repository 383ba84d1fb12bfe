package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/sokoplace/escrow-backend/api/responses"
	pkgerrors "github.com/sokoplace/escrow-backend/pkg/errors"
	"github.com/sokoplace/escrow-backend/pkg/logger"
)

const serviceSecretHeader = "X-Service-Secret"

// ServiceSecret guards internal endpoints meant for schedulers, not users.
// The shared secret travels in a header and is compared in constant time.
func ServiceSecret(secret string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if secret == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "service secret not configured"))
				return
			}
			presented := strings.TrimSpace(r.Header.Get(serviceSecretHeader))
			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
				if logg != nil {
					logg.Warn(ctx, "service secret rejected")
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid service credentials"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
