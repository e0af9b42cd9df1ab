package auth

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// DevUserID is the owner UUID every request gets in dev mode.
var DevUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// DevModeMiddleware injects a synthetic Principal.
// Use only when AUTH_ENABLED=false (development).
func DevModeMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	logger.Warn("DEV MODE: authentication disabled, all requests share one owner")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := &Principal{
				Sub:      "dev-user",
				UserID:   DevUserID,
				Email:    "dev@pictor.dev",
				ClientID: "dev",
				Issuer:   "dev",
			}
			ctx := WithPrincipal(r.Context(), p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
