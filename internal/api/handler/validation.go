package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/maraichr/pictor/internal/auth"
	"github.com/maraichr/pictor/pkg/apierr"
)

// validateBatchSize rejects empty and oversized batches before the engine
// runs. Validation failures never produce a partial outcome.
func validateBatchSize(n, limit int) *apierr.Error {
	if n == 0 {
		return apierr.EmptyBatch()
	}
	if n > limit {
		return apierr.BatchTooLarge(limit)
	}
	return nil
}

// ownerFrom extracts the authenticated owner, writing a 401 if the auth
// middleware did not run.
func ownerFrom(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, apierr.ErrorResponse{
			Error: apierr.ErrorBody{Code: "UNAUTHORIZED", Message: "Authentication required"},
		})
		return uuid.Nil, false
	}
	return p.UserID, true
}
