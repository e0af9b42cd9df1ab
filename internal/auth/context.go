package auth

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// Principal is the authenticated identity extracted from a verified token.
// UserID is the owner key every store operation is scoped by.
type Principal struct {
	Sub      string    `json:"sub"`
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	ClientID string    `json:"client_id"`
	Issuer   string    `json:"issuer"`
}

// WithPrincipal stores a Principal in the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFrom extracts the Principal from the context.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok
}
