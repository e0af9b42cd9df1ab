package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
)

// Verifier validates JWTs using OIDC discovery and JWKS.
type Verifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	audience string
}

// NewVerifier creates a Verifier using OIDC discovery from the issuer URL.
// publicIssuer optionally specifies the expected token issuer when it differs
// from the discovery URL (e.g. in Docker where discovery uses an internal
// hostname but tokens carry the public one).
func NewVerifier(ctx context.Context, issuerURL, publicIssuer, audience string) (*Verifier, error) {
	if publicIssuer != "" && publicIssuer != issuerURL {
		ctx = oidc.InsecureIssuerURLContext(ctx, publicIssuer)
	}

	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: audience,
	})

	return &Verifier{
		provider: provider,
		verifier: verifier,
		audience: audience,
	}, nil
}

// claims represents the JWT claims we extract.
type claims struct {
	Sub    string `json:"sub"`
	Email  string `json:"email"`
	UserID string `json:"user_id"`
	Azp    string `json:"azp"`
}

// VerifyToken verifies a raw Bearer token string and returns the Principal
// and the token's expiry time.
func (v *Verifier) VerifyToken(ctx context.Context, rawToken string) (*Principal, time.Time, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("token verification failed: %w", err)
	}

	var c claims
	if err := token.Claims(&c); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to parse claims: %w", err)
	}

	// The owner key comes from the user_id claim, falling back to a UUID sub.
	rawID := c.UserID
	if rawID == "" {
		rawID = c.Sub
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("invalid user_id claim: %w", err)
	}

	return &Principal{
		Sub:      c.Sub,
		UserID:   userID,
		Email:    c.Email,
		ClientID: c.Azp,
		Issuer:   token.Issuer,
	}, token.Expiry, nil
}

// VerifyRequest extracts and verifies the credential from the request: the
// Authorization Bearer header, or the token query parameter for transports
// that cannot carry custom headers (websocket upgrades).
func (v *Verifier) VerifyRequest(r *http.Request) (*Principal, error) {
	rawToken := ""

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return nil, fmt.Errorf("invalid Authorization header format")
		}
		rawToken = parts[1]
	} else if t := r.URL.Query().Get("token"); t != "" {
		rawToken = t
	}

	if rawToken == "" {
		return nil, fmt.Errorf("missing credential")
	}

	p, _, err := v.VerifyToken(r.Context(), rawToken)
	return p, err
}
