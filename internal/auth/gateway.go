package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const (
	// TokenCookieName is checked first when extracting a token.
	TokenCookieName = "token"
	// TokenHeaderName is the fallback when the cookie is absent.
	TokenHeaderName = "token"
	// unauthorizedSUID is the identity-service marker for a token without a usable identity.
	unauthorizedSUID = "0"
)

var (
	// ErrMissingToken indicates the request carried neither the token cookie nor the token header.
	ErrMissingToken = errors.New("auth: missing token")
	// ErrUnauthorized indicates the token was understood but carries no usable identity.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrVerificationFailed indicates the token could not be verified at all.
	ErrVerificationFailed = errors.New("auth: verification failed")

	errMissingVerifier = errors.New("auth: verifier required")
)

// Identity is the authenticated caller.
type Identity struct {
	// Owner is the suid every document operation is scoped to.
	Owner string
}

// Verifier turns a raw token into an Identity. Implementations return
// ErrUnauthorized or ErrVerificationFailed (possibly wrapped) on rejection.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// ExtractToken reads the token cookie, falling back to the token header.
func ExtractToken(r *http.Request) (string, error) {
	if r == nil {
		return "", ErrMissingToken
	}
	if cookie, err := r.Cookie(TokenCookieName); err == nil && cookie != nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value, nil
		}
	}
	if value := strings.TrimSpace(r.Header.Get(TokenHeaderName)); value != "" {
		return value, nil
	}
	return "", ErrMissingToken
}

// Gateway authenticates inbound requests by delegating to a Verifier.
type Gateway struct {
	verifier Verifier
}

// NewGateway constructs a Gateway around verifier.
func NewGateway(verifier Verifier) (*Gateway, error) {
	if verifier == nil {
		return nil, errMissingVerifier
	}
	return &Gateway{verifier: verifier}, nil
}

// Authenticate extracts the token from r and verifies it. Every call performs
// a fresh verification; results are never cached.
func (g *Gateway) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	if g == nil || g.verifier == nil {
		return Identity{}, errMissingVerifier
	}
	token, err := ExtractToken(r)
	if err != nil {
		return Identity{}, err
	}
	return g.verifier.Verify(ctx, token)
}

// identityFromSUID applies the suid outcome mapping shared by all verifiers.
func identityFromSUID(suid string) (Identity, error) {
	suid = strings.TrimSpace(suid)
	switch suid {
	case "":
		return Identity{}, ErrVerificationFailed
	case unauthorizedSUID:
		return Identity{}, ErrUnauthorized
	default:
		return Identity{Owner: suid}, nil
	}
}
