package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errMissingSigningSecret = errors.New("signing secret required")

// AccountClaims is the JWT payload issued by the account service.
type AccountClaims struct {
	SUID string `json:"suid"`
	jwt.RegisteredClaims
}

// JWTVerifierConfig describes how to validate account-service JWTs locally.
type JWTVerifierConfig struct {
	SigningSecret []byte
	// Issuer, when set, must match the iss claim.
	Issuer string
	Clock  func() time.Time
}

// JWTVerifier validates HS256 tokens signed with the account service secret,
// avoiding the round trip to the identity service.
type JWTVerifier struct {
	signingSecret []byte
	issuer        string
	clock         func() time.Time
}

// NewJWTVerifier constructs a verifier with the provided configuration.
func NewJWTVerifier(cfg JWTVerifierConfig) (*JWTVerifier, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerifierConfig, errMissingSigningSecret)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &JWTVerifier{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        strings.TrimSpace(cfg.Issuer),
		clock:         clock,
	}, nil
}

// Verify validates the signature and expiry, then maps the suid claim.
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (Identity, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	options := []jwt.ParserOption{
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	claims := &AccountClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			return v.signingSecret, nil
		},
		options...,
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if parsed == nil || !parsed.Valid {
		return Identity{}, ErrVerificationFailed
	}
	return identityFromSUID(claims.SUID)
}
