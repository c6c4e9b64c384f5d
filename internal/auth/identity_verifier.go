package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultVerifyTimeout = 5 * time.Second
	verifyTokenPath      = "profile/verify-token"
	maxVerifyBodyBytes   = 64 << 10
)

var (
	errMissingBaseURL = errors.New("identity service base url required")
	// ErrInvalidVerifierConfig indicates a verifier could not be constructed.
	ErrInvalidVerifierConfig = errors.New("auth: invalid verifier config")
)

// IdentityServiceVerifierConfig bundles configuration for IdentityServiceVerifier.
type IdentityServiceVerifierConfig struct {
	// BaseURL is the account service root; the verify path is appended to it.
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// IdentityServiceVerifier verifies tokens by asking the external account service.
type IdentityServiceVerifier struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

type verifyTokenResponse struct {
	SUID *string `json:"suid"`
}

// NewIdentityServiceVerifier constructs a verifier with validated configuration.
func NewIdentityServiceVerifier(cfg IdentityServiceVerifierConfig) (*IdentityServiceVerifier, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerifierConfig, errMissingBaseURL)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IdentityServiceVerifier{
		endpoint:   baseURL + verifyTokenPath,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Verify performs one round trip to the identity service.
func (v *IdentityServiceVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	request.Header.Set(TokenHeaderName, token)
	request.Header.Set("Accept", "application/json")

	response, err := v.httpClient.Do(request)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		v.logger.Debug("identity service rejected verification", zap.Int("status", response.StatusCode))
		return Identity{}, fmt.Errorf("%w: identity service returned status %d", ErrVerificationFailed, response.StatusCode)
	}

	var payload verifyTokenResponse
	if err := json.NewDecoder(io.LimitReader(response.Body, maxVerifyBodyBytes)).Decode(&payload); err != nil {
		return Identity{}, fmt.Errorf("%w: malformed identity response: %v", ErrVerificationFailed, err)
	}
	if payload.SUID == nil {
		return Identity{}, fmt.Errorf("%w: identity response missing suid", ErrVerificationFailed)
	}
	return identityFromSUID(*payload.SUID)
}
