// Package auth supplies the tokens the push vendor needs before it will bind
// a user id to a device.
//
// Two providers are offered. HTTPTokenProvider asks the chat server's
// POST /auth/{userId} endpoint for a token. JWTTokenProvider signs the same
// token locally with the instance secret, for development and for agents that
// run next to the chat server.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry is how long a signed user token is valid. The chat server issues
// 24 hour tokens; local signing matches it.
const TokenExpiry = 24 * time.Hour

// Predefined token errors.
var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token has expired")
	ErrMissingSecret   = errors.New("signing secret is not configured")
	ErrInvalidUserID   = errors.New("user id must not be empty")
	ErrInvalidResponse = errors.New("invalid token response")
)

// Claims are the claims of a user token accepted by the push vendor.
type Claims struct {
	jwt.RegisteredClaims

	// Instance is the push instance the token is valid for.
	Instance string `json:"instance"`

	// SuperUser marks a token signed with the instance secret.
	SuperUser bool `json:"su"`
}

// JWTConfig holds configuration for JWTTokenProvider.
type JWTConfig struct {
	// Secret is the instance's signing secret.
	Secret string

	// Issuer is the iss claim, usually "api_keys/<key id>".
	Issuer string

	// InstanceID is the instance claim.
	InstanceID string

	// Expiry overrides TokenExpiry.
	Expiry time.Duration

	// Now overrides the clock (tests).
	Now func() time.Time
}

// JWTTokenProvider signs HS256 user tokens locally.
type JWTTokenProvider struct {
	secret     []byte
	issuer     string
	instanceID string
	expiry     time.Duration
	now        func() time.Time
}

// NewJWTTokenProvider creates a JWTTokenProvider.
func NewJWTTokenProvider(cfg JWTConfig) (*JWTTokenProvider, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	expiry := cfg.Expiry
	if expiry == 0 {
		expiry = TokenExpiry
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &JWTTokenProvider{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		instanceID: cfg.InstanceID,
		expiry:     expiry,
		now:        now,
	}, nil
}

// FetchToken signs a token whose subject is userID.
func (p *JWTTokenProvider) FetchToken(_ context.Context, userID string) (string, error) {
	if userID == "" {
		return "", ErrInvalidUserID
	}

	now := p.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.expiry)),
		},
		Instance:  p.instanceID,
		SuperUser: true,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("signing user token: %w", err)
	}
	return token, nil
}

// ValidateToken parses a token signed by this provider and returns its claims.
func (p *JWTTokenProvider) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if p.instanceID != "" && claims.Instance != p.instanceID {
		return nil, fmt.Errorf("%w: instance mismatch", ErrInvalidToken)
	}
	return claims, nil
}
