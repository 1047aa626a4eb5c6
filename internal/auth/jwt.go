package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/context-retrieval/middleware"
	"github.com/upb/context-retrieval/services"
)

// ScopeRetrieve is required on /api/v1 when authentication is enabled
const ScopeRetrieve = "retrieval:read"

const defaultLeeway = 30 * time.Second

// tokenClaims is the wire form of an access token. Scopes are space
// separated as in OAuth 2.0.
type tokenClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// HMACValidator validates HS256/HS384/HS512 bearer tokens signed with a
// shared secret.
type HMACValidator struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// NewHMACValidator creates a validator. Issuer and audience are checked only
// when non-empty.
func NewHMACValidator(secret, issuer, audience string) (*HMACValidator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &HMACValidator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		leeway:   defaultLeeway,
	}, nil
}

// ValidateToken verifies signature, expiry, issuer and audience and returns
// the caller identity.
func (v *HMACValidator) ValidateToken(ctx context.Context, tokenString string) (*middleware.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, services.ErrTokenExpired
		}
		return nil, services.WrapError(services.ErrorTypeUnauthorized, services.ErrInvalidToken.Message, err)
	}
	if claims.Subject == "" {
		return nil, services.ErrInvalidToken
	}

	out := &middleware.Claims{
		Sub:      claims.Subject,
		Issuer:   claims.Issuer,
		Audience: claims.Audience,
		Scopes:   strings.Fields(claims.Scope),
	}
	if claims.ExpiresAt != nil {
		out.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		out.Iat = claims.IssuedAt.Unix()
	}
	return out, nil
}

// Sign issues an HS256 token for subject. It is used by retrievectl and tests.
func (v *HMACValidator) Sign(subject string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
