package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAudience = "authenticated"
	bearerPrefix    = "bearer "
)

// ErrInvalidToken indicates the token failed validation.
var ErrInvalidToken = errors.New("invalid token")

// ErrMissingToken indicates the Authorization header is absent or not a bearer credential.
var ErrMissingToken = errors.New("missing or invalid Authorization header")

// Claims mirrors the access tokens minted by the auth backend.
type Claims struct {
	Email       string         `json:"email,omitempty"`
	Role        string         `json:"role,omitempty"`
	AppMetadata map[string]any `json:"app_metadata,omitempty"`
	jwt.RegisteredClaims
}

// Provider returns the federated sign-in provider recorded in app_metadata, if any.
func (c *Claims) Provider() string {
	if c == nil || c.AppMetadata == nil {
		return ""
	}
	p, _ := c.AppMetadata["provider"].(string)
	return strings.TrimSpace(p)
}

// TokenVerifier validates HS256 access tokens signed with the project JWT secret.
type TokenVerifier struct {
	secret   []byte
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// VerifierOption configures TokenVerifier.
type VerifierOption func(*TokenVerifier)

// WithAudience overrides the expected aud claim. Empty disables the audience check.
func WithAudience(aud string) VerifierOption {
	return func(v *TokenVerifier) { v.audience = strings.TrimSpace(aud) }
}

// WithLeeway sets the tolerated clock skew.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *TokenVerifier) {
		if d >= 0 {
			v.leeway = d
		}
	}
}

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *TokenVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewTokenVerifier builds a verifier for the given secret.
func NewTokenVerifier(secret string, opts ...VerifierOption) (*TokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: jwt secret is not configured")
	}
	v := &TokenVerifier{
		secret:   []byte(secret),
		audience: defaultAudience,
		leeway:   5 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Parse verifies signature and registered claims and returns the token claims.
// Every validation failure wraps ErrInvalidToken.
func (v *TokenVerifier) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}
	return claims, nil
}

// Sign mints a token for subject. The auth backend issues real tokens; this exists
// for local tooling and tests.
func (v *TokenVerifier) Sign(subject, email, provider string, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	now := v.now().UTC()
	claims := Claims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	if provider != "" {
		claims.AppMetadata = map[string]any{"provider": provider}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ExtractBearerToken returns the credential from an Authorization header value.
func ExtractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
