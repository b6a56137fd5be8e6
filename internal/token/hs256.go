package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// HS256Issuer signs tokens with a shared HMAC secret.
type HS256Issuer struct {
	secret []byte
	issuer string
	keyID  string
	now    func() time.Time
}

// Option configures an HS256Issuer.
type Option func(*HS256Issuer)

// WithKeyID sets the kid header on issued tokens.
func WithKeyID(kid string) Option {
	return func(i *HS256Issuer) {
		i.keyID = kid
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *HS256Issuer) {
		i.now = now
	}
}

// NewHS256Issuer creates an issuer. Secrets shorter than 32 bytes are rejected.
func NewHS256Issuer(secret, issuer string, opts ...Option) (*HS256Issuer, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}

	if issuer == "" {
		return nil, errors.New("jwt issuer is empty")
	}

	i := &HS256Issuer{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}

	return i, nil
}

// Issue signs claims that expire after ttl.
func (i *HS256Issuer) Issue(c Claims, ttl time.Duration) (string, error) {
	if c.Subject == "" {
		return "", errors.New("empty subject")
	}

	if ttl <= 0 {
		return "", errors.New("token ttl must be > 0")
	}

	now := i.now()
	claims := jwtClaims{
		Email: c.Email,
		Type:  c.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   c.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if i.keyID != "" {
		t.Header["kid"] = i.keyID
	}

	signed, err := t.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Verify checks signature, issuer and expiry, and returns the embedded claims.
func (i *HS256Issuer) Verify(raw string) (Claims, error) {
	var parsed jwtClaims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)

	_, err := parser.ParseWithClaims(raw, &parsed, func(t *jwt.Token) (any, error) {
		if i.keyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != i.keyID {
				return nil, errors.New("unknown key id")
			}
		}

		return i.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if parsed.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalid)
	}

	return Claims{
		Subject: parsed.Subject,
		Email:   parsed.Email,
		Type:    parsed.Type,
	}, nil
}
