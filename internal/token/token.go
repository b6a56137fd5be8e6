// Package token mints and verifies signed access and refresh tokens.
package token

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Type distinguishes access tokens from refresh tokens.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// ErrInvalid is returned for any token that fails signature, issuer, expiry, or shape checks.
var ErrInvalid = errors.New("invalid token")

// Claims is the identity carried by a token.
type Claims struct {
	Subject string
	Email   string
	Type    Type
}

type jwtClaims struct {
	Email string `json:"email"`
	Type  Type   `json:"token_type"`
	jwt.RegisteredClaims
}
