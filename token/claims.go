// Package token issues, verifies, rotates, and revokes the signed access
// and refresh tokens. Tokens are three dot-separated base64url segments
// signed with HMAC-SHA256; access and refresh tokens use distinct keys.
// Verified claims are cached positively, revoked token IDs negatively,
// through an injected tokencache.Cache.
package token

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Type discriminates access tokens from refresh tokens. It is signed into
// the payload and validated exhaustively at parse: a token presented to an
// endpoint expecting the other type is rejected outright.
type Type string

const (
	// TypeAccess marks short-lived request-authentication tokens.
	TypeAccess Type = "access"
	// TypeRefresh marks long-lived rotation tokens.
	TypeRefresh Type = "refresh"
)

func (t Type) valid() bool {
	return t == TypeAccess || t == TypeRefresh
}

// Identity is the caller-supplied portion of a token's claims.
type Identity struct {
	SubjectID string
	Email     string
	Role      string
}

// Claims is the closed payload structure signed into every token. The jti
// lives in RegisteredClaims.ID and keys the revocation list.
type Claims struct {
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	TokenType   Type   `json:"typ"`
	Fingerprint string `json:"fgp,omitempty"`
	jwt.RegisteredClaims
}

// Identity extracts the caller-facing identity from verified claims.
func (c *Claims) Identity() Identity {
	return Identity{
		SubjectID: c.Subject,
		Email:     c.Email,
		Role:      c.Role,
	}
}

// wellFormed rejects claims whose tagged structure is incomplete. It runs
// on every parse and on every positive-cache hit.
func (c *Claims) wellFormed() error {
	switch {
	case c == nil:
		return errors.New("nil claims")
	case c.Subject == "":
		return errors.New("missing subject")
	case !c.TokenType.valid():
		return errors.New("unknown token type")
	case c.ID == "":
		return errors.New("missing token id")
	case c.IssuedAt == nil || c.ExpiresAt == nil:
		return errors.New("missing timestamps")
	}
	return nil
}

// IssuedToken is the result of one issuance: the signed token plus the
// metadata a caller needs to bind and later revoke it.
type IssuedToken struct {
	Token       string
	TokenID     string
	Fingerprint string
	ExpiresIn   int64 // seconds
}

// TokenPair is an access/refresh pair sharing a single fingerprint, as
// issued by one login or rotation.
type TokenPair struct {
	Access      IssuedToken
	Refresh     IssuedToken
	Fingerprint string
}
