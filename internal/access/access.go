// Package access authorizes certification requests. A caller is either
// an individual owner (may only certify their own assets) or the trusted
// service identity (may certify any asset).
package access

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const roleService = "service"

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrDenied       = errors.New("caller is not the asset owner")
)

// Identity is an authenticated caller.
type Identity struct {
	SubjectID string
	Service   bool
}

// ActorID returns the identifier recorded in audit entries.
func (i Identity) ActorID() string {
	return i.SubjectID
}

// Authorize checks that ident may request certification for an asset
// owned by ownerID.
func Authorize(ident Identity, ownerID string) error {
	if ident.Service || ident.SubjectID == ownerID {
		return nil
	}
	return ErrDenied
}

// TokenVerifier validates HS256 bearer tokens. The `sub` claim carries
// the caller id; `role: service` marks the trusted service identity.
type TokenVerifier struct {
	Secret string
}

func (v *TokenVerifier) Verify(tokenString string) (Identity, error) {
	if v.Secret == "" {
		return Identity{}, fmt.Errorf("token verifier secret is not configured")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(v.Secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	role, _ := claims["role"].(string)
	return Identity{SubjectID: sub, Service: role == roleService}, nil
}
