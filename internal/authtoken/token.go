// Package authtoken issues and validates the bearer tokens the compile
// service's auth middleware checks: HS256 JWTs signed with a single
// shared secret rather than a per-user credential store, since the
// service gates exactly one capability.
package authtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Scope identifies what a token is allowed to do. The compile service
// only has one scope today, but the claim exists so a future capability
// (e.g. "admin") doesn't require a new token format.
const ScopeCompile = "compile"

// DefaultExpiry is the token lifetime `pyre token issue` uses when no
// -expiry is given; Issue itself accepts any lifetime.
const DefaultExpiry = time.Hour

// Claims is the JWT payload issued by Issuer.
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Issuer mints and validates bearer tokens against a single shared
// secret, held in raw form since HMAC signing needs it. HashSecret and
// CheckSecret are separate helpers that bcrypt-hash a secret and compare
// a candidate against such a hash; Issuer does not use them.
type Issuer struct {
	secret []byte
}

// NewIssuer creates an Issuer signing tokens with secret.
func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

// HashSecret bcrypt-hashes a shared secret for storage in config.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckSecret compares a candidate secret against its stored bcrypt hash.
func CheckSecret(secret, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
}

// Issue mints a bearer token valid for the given scope and expiry.
func (i *Issuer) Issue(scope string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate parses and validates a bearer token, returning its claims.
func (i *Issuer) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
