package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const expiryLeeway = 30 * time.Second

// Claims are the JWT claims this service issues and accepts. Tokens must
// carry a tenant and a known role on top of the registered claims.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs during token parsing, after the registered claims.
func (c *Claims) Validate() error {
	if c.TenantID == "" {
		return errors.New("auth: missing tenant_id")
	}
	if _, ok := NormalizeRole(c.Role); !ok {
		return errors.New("auth: invalid role")
	}
	return nil
}

// ParseJWT verifies an HS256 token and returns its claims. Expiry is
// mandatory, with a small leeway for clock skew.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("auth: empty token")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(expiryLeeway),
	)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	return claims, nil
}
