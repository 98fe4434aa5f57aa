package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	claimSubject    = "sub"
	claimTenantID   = "tenantId"
	claimCapability = "cap"
	claimExpires    = "exp"

	DefaultTokenTTL = 15 * time.Minute
)

var ErrInvalidToken = errors.New("invalid token")

// CreateToken signs an HS256 token for identity. A zero validUntil means
// DefaultTokenTTL from now.
func CreateToken(identity Identity, secret string, validUntil int64) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing secret is empty")
	}
	if !identity.Capability.Valid() {
		return "", fmt.Errorf("invalid capability %q", identity.Capability)
	}
	if validUntil == 0 {
		validUntil = time.Now().Add(DefaultTokenTTL).Unix()
	}

	claims := jwt.MapClaims{
		claimSubject:    identity.Subject,
		claimTenantID:   identity.TenantID,
		claimCapability: string(identity.Capability),
		claimExpires:    validUntil,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies signature and expiry and returns the identity the
// token carries. Tenant-scoped capabilities must name a tenant.
func ParseToken(tokenString, secret string) (Identity, error) {
	if len(tokenString) == 0 {
		return Identity{}, fmt.Errorf("%w: token string is empty", ErrInvalidToken)
	}
	if secret == "" {
		return Identity{}, fmt.Errorf("verification secret is empty")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("%w: claims of unexpected type", ErrInvalidToken)
	}
	if _, ok := claims[claimExpires]; !ok {
		return Identity{}, fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}

	subject, _ := claims[claimSubject].(string)
	tenantID, _ := claims[claimTenantID].(string)
	capability, _ := claims[claimCapability].(string)

	identity := Identity{
		Subject:    subject,
		TenantID:   tenantID,
		Capability: Capability(capability),
	}
	if !identity.Capability.Valid() {
		return Identity{}, fmt.Errorf("%w: unknown capability %q", ErrInvalidToken, capability)
	}
	if identity.TenantID == "" && !identity.IsAdmin() {
		return Identity{}, fmt.Errorf("%w: missing tenant", ErrInvalidToken)
	}
	return identity, nil
}
