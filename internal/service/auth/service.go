package auth

import (
	"context"
	"strings"

	internaljwt "wedding-site-backend/internal/jwt"
)

type ErrorCode string

const (
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeForbidden    ErrorCode = "forbidden"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

type Identity = internaljwt.Identity

// Service turns bearer tokens into identities and checks capabilities.
// Token issuance lives with the external identity provider.
type Service struct {
	secret string
}

func New(secret string) *Service {
	return &Service{secret: secret}
}

func (s *Service) IdentityFromAuthorizationHeader(header string) (Identity, error) {
	authHeader := strings.TrimSpace(header)
	if authHeader == "" {
		return Identity{}, newError(ErrorCodeUnauthorized, "missing authorization header", nil)
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return Identity{}, newError(ErrorCodeUnauthorized, "invalid authorization header format", nil)
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return Identity{}, newError(ErrorCodeUnauthorized, "empty token", nil)
	}

	identity, err := internaljwt.ParseToken(token, s.secret)
	if err != nil {
		return Identity{}, newError(ErrorCodeUnauthorized, "invalid token", err)
	}
	return identity, nil
}

// Authorize checks that identity may act on tenantID with at least the
// required capability. Platform admins may act on any tenant.
func Authorize(identity Identity, tenantID string, required internaljwt.Capability) error {
	if !identity.Capability.Valid() {
		return newError(ErrorCodeUnauthorized, "invalid identity", nil)
	}
	if identity.IsAdmin() {
		return nil
	}
	if tenantID == "" || identity.TenantID != tenantID {
		return newError(ErrorCodeForbidden, "access to this site is not allowed", nil)
	}
	if !identity.Capability.Allows(required) {
		return newError(ErrorCodeForbidden, "requires "+string(required)+" access", nil)
	}
	return nil
}

// RequireAdmin guards platform-wide operations.
func RequireAdmin(identity Identity) error {
	if !identity.IsAdmin() {
		return newError(ErrorCodeForbidden, "requires platform admin access", nil)
	}
	return nil
}

type identityKey struct{}

// ContextWithIdentity attaches a verified identity to ctx.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}
