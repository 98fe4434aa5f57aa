package tenant

import (
	"context"
	"errors"
	"strings"

	internaljwt "wedding-site-backend/internal/jwt"
	"wedding-site-backend/internal/model"
	authservice "wedding-site-backend/internal/service/auth"
	"wedding-site-backend/internal/store"
)

type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "validation_error"
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeForbidden    ErrorCode = "forbidden"
	ErrorCodeNotFound     ErrorCode = "not_found"
	ErrorCodeConflict     ErrorCode = "conflict"
	ErrorCodeUnavailable  ErrorCode = "unavailable"
	ErrorCodeInternal     ErrorCode = "internal_error"
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

type Identity = authservice.Identity

type CreateTenantParams struct {
	Slug        string
	DisplayName string
	EventDate   string
}

// UpdateTenantParams changes only the fields that are set.
type UpdateTenantParams struct {
	DisplayName     *string
	EventDate       *string
	ExpectedVersion *int64
}

type TenantPage struct {
	Tenants    []model.Tenant
	NextCursor string
}

type Service struct {
	store    *store.Store
	slugs    *store.SlugIndex
	statuses *store.StatusIndex
}

func New(st *store.Store, slugs *store.SlugIndex, statuses *store.StatusIndex) *Service {
	return &Service{
		store:    st,
		slugs:    slugs,
		statuses: statuses,
	}
}

func (s *Service) CreateTenant(ctx context.Context, identity Identity, params CreateTenantParams) (model.Tenant, error) {
	if err := authservice.RequireAdmin(identity); err != nil {
		return model.Tenant{}, authError(err)
	}

	slug := model.NormalizeSlug(params.Slug)
	if err := model.ValidateSlug(slug); err != nil {
		return model.Tenant{}, newError(ErrorCodeValidation, "slug must be 1-64 lowercase letters, digits or inner hyphens", err)
	}
	name := strings.TrimSpace(params.DisplayName)
	if name == "" {
		return model.Tenant{}, newError(ErrorCodeValidation, "display name is required", nil)
	}

	payload := map[string]any{
		model.FieldDisplayName: name,
		model.FieldStatus:      model.TenantStatusDraft,
	}
	if date := strings.TrimSpace(params.EventDate); date != "" {
		payload[model.FieldEventDate] = date
	}

	item, err := s.store.CreateTenant(ctx, slug, payload)
	if err != nil {
		return model.Tenant{}, storeError(err, "tenant")
	}
	return toTenant(item)
}

func (s *Service) GetTenant(ctx context.Context, identity Identity, tenantID string) (model.Tenant, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityViewer); err != nil {
		return model.Tenant{}, authError(err)
	}
	item, err := s.store.Get(ctx, tenantID, model.KindTenant, tenantID)
	if err != nil {
		return model.Tenant{}, storeError(err, "tenant")
	}
	return toTenant(item)
}

func (s *Service) UpdateTenant(ctx context.Context, identity Identity, tenantID string, params UpdateTenantParams) (model.Tenant, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityEditor); err != nil {
		return model.Tenant{}, authError(err)
	}
	if params.DisplayName != nil && strings.TrimSpace(*params.DisplayName) == "" {
		return model.Tenant{}, newError(ErrorCodeValidation, "display name cannot be empty", nil)
	}

	return s.mutate(ctx, tenantID, params.ExpectedVersion, func(payload map[string]any) {
		if params.DisplayName != nil {
			payload[model.FieldDisplayName] = strings.TrimSpace(*params.DisplayName)
		}
		if params.EventDate != nil {
			if date := strings.TrimSpace(*params.EventDate); date != "" {
				payload[model.FieldEventDate] = date
			} else {
				delete(payload, model.FieldEventDate)
			}
		}
	})
}

// RenameSlug moves the site to a new public address. The old slug is
// released in the same write.
func (s *Service) RenameSlug(ctx context.Context, identity Identity, tenantID, slug string, expectedVersion *int64) (model.Tenant, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityOwner); err != nil {
		return model.Tenant{}, authError(err)
	}
	slug = model.NormalizeSlug(slug)
	if err := model.ValidateSlug(slug); err != nil {
		return model.Tenant{}, newError(ErrorCodeValidation, "slug must be 1-64 lowercase letters, digits or inner hyphens", err)
	}

	return s.mutate(ctx, tenantID, expectedVersion, func(payload map[string]any) {
		payload[model.FieldSlug] = slug
	})
}

func (s *Service) SetStatus(ctx context.Context, identity Identity, tenantID, status string, expectedVersion *int64) (model.Tenant, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityOwner); err != nil {
		return model.Tenant{}, authError(err)
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if !model.ValidStatus(model.KindTenant, status) {
		return model.Tenant{}, newError(ErrorCodeValidation, "status must be draft, active or archived", nil)
	}

	return s.mutate(ctx, tenantID, expectedVersion, func(payload map[string]any) {
		payload[model.FieldStatus] = status
	})
}

// DeleteTenant removes the site and every record it owns. Archiving via
// SetStatus is the reversible alternative.
func (s *Service) DeleteTenant(ctx context.Context, identity Identity, tenantID string) error {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityOwner); err != nil {
		return authError(err)
	}
	if err := s.store.Delete(ctx, tenantID, model.KindTenant, tenantID); err != nil {
		return storeError(err, "tenant")
	}
	return nil
}

func (s *Service) ListTenantsByStatus(ctx context.Context, identity Identity, status string, limit int, cursor string) (TenantPage, error) {
	if err := authservice.RequireAdmin(identity); err != nil {
		return TenantPage{}, authError(err)
	}
	if !model.ValidStatus(model.KindTenant, status) {
		return TenantPage{}, newError(ErrorCodeValidation, "status must be draft, active or archived", nil)
	}

	page, err := s.statuses.ListByStatus(ctx, model.KindTenant, status, store.StatusQuery{Limit: limit, Cursor: cursor})
	if err != nil {
		return TenantPage{}, storeError(err, "tenants")
	}

	out := TenantPage{Tenants: make([]model.Tenant, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, item := range page.Items {
		t, err := toTenant(item)
		if err != nil {
			return TenantPage{}, err
		}
		out.Tenants = append(out.Tenants, t)
	}
	return out, nil
}

// ResolveSlug finds the tenant behind a public address. Any status
// resolves; callers decide what a draft or archived site shows.
func (s *Service) ResolveSlug(ctx context.Context, slug string) (model.Tenant, error) {
	tenantID, err := s.slugs.Resolve(ctx, slug)
	if err != nil {
		return model.Tenant{}, storeError(err, "site")
	}
	item, err := s.store.Get(ctx, tenantID, model.KindTenant, tenantID)
	if err != nil {
		return model.Tenant{}, storeError(err, "site")
	}
	tenant, err := toTenant(item)
	if err != nil {
		return model.Tenant{}, err
	}
	if tenant.Slug != model.NormalizeSlug(slug) {
		return model.Tenant{}, newError(ErrorCodeNotFound, "site not found", store.ErrNotFound)
	}
	return tenant, nil
}

// mutate applies fn to the stored tenant payload and writes it back guarded
// by the version that was read, or by expectedVersion when the caller has one.
func (s *Service) mutate(ctx context.Context, tenantID string, expectedVersion *int64, fn func(map[string]any)) (model.Tenant, error) {
	current, err := s.store.Get(ctx, tenantID, model.KindTenant, tenantID)
	if err != nil {
		return model.Tenant{}, storeError(err, "tenant")
	}
	if expectedVersion != nil && *expectedVersion != current.Version {
		return model.Tenant{}, newError(ErrorCodeConflict, "tenant was modified by someone else, reload and retry", store.ErrVersionConflict)
	}

	payload := model.ClonePayload(current.Payload)
	fn(payload)

	version := current.Version
	item, err := s.store.Put(ctx, store.PutParams{
		TenantID:        tenantID,
		Kind:            model.KindTenant,
		EntityID:        tenantID,
		Payload:         payload,
		ExpectedVersion: &version,
	})
	if err != nil {
		return model.Tenant{}, storeError(err, "tenant")
	}
	return toTenant(item)
}

func toTenant(item model.Item) (model.Tenant, error) {
	t, err := model.TenantFromItem(item)
	if err != nil {
		return model.Tenant{}, newError(ErrorCodeInternal, "stored tenant is malformed", err)
	}
	return t, nil
}

func authError(err error) error {
	var authErr *authservice.Error
	if errors.As(err, &authErr) && authErr.Code == authservice.ErrorCodeUnauthorized {
		return newError(ErrorCodeUnauthorized, authErr.Message, err)
	}
	return newError(ErrorCodeForbidden, err.Error(), err)
}

func storeError(err error, what string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return newError(ErrorCodeNotFound, what+" not found", err)
	case errors.Is(err, store.ErrSlugTaken):
		return newError(ErrorCodeConflict, "slug is already taken", err)
	case errors.Is(err, store.ErrVersionConflict):
		return newError(ErrorCodeConflict, what+" was modified by someone else, reload and retry", err)
	case errors.Is(err, store.ErrInvalidPayload), errors.Is(err, store.ErrInvalidKey), errors.Is(err, store.ErrInvalidCursor):
		return newError(ErrorCodeValidation, "invalid "+what+" request", err)
	case errors.Is(err, store.ErrStoreUnavailable):
		return newError(ErrorCodeUnavailable, "storage is temporarily unavailable, try again", err)
	}
	return newError(ErrorCodeInternal, "failed to access "+what, err)
}
