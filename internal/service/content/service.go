package content

import (
	"context"
	"errors"
	"strings"

	internaljwt "wedding-site-backend/internal/jwt"
	"wedding-site-backend/internal/model"
	authservice "wedding-site-backend/internal/service/auth"
	"wedding-site-backend/internal/store"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "validation_error"
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeForbidden    ErrorCode = "forbidden"
	ErrorCodeNotFound     ErrorCode = "not_found"
	ErrorCodeGone         ErrorCode = "gone"
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

// Entry is one tenant-owned content record as handed to clients.
type Entry struct {
	ID        string
	Kind      model.Kind
	Payload   map[string]any
	Version   int64
	CreatedAt string
	UpdatedAt string
}

func entryFromItem(item model.Item) Entry {
	return Entry{
		ID:        item.EntityID,
		Kind:      item.Kind,
		Payload:   item.Payload,
		Version:   item.Version,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

type EntryPage struct {
	Entries    []Entry
	NextCursor string
}

type RSVPParams struct {
	// ResponseID lets a guest amend an earlier response. Empty creates one.
	ResponseID string
	Name       string
	Attendance string
	GuestCount int64
	Message    string
}

// Site is everything a guest-facing page renders apart from the registry.
type Site struct {
	Tenant   model.Tenant
	Settings map[string]Entry
	Schedule []Entry
	Gallery  []Entry
}

// Kinds editable through the generic entry operations.
var entryKinds = map[model.Kind]bool{
	model.KindGalleryImage:  true,
	model.KindScheduleEvent: true,
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

func (s *Service) GetSettings(ctx context.Context, identity Identity, tenantID, section string) (Entry, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityViewer); err != nil {
		return Entry{}, authError(err)
	}
	item, err := s.store.Get(ctx, tenantID, model.KindSettings, section)
	if err != nil {
		return Entry{}, storeError(err, "settings")
	}
	return entryFromItem(item), nil
}

// PutSettings replaces one settings section. With expectedVersion set the
// write only lands on that version; without it the last writer wins.
func (s *Service) PutSettings(ctx context.Context, identity Identity, tenantID, section string, payload map[string]any, expectedVersion *int64) (Entry, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityEditor); err != nil {
		return Entry{}, authError(err)
	}
	section = strings.TrimSpace(section)
	if err := model.ValidateID(section); err != nil {
		return Entry{}, newError(ErrorCodeValidation, "invalid settings section", err)
	}
	if payload == nil {
		return Entry{}, newError(ErrorCodeValidation, "settings body is required", nil)
	}
	if err := s.requireTenant(ctx, tenantID); err != nil {
		return Entry{}, err
	}

	item, err := s.store.Put(ctx, store.PutParams{
		TenantID:        tenantID,
		Kind:            model.KindSettings,
		EntityID:        section,
		Payload:         payload,
		ExpectedVersion: expectedVersion,
	})
	if err != nil {
		return Entry{}, storeError(err, "settings")
	}
	return entryFromItem(item), nil
}

func (s *Service) ListSettings(ctx context.Context, identity Identity, tenantID string) ([]Entry, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityViewer); err != nil {
		return nil, authError(err)
	}
	var out []Entry
	for item, err := range s.store.IterateTenant(ctx, tenantID, store.QueryOptions{Kind: model.KindSettings}) {
		if err != nil {
			return nil, storeError(err, "settings")
		}
		out = append(out, entryFromItem(item))
	}
	return out, nil
}

// PutEntry creates or replaces a gallery image or schedule event. An empty
// entryID creates a new entry.
func (s *Service) PutEntry(ctx context.Context, identity Identity, tenantID string, kind model.Kind, entryID string, payload map[string]any, expectedVersion *int64) (Entry, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityEditor); err != nil {
		return Entry{}, authError(err)
	}
	if !entryKinds[kind] {
		return Entry{}, newError(ErrorCodeValidation, "unsupported content kind", nil)
	}
	if payload == nil {
		return Entry{}, newError(ErrorCodeValidation, "entry body is required", nil)
	}
	if entryID == "" {
		entryID = uuid.NewString()
		created := int64(0)
		expectedVersion = &created
	}
	if err := s.requireTenant(ctx, tenantID); err != nil {
		return Entry{}, err
	}

	item, err := s.store.Put(ctx, store.PutParams{
		TenantID:        tenantID,
		Kind:            kind,
		EntityID:        entryID,
		Payload:         payload,
		ExpectedVersion: expectedVersion,
	})
	if err != nil {
		return Entry{}, storeError(err, "entry")
	}
	return entryFromItem(item), nil
}

func (s *Service) DeleteEntry(ctx context.Context, identity Identity, tenantID string, kind model.Kind, entryID string) error {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityEditor); err != nil {
		return authError(err)
	}
	if !entryKinds[kind] && kind != model.KindSettings {
		return newError(ErrorCodeValidation, "unsupported content kind", nil)
	}
	if err := s.store.Delete(ctx, tenantID, kind, entryID); err != nil {
		return storeError(err, "entry")
	}
	return nil
}

func (s *Service) ListEntries(ctx context.Context, identity Identity, tenantID string, kind model.Kind, limit int, cursor string) (EntryPage, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityViewer); err != nil {
		return EntryPage{}, authError(err)
	}
	if !entryKinds[kind] {
		return EntryPage{}, newError(ErrorCodeValidation, "unsupported content kind", nil)
	}
	page, err := s.store.QueryByTenant(ctx, tenantID, store.QueryOptions{Kind: kind, Limit: limit, Cursor: cursor})
	if err != nil {
		return EntryPage{}, storeError(err, "entries")
	}
	return toEntryPage(page), nil
}

// SubmitRSVP records a guest's response on a published site.
func (s *Service) SubmitRSVP(ctx context.Context, tenantID string, params RSVPParams) (Entry, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return Entry{}, newError(ErrorCodeValidation, "name is required", nil)
	}
	attendance := strings.ToLower(strings.TrimSpace(params.Attendance))
	if attendance == "" {
		attendance = model.AttendancePending
	}
	if !model.ValidStatus(model.KindGuestResponse, attendance) {
		return Entry{}, newError(ErrorCodeValidation, "attendance must be pending, attending or declined", nil)
	}
	if params.GuestCount < 0 {
		return Entry{}, newError(ErrorCodeValidation, "guest count cannot be negative", nil)
	}

	id := strings.TrimSpace(params.ResponseID)
	if id == "" {
		id = uuid.NewString()
	}
	payload := map[string]any{
		model.FieldName:       name,
		model.FieldAttendance: attendance,
		model.FieldGuestCount: params.GuestCount,
	}
	if msg := strings.TrimSpace(params.Message); msg != "" {
		payload["message"] = msg
	}

	item, err := s.store.Put(ctx, store.PutParams{
		TenantID: tenantID,
		Kind:     model.KindGuestResponse,
		EntityID: id,
		Payload:  payload,
	})
	if err != nil {
		return Entry{}, storeError(err, "response")
	}
	return entryFromItem(item), nil
}

// ListRSVPs pages through a tenant's responses, optionally only those with
// one attendance value.
func (s *Service) ListRSVPs(ctx context.Context, identity Identity, tenantID, attendance string, limit int, cursor string) (EntryPage, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityViewer); err != nil {
		return EntryPage{}, authError(err)
	}

	var (
		page store.Page
		err  error
	)
	if attendance == "" {
		page, err = s.store.QueryByTenant(ctx, tenantID, store.QueryOptions{Kind: model.KindGuestResponse, Limit: limit, Cursor: cursor})
	} else {
		if !model.ValidStatus(model.KindGuestResponse, attendance) {
			return EntryPage{}, newError(ErrorCodeValidation, "attendance must be pending, attending or declined", nil)
		}
		page, err = s.statuses.ListByStatus(ctx, model.KindGuestResponse, attendance, store.StatusQuery{
			TenantID: tenantID,
			Limit:    limit,
			Cursor:   cursor,
		})
	}
	if err != nil {
		return EntryPage{}, storeError(err, "responses")
	}
	return toEntryPage(page), nil
}

// ResolvePublic maps a slug to a site guests may see. Draft sites do not
// exist publicly; archived sites are reported as gone.
func (s *Service) ResolvePublic(ctx context.Context, slug string) (model.Tenant, error) {
	tenantID, err := s.slugs.Resolve(ctx, slug)
	if err != nil {
		return model.Tenant{}, storeError(err, "site")
	}
	item, err := s.store.Get(ctx, tenantID, model.KindTenant, tenantID)
	if err != nil {
		return model.Tenant{}, storeError(err, "site")
	}
	tenant, err := model.TenantFromItem(item)
	if err != nil {
		return model.Tenant{}, newError(ErrorCodeInternal, "stored tenant is malformed", err)
	}
	if tenant.Slug != model.NormalizeSlug(slug) {
		// stale cache entry left behind by a rename on another instance
		return model.Tenant{}, newError(ErrorCodeNotFound, "site not found", store.ErrNotFound)
	}

	switch tenant.Status {
	case model.TenantStatusActive:
		return tenant, nil
	case model.TenantStatusArchived:
		return model.Tenant{}, newError(ErrorCodeGone, "this site has been archived", nil)
	}
	return model.Tenant{}, newError(ErrorCodeNotFound, "site not found", store.ErrNotFound)
}

// PublicSite loads a published site's settings, schedule and gallery in a
// single pass over the tenant partition.
func (s *Service) PublicSite(ctx context.Context, slug string) (Site, error) {
	tenant, err := s.ResolvePublic(ctx, slug)
	if err != nil {
		return Site{}, err
	}

	site := Site{Tenant: tenant, Settings: map[string]Entry{}}
	for item, err := range s.store.IterateTenant(ctx, tenant.ID, store.QueryOptions{Limit: store.MaxPageSize}) {
		if err != nil {
			return Site{}, storeError(err, "site")
		}
		switch item.Kind {
		case model.KindSettings:
			site.Settings[item.EntityID] = entryFromItem(item)
		case model.KindScheduleEvent:
			site.Schedule = append(site.Schedule, entryFromItem(item))
		case model.KindGalleryImage:
			site.Gallery = append(site.Gallery, entryFromItem(item))
		}
	}
	return site, nil
}

func (s *Service) requireTenant(ctx context.Context, tenantID string) error {
	if _, err := s.store.Get(ctx, tenantID, model.KindTenant, tenantID); err != nil {
		return storeError(err, "tenant")
	}
	return nil
}

func toEntryPage(page store.Page) EntryPage {
	out := EntryPage{Entries: make([]Entry, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, item := range page.Items {
		out.Entries = append(out.Entries, entryFromItem(item))
	}
	return out
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
	case errors.Is(err, store.ErrVersionConflict):
		return newError(ErrorCodeConflict, what+" was modified by someone else, reload and retry", err)
	case errors.Is(err, store.ErrInvalidPayload), errors.Is(err, store.ErrInvalidKey), errors.Is(err, store.ErrInvalidCursor):
		return newError(ErrorCodeValidation, "invalid "+what+" request", err)
	case errors.Is(err, store.ErrStoreUnavailable):
		return newError(ErrorCodeUnavailable, "storage is temporarily unavailable, try again", err)
	}
	return newError(ErrorCodeInternal, "failed to access "+what, err)
}
