package registry

import (
	"context"
	"errors"
	"strings"

	internaljwt "wedding-site-backend/internal/jwt"
	"wedding-site-backend/internal/ledger"
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
	ErrorCodeConflict     ErrorCode = "conflict"
	ErrorCodeSoldOut      ErrorCode = "sold_out"
	ErrorCodeContention   ErrorCode = "contention"
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

// Fields a gift's details may not overwrite.
var reservedFields = map[string]bool{
	model.FieldName:             true,
	model.FieldTotalQuantity:    true,
	model.FieldReservedQuantity: true,
}

type CreateGiftParams struct {
	Name          string
	TotalQuantity int64
	Details       map[string]any
}

type UpdateGiftParams struct {
	Name *string
	// Details replaces every non-counter field except the name.
	Details         map[string]any
	ExpectedVersion *int64
}

type GiftPage struct {
	Gifts      []model.Gift
	NextCursor string
}

type ClaimParams struct {
	GiftID          string
	Quantity        int64
	ClaimantContact string
	IdempotencyKey  string
}

type Service struct {
	store    *store.Store
	statuses *store.StatusIndex
	ledger   *ledger.Ledger
}

func New(st *store.Store, statuses *store.StatusIndex, l *ledger.Ledger) *Service {
	return &Service{
		store:    st,
		statuses: statuses,
		ledger:   l,
	}
}

func (s *Service) CreateGift(ctx context.Context, identity Identity, tenantID string, params CreateGiftParams) (model.Gift, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityEditor); err != nil {
		return model.Gift{}, authError(err)
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return model.Gift{}, newError(ErrorCodeValidation, "gift name is required", nil)
	}
	if params.TotalQuantity < 1 {
		return model.Gift{}, newError(ErrorCodeValidation, "total quantity must be at least 1", nil)
	}
	if err := s.requireTenant(ctx, tenantID); err != nil {
		return model.Gift{}, err
	}

	payload := details(params.Details)
	payload[model.FieldName] = name
	payload[model.FieldTotalQuantity] = params.TotalQuantity

	created := int64(0)
	item, err := s.store.Put(ctx, store.PutParams{
		TenantID:        tenantID,
		Kind:            model.KindGift,
		EntityID:        uuid.NewString(),
		Payload:         payload,
		ExpectedVersion: &created,
	})
	if err != nil {
		return model.Gift{}, storeError(err, "gift")
	}
	return toGift(item)
}

func (s *Service) GetGift(ctx context.Context, identity Identity, tenantID, giftID string) (model.Gift, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityViewer); err != nil {
		return model.Gift{}, authError(err)
	}
	item, err := s.store.Get(ctx, tenantID, model.KindGift, giftID)
	if err != nil {
		return model.Gift{}, storeError(err, "gift")
	}
	return toGift(item)
}

// UpdateGift edits a gift's descriptive fields. Quantities are fixed at
// creation and reserved units move only through claims.
func (s *Service) UpdateGift(ctx context.Context, identity Identity, tenantID, giftID string, params UpdateGiftParams) (model.Gift, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityEditor); err != nil {
		return model.Gift{}, authError(err)
	}
	if params.Name != nil && strings.TrimSpace(*params.Name) == "" {
		return model.Gift{}, newError(ErrorCodeValidation, "gift name cannot be empty", nil)
	}

	current, err := s.store.Get(ctx, tenantID, model.KindGift, giftID)
	if err != nil {
		return model.Gift{}, storeError(err, "gift")
	}
	if params.ExpectedVersion != nil && *params.ExpectedVersion != current.Version {
		return model.Gift{}, newError(ErrorCodeConflict, "gift was modified by someone else, reload and retry", store.ErrVersionConflict)
	}

	payload := model.ClonePayload(current.Payload)
	if params.Details != nil {
		payload = details(params.Details)
		payload[model.FieldName] = current.Payload[model.FieldName]
	}
	if params.Name != nil {
		payload[model.FieldName] = strings.TrimSpace(*params.Name)
	}

	version := current.Version
	item, err := s.store.Put(ctx, store.PutParams{
		TenantID:        tenantID,
		Kind:            model.KindGift,
		EntityID:        giftID,
		Payload:         payload,
		ExpectedVersion: &version,
	})
	if err != nil {
		return model.Gift{}, storeError(err, "gift")
	}
	return toGift(item)
}

// DeleteGift removes the gift together with its reservations.
func (s *Service) DeleteGift(ctx context.Context, identity Identity, tenantID, giftID string) error {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityEditor); err != nil {
		return authError(err)
	}
	if err := s.store.Delete(ctx, tenantID, model.KindGift, giftID); err != nil {
		return storeError(err, "gift")
	}
	return nil
}

func (s *Service) ListGifts(ctx context.Context, identity Identity, tenantID string, limit int, cursor string) (GiftPage, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityViewer); err != nil {
		return GiftPage{}, authError(err)
	}
	return s.listGifts(ctx, tenantID, limit, cursor)
}

func (s *Service) ListGiftsByStatus(ctx context.Context, identity Identity, tenantID, status string, limit int, cursor string) (GiftPage, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityViewer); err != nil {
		return GiftPage{}, authError(err)
	}
	return s.listByStatus(ctx, tenantID, status, limit, cursor)
}

// PublicGifts lists a site's registry for guests. The caller has already
// resolved and gated the site. An empty status lists every gift.
func (s *Service) PublicGifts(ctx context.Context, tenantID, status string, limit int, cursor string) (GiftPage, error) {
	if status != "" {
		return s.listByStatus(ctx, tenantID, status, limit, cursor)
	}
	return s.listGifts(ctx, tenantID, limit, cursor)
}

func (s *Service) listGifts(ctx context.Context, tenantID string, limit int, cursor string) (GiftPage, error) {
	page, err := s.store.QueryByTenant(ctx, tenantID, store.QueryOptions{Kind: model.KindGift, Limit: limit, Cursor: cursor})
	if err != nil {
		return GiftPage{}, storeError(err, "gifts")
	}
	return toGiftPage(page)
}

func (s *Service) listByStatus(ctx context.Context, tenantID, status string, limit int, cursor string) (GiftPage, error) {
	if !model.ValidStatus(model.KindGift, status) {
		return GiftPage{}, newError(ErrorCodeValidation, "status must be available or fully_reserved", nil)
	}
	page, err := s.statuses.ListByStatus(ctx, model.KindGift, status, store.StatusQuery{
		TenantID: tenantID,
		Limit:    limit,
		Cursor:   cursor,
	})
	if err != nil {
		return GiftPage{}, storeError(err, "gifts")
	}
	return toGiftPage(page)
}

// Claim reserves units of a gift for a guest. Guests are anonymous; the
// returned claim id is what lets them release the reservation later.
func (s *Service) Claim(ctx context.Context, tenantID string, params ClaimParams) (ledger.ClaimResult, error) {
	if params.Quantity == 0 {
		params.Quantity = 1
	}
	result, err := s.ledger.Claim(ctx, ledger.ClaimRequest{
		TenantID:        tenantID,
		GiftID:          params.GiftID,
		Quantity:        params.Quantity,
		ClaimantContact: strings.TrimSpace(params.ClaimantContact),
		IdempotencyKey:  strings.TrimSpace(params.IdempotencyKey),
	})
	if err != nil {
		return ledger.ClaimResult{}, ledgerError(err)
	}
	return result, nil
}

func (s *Service) Unclaim(ctx context.Context, tenantID, giftID, claimID string) (ledger.UnclaimResult, error) {
	result, err := s.ledger.Unclaim(ctx, tenantID, giftID, claimID)
	if err != nil {
		return ledger.UnclaimResult{}, ledgerError(err)
	}
	return result, nil
}

// ReleaseReservation lets the couple cancel a guest's reservation.
func (s *Service) ReleaseReservation(ctx context.Context, identity Identity, tenantID, giftID, claimID string) (ledger.UnclaimResult, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityEditor); err != nil {
		return ledger.UnclaimResult{}, authError(err)
	}
	return s.Unclaim(ctx, tenantID, giftID, claimID)
}

func (s *Service) ListReservations(ctx context.Context, identity Identity, tenantID, giftID string) ([]model.Reservation, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityEditor); err != nil {
		return nil, authError(err)
	}
	if _, err := s.store.Get(ctx, tenantID, model.KindGift, giftID); err != nil {
		return nil, storeError(err, "gift")
	}
	reservations, err := s.ledger.ListReservations(ctx, tenantID, giftID)
	if err != nil {
		return nil, ledgerError(err)
	}
	return reservations, nil
}

func (s *Service) Reconcile(ctx context.Context, identity Identity, tenantID, giftID string) (ledger.ReconcileReport, error) {
	if err := authservice.Authorize(identity, tenantID, internaljwt.CapabilityEditor); err != nil {
		return ledger.ReconcileReport{}, authError(err)
	}
	report, err := s.ledger.Reconcile(ctx, tenantID, giftID)
	if err != nil {
		return ledger.ReconcileReport{}, ledgerError(err)
	}
	return report, nil
}

func (s *Service) requireTenant(ctx context.Context, tenantID string) error {
	if _, err := s.store.Get(ctx, tenantID, model.KindTenant, tenantID); err != nil {
		return storeError(err, "tenant")
	}
	return nil
}

func details(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+3)
	for k, v := range in {
		if !reservedFields[k] {
			out[k] = v
		}
	}
	return out
}

func toGift(item model.Item) (model.Gift, error) {
	g, err := model.GiftFromItem(item)
	if err != nil {
		return model.Gift{}, newError(ErrorCodeInternal, "stored gift is malformed", err)
	}
	return g, nil
}

func toGiftPage(page store.Page) (GiftPage, error) {
	out := GiftPage{Gifts: make([]model.Gift, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, item := range page.Items {
		g, err := toGift(item)
		if err != nil {
			return GiftPage{}, err
		}
		out.Gifts = append(out.Gifts, g)
	}
	return out, nil
}

func authError(err error) error {
	var authErr *authservice.Error
	if errors.As(err, &authErr) && authErr.Code == authservice.ErrorCodeUnauthorized {
		return newError(ErrorCodeUnauthorized, authErr.Message, err)
	}
	return newError(ErrorCodeForbidden, err.Error(), err)
}

func ledgerError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return newError(ErrorCodeValidation, "quantity must be at least 1", err)
	case errors.Is(err, ledger.ErrInsufficientQuantity):
		return newError(ErrorCodeSoldOut, "not enough of this gift is left", err)
	case errors.Is(err, ledger.ErrContention):
		return newError(ErrorCodeContention, "this gift is busy, try again in a moment", err)
	case errors.Is(err, ledger.ErrIdempotencyConflict):
		return newError(ErrorCodeConflict, "this claim id was already used for a different quantity", err)
	case errors.Is(err, ledger.ErrLedgerInconsistent):
		return newError(ErrorCodeInternal, "gift reservations are inconsistent", err)
	}
	return storeError(err, "gift")
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
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(ErrorCodeUnavailable, "request was cancelled", err)
	}
	return newError(ErrorCodeInternal, "failed to access "+what, err)
}
