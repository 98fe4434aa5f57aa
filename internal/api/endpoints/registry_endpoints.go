package endpoints

import (
	"errors"
	"net/http"

	"wedding-site-backend/internal/dto"
	"wedding-site-backend/internal/ledger"
	"wedding-site-backend/internal/model"
	contentservice "wedding-site-backend/internal/service/content"
	registryservice "wedding-site-backend/internal/service/registry"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type RegistryEndpoints interface {
	Gifts(http.ResponseWriter, *http.Request) error
	Gift(http.ResponseWriter, *http.Request) error
	Reservations(http.ResponseWriter, *http.Request) error
	Reservation(http.ResponseWriter, *http.Request) error
	Reconcile(http.ResponseWriter, *http.Request) error

	PublicGifts(http.ResponseWriter, *http.Request) error
	Claims(http.ResponseWriter, *http.Request) error
	Claim(http.ResponseWriter, *http.Request) error
}

type registryEndpoints struct {
	service *registryservice.Service
	sites   *contentservice.Service
}

// NewRegistryEndpoints serves the gift registry. Guest routes address a site
// by slug, which sites resolves.
func NewRegistryEndpoints(service *registryservice.Service, sites *contentservice.Service) RegistryEndpoints {
	return &registryEndpoints{
		service: service,
		sites:   sites,
	}
}

func (h *registryEndpoints) Gifts(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleListGifts,
		http.MethodPost: h.handleCreateGift,
	})
}

func (h *registryEndpoints) Gift(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:    h.handleGetGift,
		http.MethodPatch:  h.handleUpdateGift,
		http.MethodDelete: h.handleDeleteGift,
	})
}

func (h *registryEndpoints) Reservations(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListReservations,
	})
}

func (h *registryEndpoints) Reservation(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodDelete: h.handleReleaseReservation,
	})
}

func (h *registryEndpoints) Reconcile(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleReconcile,
	})
}

func (h *registryEndpoints) PublicGifts(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handlePublicGifts,
	})
}

func (h *registryEndpoints) Claims(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleClaim,
	})
}

func (h *registryEndpoints) Claim(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodDelete: h.handleUnclaim,
	})
}

func (h *registryEndpoints) handleCreateGift(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	var req dto.CreateGiftRequest
	if err := decodeJSON(r, &req, "create gift"); err != nil {
		return err
	}

	gift, err := h.service.CreateGift(r.Context(), identity, r.PathValue("tenantID"), registryservice.CreateGiftParams{
		Name:          req.Name,
		TotalQuantity: req.TotalQuantity,
		Details:       req.Details,
	})
	if err != nil {
		return mapRegistryServiceError(err)
	}
	return WriteJSON(w, http.StatusCreated, toGiftResponse(gift))
}

func (h *registryEndpoints) handleListGifts(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}
	limit, cursor, err := pageParams(r)
	if err != nil {
		return err
	}

	tenantID := r.PathValue("tenantID")
	var page registryservice.GiftPage
	if status := r.URL.Query().Get("status"); status != "" {
		page, err = h.service.ListGiftsByStatus(r.Context(), identity, tenantID, status, limit, cursor)
	} else {
		page, err = h.service.ListGifts(r.Context(), identity, tenantID, limit, cursor)
	}
	if err != nil {
		return mapRegistryServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, toGiftListResponse(page))
}

func (h *registryEndpoints) handleGetGift(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	gift, err := h.service.GetGift(r.Context(), identity, r.PathValue("tenantID"), r.PathValue("giftID"))
	if err != nil {
		return mapRegistryServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, toGiftResponse(gift))
}

func (h *registryEndpoints) handleUpdateGift(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	var req dto.UpdateGiftRequest
	if err := decodeJSON(r, &req, "update gift"); err != nil {
		return err
	}
	version, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		return err
	}

	gift, err := h.service.UpdateGift(r.Context(), identity, r.PathValue("tenantID"), r.PathValue("giftID"), registryservice.UpdateGiftParams{
		Name:            req.Name,
		Details:         req.Details,
		ExpectedVersion: version,
	})
	if err != nil {
		return mapRegistryServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, toGiftResponse(gift))
}

func (h *registryEndpoints) handleDeleteGift(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	if err := h.service.DeleteGift(r.Context(), identity, r.PathValue("tenantID"), r.PathValue("giftID")); err != nil {
		return mapRegistryServiceError(err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *registryEndpoints) handleListReservations(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	reservations, err := h.service.ListReservations(r.Context(), identity, r.PathValue("tenantID"), r.PathValue("giftID"))
	if err != nil {
		return mapRegistryServiceError(err)
	}

	resp := dto.ReservationListResponse{
		Reservations: make([]dto.ReservationResponse, 0, len(reservations)),
	}
	for _, res := range reservations {
		resp.Reservations = append(resp.Reservations, toReservationResponse(res))
	}
	return WriteJSON(w, http.StatusOK, resp)
}

func (h *registryEndpoints) handleReleaseReservation(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	result, err := h.service.ReleaseReservation(r.Context(), identity,
		r.PathValue("tenantID"), r.PathValue("giftID"), r.PathValue("claimID"))
	if err != nil {
		return mapRegistryServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, toUnclaimResponse(result))
}

func (h *registryEndpoints) handleReconcile(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	report, err := h.service.Reconcile(r.Context(), identity, r.PathValue("tenantID"), r.PathValue("giftID"))
	if err != nil {
		return mapRegistryServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.ReconcileResponse{
		GiftID:       report.GiftID,
		Total:        report.Total,
		Reserved:     report.Reserved,
		LedgerSum:    report.LedgerSum,
		Reservations: report.Reservations,
		Consistent:   report.Consistent,
	})
}

func (h *registryEndpoints) handlePublicGifts(w http.ResponseWriter, r *http.Request) error {
	tenant, err := h.sites.ResolvePublic(r.Context(), r.PathValue("slug"))
	if err != nil {
		return mapContentServiceError(err)
	}
	limit, cursor, err := pageParams(r)
	if err != nil {
		return err
	}

	page, err := h.service.PublicGifts(r.Context(), tenant.ID, r.URL.Query().Get("status"), limit, cursor)
	if err != nil {
		return mapRegistryServiceError(err)
	}

	return WriteJSON(w, http.StatusOK, toGiftListResponse(page))
}

func (h *registryEndpoints) handleClaim(w http.ResponseWriter, r *http.Request) error {
	tenant, err := h.sites.ResolvePublic(r.Context(), r.PathValue("slug"))
	if err != nil {
		return mapContentServiceError(err)
	}

	var req dto.ClaimGiftRequest
	if err := decodeJSON(r, &req, "claim gift"); err != nil {
		return err
	}
	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get(IdempotencyKeyHeader)
	}

	result, err := h.service.Claim(r.Context(), tenant.ID, registryservice.ClaimParams{
		GiftID:          r.PathValue("giftID"),
		Quantity:        req.Quantity,
		ClaimantContact: req.ClaimantContact,
		IdempotencyKey:  key,
	})
	if err != nil {
		return mapRegistryServiceError(err)
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	return WriteJSON(w, status, dto.ClaimGiftResponse{
		Reservation: toReservationResponse(result.Reservation),
		Gift:        toGiftResponse(result.Gift),
		Replayed:    result.Replayed,
	})
}

func (h *registryEndpoints) handleUnclaim(w http.ResponseWriter, r *http.Request) error {
	tenant, err := h.sites.ResolvePublic(r.Context(), r.PathValue("slug"))
	if err != nil {
		return mapContentServiceError(err)
	}

	result, err := h.service.Unclaim(r.Context(), tenant.ID, r.PathValue("giftID"), r.PathValue("claimID"))
	if err != nil {
		return mapRegistryServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, toUnclaimResponse(result))
}

func toGiftResponse(gift model.Gift) dto.GiftResponse {
	details := make(map[string]any, len(gift.Payload))
	for k, v := range gift.Payload {
		switch k {
		case model.FieldName, model.FieldTotalQuantity, model.FieldReservedQuantity:
			continue
		}
		details[k] = v
	}
	if len(details) == 0 {
		details = nil
	}

	return dto.GiftResponse{
		ID:               gift.ID,
		Name:             gift.Name,
		TotalQuantity:    gift.TotalQuantity,
		ReservedQuantity: gift.ReservedQuantity,
		Remaining:        gift.Remaining(),
		Status:           gift.Status(),
		Details:          details,
		Version:          gift.Version,
		UpdatedAt:        gift.UpdatedAt,
	}
}

func toGiftListResponse(page registryservice.GiftPage) dto.GiftListResponse {
	resp := dto.GiftListResponse{
		Gifts:      make([]dto.GiftResponse, 0, len(page.Gifts)),
		NextCursor: page.NextCursor,
	}
	for _, gift := range page.Gifts {
		resp.Gifts = append(resp.Gifts, toGiftResponse(gift))
	}
	return resp
}

func toReservationResponse(res model.Reservation) dto.ReservationResponse {
	return dto.ReservationResponse{
		ClaimID:         res.ClaimID,
		GiftID:          res.GiftID,
		QuantityClaimed: res.QuantityClaimed,
		ClaimantContact: res.ClaimantContact,
		CreatedAt:       res.CreatedAt,
	}
}

func toUnclaimResponse(result ledger.UnclaimResult) dto.UnclaimGiftResponse {
	resp := dto.UnclaimGiftResponse{
		Removed: result.Removed,
		Gift:    toGiftResponse(result.Gift),
	}
	if result.Removed {
		released := toReservationResponse(result.Released)
		resp.Released = &released
	}
	return resp
}

func mapRegistryServiceError(err error) error {
	if err == nil {
		return nil
	}

	var svcErr *registryservice.Error
	if !errors.As(err, &svcErr) {
		return unexpectedError("registry", err)
	}
	return serviceHTTPError(string(svcErr.Code), svcErr.Message, errorLog(svcErr.Message, svcErr.Err, svcErr))
}
