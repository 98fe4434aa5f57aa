package endpoints

import (
	"errors"
	"net/http"

	"wedding-site-backend/internal/dto"
	"wedding-site-backend/internal/model"
	tenantservice "wedding-site-backend/internal/service/tenant"
)

type TenantEndpoints interface {
	Tenants(http.ResponseWriter, *http.Request) error
	Tenant(http.ResponseWriter, *http.Request) error
	TenantSlug(http.ResponseWriter, *http.Request) error
	TenantStatus(http.ResponseWriter, *http.Request) error
	ResolveSlug(http.ResponseWriter, *http.Request) error
}

type tenantEndpoints struct {
	service *tenantservice.Service
}

func NewTenantEndpoints(service *tenantservice.Service) TenantEndpoints {
	return &tenantEndpoints{
		service: service,
	}
}

func (h *tenantEndpoints) Tenants(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleListTenants,
		http.MethodPost: h.handleCreateTenant,
	})
}

func (h *tenantEndpoints) Tenant(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:    h.handleGetTenant,
		http.MethodPatch:  h.handleUpdateTenant,
		http.MethodDelete: h.handleDeleteTenant,
	})
}

func (h *tenantEndpoints) TenantSlug(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPut: h.handleRenameSlug,
	})
}

func (h *tenantEndpoints) TenantStatus(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPut: h.handleSetStatus,
	})
}

func (h *tenantEndpoints) ResolveSlug(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleResolveSlug,
	})
}

func (h *tenantEndpoints) handleCreateTenant(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	var req dto.CreateTenantRequest
	if err := decodeJSON(r, &req, "create tenant"); err != nil {
		return err
	}

	tenant, err := h.service.CreateTenant(r.Context(), identity, tenantservice.CreateTenantParams{
		Slug:        req.Slug,
		DisplayName: req.DisplayName,
		EventDate:   req.EventDate,
	})
	if err != nil {
		return mapTenantServiceError(err)
	}

	return WriteJSON(w, http.StatusCreated, toTenantResponse(tenant))
}

func (h *tenantEndpoints) handleListTenants(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}
	limit, cursor, err := pageParams(r)
	if err != nil {
		return err
	}

	status := r.URL.Query().Get("status")
	if status == "" {
		status = model.TenantStatusActive
	}

	page, err := h.service.ListTenantsByStatus(r.Context(), identity, status, limit, cursor)
	if err != nil {
		return mapTenantServiceError(err)
	}

	resp := dto.TenantListResponse{
		Tenants:    make([]dto.TenantResponse, 0, len(page.Tenants)),
		NextCursor: page.NextCursor,
	}
	for _, tenant := range page.Tenants {
		resp.Tenants = append(resp.Tenants, toTenantResponse(tenant))
	}
	return WriteJSON(w, http.StatusOK, resp)
}

func (h *tenantEndpoints) handleGetTenant(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	tenant, err := h.service.GetTenant(r.Context(), identity, r.PathValue("tenantID"))
	if err != nil {
		return mapTenantServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, toTenantResponse(tenant))
}

func (h *tenantEndpoints) handleUpdateTenant(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	var req dto.UpdateTenantRequest
	if err := decodeJSON(r, &req, "update tenant"); err != nil {
		return err
	}
	version, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		return err
	}

	tenant, err := h.service.UpdateTenant(r.Context(), identity, r.PathValue("tenantID"), tenantservice.UpdateTenantParams{
		DisplayName:     req.DisplayName,
		EventDate:       req.EventDate,
		ExpectedVersion: version,
	})
	if err != nil {
		return mapTenantServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, toTenantResponse(tenant))
}

func (h *tenantEndpoints) handleDeleteTenant(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	if err := h.service.DeleteTenant(r.Context(), identity, r.PathValue("tenantID")); err != nil {
		return mapTenantServiceError(err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *tenantEndpoints) handleRenameSlug(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	var req dto.RenameSlugRequest
	if err := decodeJSON(r, &req, "rename slug"); err != nil {
		return err
	}
	version, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		return err
	}

	tenant, err := h.service.RenameSlug(r.Context(), identity, r.PathValue("tenantID"), req.Slug, version)
	if err != nil {
		return mapTenantServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, toTenantResponse(tenant))
}

func (h *tenantEndpoints) handleSetStatus(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	var req dto.SetTenantStatusRequest
	if err := decodeJSON(r, &req, "set tenant status"); err != nil {
		return err
	}
	version, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		return err
	}

	tenant, err := h.service.SetStatus(r.Context(), identity, r.PathValue("tenantID"), req.Status, version)
	if err != nil {
		return mapTenantServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, toTenantResponse(tenant))
}

// handleResolveSlug finds a tenant by slug for a caller allowed to see it.
func (h *tenantEndpoints) handleResolveSlug(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	resolved, err := h.service.ResolveSlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		return mapTenantServiceError(err)
	}
	tenant, err := h.service.GetTenant(r.Context(), identity, resolved.ID)
	if err != nil {
		return mapTenantServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, toTenantResponse(tenant))
}

func toTenantResponse(tenant model.Tenant) dto.TenantResponse {
	return dto.TenantResponse{
		ID:          tenant.ID,
		Slug:        tenant.Slug,
		DisplayName: tenant.DisplayName,
		Status:      tenant.Status,
		EventDate:   tenant.EventDate,
		Version:     tenant.Version,
		CreatedAt:   tenant.CreatedAt,
		UpdatedAt:   tenant.UpdatedAt,
	}
}

func mapTenantServiceError(err error) error {
	if err == nil {
		return nil
	}

	var svcErr *tenantservice.Error
	if !errors.As(err, &svcErr) {
		return unexpectedError("tenant", err)
	}
	return serviceHTTPError(string(svcErr.Code), svcErr.Message, errorLog(svcErr.Message, svcErr.Err, svcErr))
}
