package endpoints

import (
	"errors"
	"net/http"

	"wedding-site-backend/internal/dto"
	"wedding-site-backend/internal/model"
	contentservice "wedding-site-backend/internal/service/content"
)

type apiHandler = func(http.ResponseWriter, *http.Request) error

type ContentEndpoints interface {
	SettingsList(http.ResponseWriter, *http.Request) error
	Settings(http.ResponseWriter, *http.Request) error
	Entries(kind model.Kind) apiHandler
	Entry(kind model.Kind) apiHandler
	RSVPs(http.ResponseWriter, *http.Request) error

	PublicSite(http.ResponseWriter, *http.Request) error
	SubmitRSVP(http.ResponseWriter, *http.Request) error
}

type contentEndpoints struct {
	service *contentservice.Service
}

func NewContentEndpoints(service *contentservice.Service) ContentEndpoints {
	return &contentEndpoints{
		service: service,
	}
}

func (h *contentEndpoints) SettingsList(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]apiHandler{
		http.MethodGet: h.handleListSettings,
	})
}

func (h *contentEndpoints) Settings(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]apiHandler{
		http.MethodGet:    h.handleGetSettings,
		http.MethodPut:    h.handlePutSettings,
		http.MethodDelete: h.deleteEntry(model.KindSettings, "section"),
	})
}

func (h *contentEndpoints) Entries(kind model.Kind) apiHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		return MethodHandler(w, r, map[string]apiHandler{
			http.MethodGet:  h.listEntries(kind),
			http.MethodPost: h.putEntry(kind, false),
		})
	}
}

func (h *contentEndpoints) Entry(kind model.Kind) apiHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		return MethodHandler(w, r, map[string]apiHandler{
			http.MethodPut:    h.putEntry(kind, true),
			http.MethodDelete: h.deleteEntry(kind, "entryID"),
		})
	}
}

func (h *contentEndpoints) RSVPs(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]apiHandler{
		http.MethodGet: h.handleListRSVPs,
	})
}

func (h *contentEndpoints) PublicSite(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]apiHandler{
		http.MethodGet: h.handlePublicSite,
	})
}

func (h *contentEndpoints) SubmitRSVP(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]apiHandler{
		http.MethodPost: h.handleSubmitRSVP,
	})
}

func (h *contentEndpoints) handleListSettings(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	entries, err := h.service.ListSettings(r.Context(), identity, r.PathValue("tenantID"))
	if err != nil {
		return mapContentServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.EntryListResponse{Entries: toEntryResponses(entries)})
}

func (h *contentEndpoints) handleGetSettings(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	entry, err := h.service.GetSettings(r.Context(), identity, r.PathValue("tenantID"), r.PathValue("section"))
	if err != nil {
		return mapContentServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *contentEndpoints) handlePutSettings(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	var req dto.PutEntryRequest
	if err := decodeJSON(r, &req, "put settings"); err != nil {
		return err
	}
	version, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		return err
	}

	entry, err := h.service.PutSettings(r.Context(), identity, r.PathValue("tenantID"), r.PathValue("section"), req.Payload, version)
	if err != nil {
		return mapContentServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *contentEndpoints) listEntries(kind model.Kind) apiHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		identity, err := identityFrom(r)
		if err != nil {
			return err
		}
		limit, cursor, err := pageParams(r)
		if err != nil {
			return err
		}

		page, err := h.service.ListEntries(r.Context(), identity, r.PathValue("tenantID"), kind, limit, cursor)
		if err != nil {
			return mapContentServiceError(err)
		}
		return WriteJSON(w, http.StatusOK, toEntryListResponse(page))
	}
}

// putEntry creates an entry, or replaces the one named in the path when
// byID is set.
func (h *contentEndpoints) putEntry(kind model.Kind, byID bool) apiHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		identity, err := identityFrom(r)
		if err != nil {
			return err
		}

		var req dto.PutEntryRequest
		if err := decodeJSON(r, &req, "put entry"); err != nil {
			return err
		}
		version, err := expectedVersion(r, req.ExpectedVersion)
		if err != nil {
			return err
		}

		entryID := ""
		status := http.StatusCreated
		if byID {
			entryID = r.PathValue("entryID")
			status = http.StatusOK
		}

		entry, err := h.service.PutEntry(r.Context(), identity, r.PathValue("tenantID"), kind, entryID, req.Payload, version)
		if err != nil {
			return mapContentServiceError(err)
		}
		return WriteJSON(w, status, toEntryResponse(entry))
	}
}

func (h *contentEndpoints) deleteEntry(kind model.Kind, idParam string) apiHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		identity, err := identityFrom(r)
		if err != nil {
			return err
		}

		if err := h.service.DeleteEntry(r.Context(), identity, r.PathValue("tenantID"), kind, r.PathValue(idParam)); err != nil {
			return mapContentServiceError(err)
		}

		w.WriteHeader(http.StatusNoContent)
		return nil
	}
}

func (h *contentEndpoints) handleListRSVPs(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}
	limit, cursor, err := pageParams(r)
	if err != nil {
		return err
	}

	page, err := h.service.ListRSVPs(r.Context(), identity, r.PathValue("tenantID"), r.URL.Query().Get("attendance"), limit, cursor)
	if err != nil {
		return mapContentServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, toEntryListResponse(page))
}

func (h *contentEndpoints) handlePublicSite(w http.ResponseWriter, r *http.Request) error {
	site, err := h.service.PublicSite(r.Context(), r.PathValue("slug"))
	if err != nil {
		return mapContentServiceError(err)
	}

	resp := dto.PublicSiteResponse{
		Slug:        site.Tenant.Slug,
		DisplayName: site.Tenant.DisplayName,
		EventDate:   site.Tenant.EventDate,
		Settings:    make(map[string]dto.EntryResponse, len(site.Settings)),
		Schedule:    toEntryResponses(site.Schedule),
		Gallery:     toEntryResponses(site.Gallery),
	}
	for section, entry := range site.Settings {
		resp.Settings[section] = toEntryResponse(entry)
	}
	return WriteJSON(w, http.StatusOK, resp)
}

func (h *contentEndpoints) handleSubmitRSVP(w http.ResponseWriter, r *http.Request) error {
	tenant, err := h.service.ResolvePublic(r.Context(), r.PathValue("slug"))
	if err != nil {
		return mapContentServiceError(err)
	}

	var req dto.SubmitRSVPRequest
	if err := decodeJSON(r, &req, "submit rsvp"); err != nil {
		return err
	}

	entry, err := h.service.SubmitRSVP(r.Context(), tenant.ID, contentservice.RSVPParams{
		ResponseID: req.ResponseID,
		Name:       req.Name,
		Attendance: req.Attendance,
		GuestCount: req.GuestCount,
		Message:    req.Message,
	})
	if err != nil {
		return mapContentServiceError(err)
	}
	return WriteJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func toEntryResponse(entry contentservice.Entry) dto.EntryResponse {
	return dto.EntryResponse{
		ID:        entry.ID,
		Kind:      string(entry.Kind),
		Payload:   entry.Payload,
		Version:   entry.Version,
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
	}
}

func toEntryResponses(entries []contentservice.Entry) []dto.EntryResponse {
	out := make([]dto.EntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toEntryResponse(entry))
	}
	return out
}

func toEntryListResponse(page contentservice.EntryPage) dto.EntryListResponse {
	return dto.EntryListResponse{
		Entries:    toEntryResponses(page.Entries),
		NextCursor: page.NextCursor,
	}
}

func mapContentServiceError(err error) error {
	if err == nil {
		return nil
	}

	var svcErr *contentservice.Error
	if !errors.As(err, &svcErr) {
		return unexpectedError("content", err)
	}
	return serviceHTTPError(string(svcErr.Code), svcErr.Message, errorLog(svcErr.Message, svcErr.Err, svcErr))
}
