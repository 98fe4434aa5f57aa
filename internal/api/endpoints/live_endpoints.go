package endpoints

import (
	"errors"
	"net/http"

	authservice "wedding-site-backend/internal/service/auth"
	contentservice "wedding-site-backend/internal/service/content"
	"wedding-site-backend/internal/websocket"

	"github.com/google/uuid"
)

type LiveEndpoints interface {
	Registry(http.ResponseWriter, *http.Request) error
	Rooms(http.ResponseWriter, *http.Request) error
}

type liveEndpoints struct {
	sites   *contentservice.Service
	handler *websocket.Handler
}

func NewLiveEndpoints(sites *contentservice.Service, handler *websocket.Handler) LiveEndpoints {
	return &liveEndpoints{
		sites:   sites,
		handler: handler,
	}
}

func (h *liveEndpoints) Registry(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]apiHandler{
		http.MethodGet: h.handleJoinRegistry,
	})
}

func (h *liveEndpoints) Rooms(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]apiHandler{
		http.MethodGet: h.handleListRooms,
	})
}

// handleJoinRegistry upgrades a guest's connection and streams gift updates
// for the published site named by slug.
func (h *liveEndpoints) handleJoinRegistry(w http.ResponseWriter, r *http.Request) error {
	tenant, err := h.sites.ResolvePublic(r.Context(), r.PathValue("slug"))
	if err != nil {
		return mapContentServiceError(err)
	}

	h.handler.JoinRoom(w, r, tenant.ID, uuid.NewString())
	return nil
}

func (h *liveEndpoints) handleListRooms(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}
	if err := authservice.RequireAdmin(identity); err != nil {
		return mapAuthError(err)
	}

	h.handler.GetRooms(w, r)
	return nil
}

func mapAuthError(err error) error {
	var authErr *authservice.Error
	if !errors.As(err, &authErr) {
		return unexpectedError("auth", err)
	}
	return serviceHTTPError(string(authErr.Code), authErr.Message, authErr)
}
