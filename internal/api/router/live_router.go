package router

import (
	"net/http"

	"wedding-site-backend/internal/api"
	"wedding-site-backend/internal/api/endpoints"
	"wedding-site-backend/internal/api/middleware"
	contentservice "wedding-site-backend/internal/service/content"
)

// LiveRoutes streams registry changes to guests over websockets.
func LiveRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		backend := s.Backend()
		sites := contentservice.New(backend.Store, backend.Slugs, backend.Statuses)
		liveEndpoints := endpoints.NewLiveEndpoints(sites, s.Handler())

		mux.HandleFunc(prefix+"/sites/{slug}/registry/live", s.MakeHTTPHandleFunc(liveEndpoints.Registry))
		mux.HandleFunc(prefix+"/rooms", s.MakeHTTPHandleFunc(liveEndpoints.Rooms, middleware.RequireIdentity(backend.Auth)))
	}
}
