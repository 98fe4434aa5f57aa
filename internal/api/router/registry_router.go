package router

import (
	"net/http"

	"wedding-site-backend/internal/api"
	"wedding-site-backend/internal/api/endpoints"
	"wedding-site-backend/internal/api/middleware"
	contentservice "wedding-site-backend/internal/service/content"
	registryservice "wedding-site-backend/internal/service/registry"
)

func newRegistryEndpoints(s *api.APIServer) endpoints.RegistryEndpoints {
	backend := s.Backend()
	registry := registryservice.New(backend.Store, backend.Statuses, backend.Ledger)
	sites := contentservice.New(backend.Store, backend.Slugs, backend.Statuses)
	return endpoints.NewRegistryEndpoints(registry, sites)
}

// RegistryRoutes serves gift and reservation management to site editors.
func RegistryRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		registryEndpoints := newRegistryEndpoints(s)
		auth := middleware.RequireIdentity(s.Backend().Auth)

		gift := prefix + "/tenants/{tenantID}/gifts/{giftID}"
		mux.HandleFunc(prefix+"/tenants/{tenantID}/gifts", s.MakeHTTPHandleFunc(registryEndpoints.Gifts, auth))
		mux.HandleFunc(gift, s.MakeHTTPHandleFunc(registryEndpoints.Gift, auth))
		mux.HandleFunc(gift+"/reservations", s.MakeHTTPHandleFunc(registryEndpoints.Reservations, auth))
		mux.HandleFunc(gift+"/reservations/{claimID}", s.MakeHTTPHandleFunc(registryEndpoints.Reservation, auth))
		mux.HandleFunc(gift+"/reconcile", s.MakeHTTPHandleFunc(registryEndpoints.Reconcile, auth))
	}
}

// RegistryPublicRoutes lets guests browse and claim gifts on a published site.
func RegistryPublicRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		registryEndpoints := newRegistryEndpoints(s)

		mux.HandleFunc(prefix+"/sites/{slug}/gifts", s.MakeHTTPHandleFunc(registryEndpoints.PublicGifts))
		mux.HandleFunc(prefix+"/sites/{slug}/gifts/{giftID}/claims", s.MakeHTTPHandleFunc(registryEndpoints.Claims))
		mux.HandleFunc(prefix+"/sites/{slug}/gifts/{giftID}/claims/{claimID}", s.MakeHTTPHandleFunc(registryEndpoints.Claim))
	}
}
