package router

import (
	"net/http"

	"wedding-site-backend/internal/api"
	"wedding-site-backend/internal/api/endpoints"
	"wedding-site-backend/internal/api/middleware"
	tenantservice "wedding-site-backend/internal/service/tenant"
)

func TenantRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		backend := s.Backend()
		service := tenantservice.New(backend.Store, backend.Slugs, backend.Statuses)
		tenantEndpoints := endpoints.NewTenantEndpoints(service)
		auth := middleware.RequireIdentity(backend.Auth)

		mux.HandleFunc(prefix+"/tenants", s.MakeHTTPHandleFunc(tenantEndpoints.Tenants, auth))
		mux.HandleFunc(prefix+"/tenants/{tenantID}", s.MakeHTTPHandleFunc(tenantEndpoints.Tenant, auth))
		mux.HandleFunc(prefix+"/tenants/{tenantID}/slug", s.MakeHTTPHandleFunc(tenantEndpoints.TenantSlug, auth))
		mux.HandleFunc(prefix+"/tenants/{tenantID}/status", s.MakeHTTPHandleFunc(tenantEndpoints.TenantStatus, auth))
		mux.HandleFunc(prefix+"/slugs/{slug}", s.MakeHTTPHandleFunc(tenantEndpoints.ResolveSlug, auth))
	}
}
