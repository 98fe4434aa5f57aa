package router

import (
	"net/http"

	"wedding-site-backend/internal/api"
	"wedding-site-backend/internal/api/endpoints"
	"wedding-site-backend/internal/api/middleware"
	"wedding-site-backend/internal/model"
	contentservice "wedding-site-backend/internal/service/content"
)

func newContentEndpoints(s *api.APIServer) endpoints.ContentEndpoints {
	backend := s.Backend()
	return endpoints.NewContentEndpoints(contentservice.New(backend.Store, backend.Slugs, backend.Statuses))
}

func ContentRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		contentEndpoints := newContentEndpoints(s)
		auth := middleware.RequireIdentity(s.Backend().Auth)

		tenant := prefix + "/tenants/{tenantID}"
		mux.HandleFunc(tenant+"/settings", s.MakeHTTPHandleFunc(contentEndpoints.SettingsList, auth))
		mux.HandleFunc(tenant+"/settings/{section}", s.MakeHTTPHandleFunc(contentEndpoints.Settings, auth))
		mux.HandleFunc(tenant+"/schedule", s.MakeHTTPHandleFunc(contentEndpoints.Entries(model.KindScheduleEvent), auth))
		mux.HandleFunc(tenant+"/schedule/{entryID}", s.MakeHTTPHandleFunc(contentEndpoints.Entry(model.KindScheduleEvent), auth))
		mux.HandleFunc(tenant+"/gallery", s.MakeHTTPHandleFunc(contentEndpoints.Entries(model.KindGalleryImage), auth))
		mux.HandleFunc(tenant+"/gallery/{entryID}", s.MakeHTTPHandleFunc(contentEndpoints.Entry(model.KindGalleryImage), auth))
		mux.HandleFunc(tenant+"/rsvps", s.MakeHTTPHandleFunc(contentEndpoints.RSVPs, auth))
	}
}

func ContentPublicRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		contentEndpoints := newContentEndpoints(s)

		mux.HandleFunc(prefix+"/sites/{slug}", s.MakeHTTPHandleFunc(contentEndpoints.PublicSite))
		mux.HandleFunc(prefix+"/sites/{slug}/rsvps", s.MakeHTTPHandleFunc(contentEndpoints.SubmitRSVP))
	}
}
