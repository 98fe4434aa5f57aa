package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"wedding-site-backend/internal/api/middleware"
	"wedding-site-backend/internal/cache"
	"wedding-site-backend/internal/config"
	"wedding-site-backend/internal/database"
	"wedding-site-backend/internal/ledger"
	"wedding-site-backend/internal/logger"
	"wedding-site-backend/internal/queue"
	authservice "wedding-site-backend/internal/service/auth"
	"wedding-site-backend/internal/store"
	"wedding-site-backend/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

// Backend is the storage stack shared by every route of a server.
type Backend struct {
	DB       *database.Database
	Store    *store.Store
	Slugs    *store.SlugIndex
	Statuses *store.StatusIndex
	Ledger   *ledger.Ledger
	Auth     *authservice.Service
}

type BackendOptions struct {
	SlugCache  cache.SlugCache
	Ledger     config.RetryConfig
	Notifier   ledger.Notifier
	JWTSecret  string
	Registerer prometheus.Registerer
}

func NewBackend(db *database.Database, opts BackendOptions) *Backend {
	storeOpts := []store.Option{}
	if opts.SlugCache != nil {
		storeOpts = append(storeOpts, store.WithSlugCache(opts.SlugCache))
	}

	ledgerOpts := []ledger.Option{}
	if opts.Notifier != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithNotifier(opts.Notifier))
	}
	if opts.Registerer != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithRegisterer(opts.Registerer))
	}

	return &Backend{
		DB:       db,
		Store:    store.New(db.Table, storeOpts...),
		Slugs:    store.NewSlugIndex(db.Table, opts.SlugCache),
		Statuses: store.NewStatusIndex(db.Table),
		Ledger:   ledger.New(db.Table, opts.Ledger, ledgerOpts...),
		Auth:     authservice.New(opts.JWTSecret),
	}
}

type APIServer struct {
	listenAddr          string
	requestQueueManager *queue.RequestQueueManager
	backend             *Backend
	routeRegistrars     []RouteRegistrar
	handler             *websocket.Handler
	metrics             *metrics
	cors                middleware.CORSConfig
	serverConfig        config.ServerConfig
}

func NewAPIServer(listenAddr string, rqm *queue.RequestQueueManager, backend *Backend, handler *websocket.Handler, registrars ...RouteRegistrar) *APIServer {
	return &APIServer{
		listenAddr:          listenAddr,
		requestQueueManager: rqm,
		backend:             backend,
		handler:             handler,
		routeRegistrars:     registrars,
		metrics:             newMetrics(prometheus.DefaultRegisterer, listenAddr, rqm),
		cors:                middleware.DefaultCORSConfig([]string{"http://localhost:3000"}),
	}
}

// WithServerConfig applies timeouts and allowed origins from configuration.
func (s *APIServer) WithServerConfig(cfg config.ServerConfig) *APIServer {
	s.serverConfig = cfg
	if len(cfg.AllowedOrigins) > 0 {
		s.cors = middleware.DefaultCORSConfig(cfg.AllowedOrigins)
	}
	return s
}

// Routes builds the instrumented handler serving every registered route.
func (s *APIServer) Routes() http.Handler {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.Handle("/metrics", s.metrics.metricsHandler())
	return s.metrics.instrument(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests and the
// request queue.
func (s *APIServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.Routes(),
		ReadTimeout:  seconds(s.serverConfig.ReadTimeout),
		WriteTimeout: seconds(s.serverConfig.WriteTimeout),
		IdleTimeout:  seconds(s.serverConfig.IdleTimeout),
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", s.listenAddr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server", zap.String("addr", s.listenAddr))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if s.requestQueueManager != nil {
		s.requestQueueManager.Shutdown()
	}
	return err
}

func (s *APIServer) Backend() *Backend {
	return s.backend
}

func (s *APIServer) Handler() *websocket.Handler {
	return s.handler
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
