package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"wedding-site-backend/internal/api/middleware"
	"wedding-site-backend/internal/logger"

	"go.uber.org/zap"
)

type apiFunc func(http.ResponseWriter, *http.Request) error

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func (s *APIServer) MakeHTTPHandleFunc(f apiFunc, authMiddleware ...middleware.Middleware) http.HandlerFunc {
	baseHandler := func(w http.ResponseWriter, r *http.Request) {
		var err error
		if s.requestQueueManager != nil {
			if qerr := s.requestQueueManager.Run(func() error {
				err = f(w, r)
				return nil
			}); qerr != nil {
				err = &HTTPError{
					StatusCode: http.StatusServiceUnavailable,
					Message:    "Server is shutting down",
					ErrorLog:   qerr,
				}
			}
		} else {
			err = f(w, r)
		}

		if err != nil {
			writeError(w, r, err)
		}
	}

	middlewares := []middleware.Middleware{
		middleware.CORS(s.cors),
		middleware.Logging(),
	}

	finalHandler := func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		middleware.Chain(baseHandler, authMiddleware...)(w, r)
	}

	return middleware.Chain(finalHandler, middlewares...)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		httpErr = &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   err,
		}
	}

	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", httpErr.StatusCode),
	}
	switch {
	case httpErr.StatusCode >= http.StatusInternalServerError:
		logger.ErrorCtx(r.Context(), httpErr.ErrorLog, fields...)
	case httpErr.ErrorLog != nil:
		logger.DebugCtx(r.Context(), httpErr.ErrorLog.Error(), fields...)
	}

	if httpErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", httpErr.RetryAfterHeader())
	}
	_ = WriteJSON(w, httpErr.StatusCode, ApiError{Error: httpErr.Message, Code: httpErr.Code})
}
