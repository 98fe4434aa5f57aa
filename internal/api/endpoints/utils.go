package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"wedding-site-backend/internal/api"
	authservice "wedding-site-backend/internal/service/auth"
)

type HTTPError = api.HTTPError

const (
	maxBodyBytes = 64 * 1024
	// contentionRetryAfter is the Retry-After hint, in seconds, sent when a
	// write lost too many races.
	contentionRetryAfter = 1
)

type ApiMessageResponse struct {
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	return api.WriteJSON(w, status, v)
}

func MethodHandler(
	w http.ResponseWriter,
	r *http.Request,
	allowed map[string]func(http.ResponseWriter, *http.Request) error,
) error {
	if handler, ok := allowed[r.Method]; ok {
		return handler(w, r)
	}
	return &HTTPError{
		StatusCode: http.StatusMethodNotAllowed,
		Message:    "Method not allowed.",
		ErrorLog:   fmt.Errorf("method not allowed"),
	}
}

func decodeJSON(r *http.Request, v any, what string) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode %s request: %w", what, err),
		}
	}
	return nil
}

func identityFrom(r *http.Request) (authservice.Identity, error) {
	identity, ok := authservice.IdentityFromContext(r.Context())
	if !ok {
		return authservice.Identity{}, &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Unauthorized",
			ErrorLog:   fmt.Errorf("no identity on request context"),
		}
	}
	return identity, nil
}

// pageParams reads the limit and cursor query parameters. A missing limit
// is zero, which the store turns into its default page size.
func pageParams(r *http.Request) (int, string, error) {
	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, "", &HTTPError{
				StatusCode: http.StatusBadRequest,
				Message:    "limit must be a non-negative integer",
				ErrorLog:   fmt.Errorf("parse limit %q: %v", raw, err),
			}
		}
		limit = n
	}
	return limit, query.Get("cursor"), nil
}

// expectedVersion prefers the version from the body and falls back to the
// If-Match header.
func expectedVersion(r *http.Request, fromBody *int64) (*int64, error) {
	if fromBody != nil {
		return fromBody, nil
	}
	raw := strings.Trim(strings.TrimSpace(r.Header.Get("If-Match")), `"`)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return nil, &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "If-Match must be an entity version",
			ErrorLog:   fmt.Errorf("parse If-Match %q: %v", raw, err),
		}
	}
	return &v, nil
}

func statusForCode(code string) int {
	switch code {
	case "validation_error":
		return http.StatusBadRequest
	case "unauthorized":
		return http.StatusUnauthorized
	case "forbidden":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "gone":
		return http.StatusGone
	case "conflict", "sold_out", "contention":
		return http.StatusConflict
	case "unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// serviceHTTPError renders a service error. Internal failures keep their
// detail in the log only.
func serviceHTTPError(code, message string, cause error) *HTTPError {
	status := statusForCode(code)
	httpErr := &HTTPError{
		StatusCode: status,
		Message:    message,
		ErrorLog:   cause,
		Code:       code,
	}
	switch status {
	case http.StatusInternalServerError:
		httpErr.Message = "Internal server error"
	case http.StatusServiceUnavailable:
		httpErr.RetryAfter = contentionRetryAfter
	}
	if code == "contention" {
		httpErr.RetryAfter = contentionRetryAfter
	}
	return httpErr
}

func unexpectedError(service string, err error) *HTTPError {
	return &HTTPError{
		StatusCode: http.StatusInternalServerError,
		Message:    "Internal server error",
		ErrorLog:   fmt.Errorf("%s service: %w", service, err),
	}
}

func errorLog(message string, cause error, self error) error {
	if cause != nil {
		return fmt.Errorf("%s: %w", message, cause)
	}
	return self
}
