package api

import "strconv"

type HTTPError struct {
	StatusCode int
	Message    string
	ErrorLog   error
	// Code is the machine-readable service error code, when there is one.
	Code string
	// RetryAfter asks the client to wait this many seconds before retrying.
	RetryAfter int
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) RetryAfterHeader() string {
	return strconv.Itoa(e.RetryAfter)
}

type ApiError struct {
	Error string `json:"message"`
	Code  string `json:"code,omitempty"`
}
