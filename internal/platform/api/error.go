package api

import (
	"errors"
	"net/http"
)

type ErrorResponse struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// Error is an error that knows how it should be rendered. Handlers translate
// domain errors into one and hand it to Fail.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func NewError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// Fail renders err. Anything that is not an *Error becomes an opaque 500 so
// internal messages never reach the client.
func Fail(w http.ResponseWriter, requestID string, err error) {
	var e *Error
	if !errors.As(err, &e) {
		Internal(w, requestID)
		return
	}
	WriteError(w, e.Status, e.Code, e.Message, requestID, e.Details)
}

func WriteError(w http.ResponseWriter, status int, code, message, requestID string, details map[string]any) {
	WriteJSON(w, status, ErrorResponse{Error: APIError{Code: code, Message: message, Details: details, RequestID: requestID}})
}

func Unauthorized(w http.ResponseWriter, message, requestID string) {
	WriteError(w, http.StatusUnauthorized, "UNAUTHENTICATED", message, requestID, nil)
}

func Forbidden(w http.ResponseWriter, message, requestID string) {
	WriteError(w, http.StatusForbidden, "FORBIDDEN", message, requestID, nil)
}

func TooManyRequests(w http.ResponseWriter, requestID string) {
	WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", requestID, nil)
}

func Internal(w http.ResponseWriter, requestID string) {
	WriteError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error", requestID, nil)
}
