package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5/middleware"
)

const maxJSONBodyBytes = 1 << 20

// unavailableRetryAfter is the Retry-After hint, in seconds, sent with 503.
const unavailableRetryAfter = 5

type errorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Fields any    `json:"fields,omitempty"`
}

var kindMessages = map[string]string{
	"malformed":           "invalid token",
	"expired":             "token expired",
	"wrong_kind":          "invalid token type",
	"revoked":             "token revoked",
	"invalid_credentials": "invalid credentials",
	"not_verified":        "email not verified",
	"conflict":            "already exists",
	"unauthorized":        "not authenticated",
	"forbidden":           "forbidden",
	"not_found":           "not found",
	"unavailable":         "service temporarily unavailable",
	"internal":            "internal server error",
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrInvalidCredentials),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrNotVerified), errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorConflict):
		return http.StatusConflict
	case errors.Is(err, common.ErrorUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// fail writes err as a JSON error body. 5xx errors are logged and sent to
// Sentry with the request id attached.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := common.Kind(err)

	body := errorResponse{Error: kindMessages[kind], Kind: kind}
	var verr *validationError
	switch {
	case errors.As(err, &verr):
		body.Error = verr.msg
		body.Fields = verr.fields
	case kind == "validation":
		body.Error = err.Error()
	}

	switch status {
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer`)
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", strconv.Itoa(unavailableRetryAfter))
	}

	if status >= http.StatusInternalServerError {
		reqID := middleware.GetReqID(r.Context())
		s.logger.Error(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "status", status, "request_id", reqID, "error", err)
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("request_id", reqID)
			scope.SetTag("path", r.URL.Path)
			sentry.CaptureException(err)
		})
	}

	writeJSON(w, status, body)
}

func (s *Server) rateLimited(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests", Kind: "rate_limited"})
}

// validationError carries per-field messages from ozzo-validation.
type validationError struct {
	msg    string
	fields any
}

func (e *validationError) Error() string { return e.msg }
func (e *validationError) Unwrap() error { return common.ErrorValidation }

func invalid(fields error) error {
	return &validationError{msg: "validation failed", fields: fields}
}

func invalidf(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

// decodeJSON reads a single JSON object from the body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalidf("invalid json body: %v", err)
	}
	return nil
}
