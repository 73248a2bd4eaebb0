package errors

import (
	"context"
	"encoding/json"
	"net/http"
)

// HTTPError is the body of an error envelope.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the JSON error envelope returned by the server.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

type requestIDKey struct{}

// ContextWithRequestID stores a request id for envelopes and logs.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RespondWithError classifies err and writes its envelope.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	ae := FromError(err)
	if ae == nil {
		ae = New(CodeInternal, "unknown error")
	}
	WriteError(w, ae.HTTPStatus(), HTTPErrorResponse{Error: HTTPError{
		Code:      ae.Code,
		Message:   ae.Message,
		RequestID: RequestIDFromContext(r.Context()),
		Details:   ae.Details,
	}})
}

// WriteError writes body with status as JSON.
func WriteError(w http.ResponseWriter, status int, body HTTPErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
