package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/rqlens/internal/errors"
	"github.com/3leaps/rqlens/pkg/rq"
)

func TestSetHTTPErrorResponder(t *testing.T) {
	t.Cleanup(ResetHTTPErrorResponder)

	var captured error
	SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		captured = err
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	respondWithError(rec, httptest.NewRequest(http.MethodGet, "/", nil), assert.AnError)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, assert.AnError, captured)
}

func TestDefaultResponderClassifies(t *testing.T) {
	tests := []struct {
		name   string
		reset  func()
		err    error
		status int
		code   string
	}{
		{"nil restores default", func() { SetHTTPErrorResponder(nil) }, rq.Wrap("GetJob", "rq:job:x", rq.ErrNotFound), http.StatusNotFound, apperrors.CodeNotFound},
		{"reset restores default", ResetHTTPErrorResponder, rq.Wrap("Ping", "", rq.ErrServiceUnavailable), http.StatusServiceUnavailable, apperrors.CodeServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
				w.WriteHeader(http.StatusTeapot)
			})
			tt.reset()

			rec := httptest.NewRecorder()
			respondWithError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			require.Equal(t, tt.status, rec.Code)

			var body apperrors.HTTPErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}
