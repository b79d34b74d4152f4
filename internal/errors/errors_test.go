package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mullenkamp/nz-allo-usage-tools/internal/shared/testutil"
)

func TestPipelineErrorKinds(t *testing.T) {
	cause := errors.New("connection reset")
	up := NewUpstream("usage_store", "fetch W1", cause)
	wrapped := fmt.Errorf("run: %w", up)

	assert.True(t, IsUpstream(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "[upstream] usage_store: fetch W1: connection reset", up.Error())

	v := NewValidation("request", "unknown dataset %q", "rain").WithContext("dataset", "rain")
	assert.True(t, IsValidation(v))
	assert.Equal(t, "rain", v.Context["dataset"])
	assert.False(t, IsValidation(errors.New("plain")))
}

func TestErrorToProblem(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"validation", NewValidation("request", "bad frequency"), http.StatusBadRequest, TypeValidation},
		{"wrapped upstream", fmt.Errorf("catalog: %w", NewUpstream("permit_source", "load", errors.New("s3"))), http.StatusBadGateway, TypeUpstream},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, TypeTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, TypeInternal},
	}

	h := NewErrorHandler(nil, false)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/timeseries", nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := h.ErrorToProblem(tt.err, req)
			assert.Equal(t, tt.wantStatus, p.Status)
			assert.Equal(t, tt.wantType, p.Type)
			assert.Equal(t, "/api/v1/timeseries", p.Instance)
		})
	}
}

func TestHandleErrorWritesProblemJSON(t *testing.T) {
	logger, buf := testutil.NewTestLogger(t)
	h := NewErrorHandler(logger, false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/timeseries?freq=X", nil)
	h.HandleError(rec, req, NewValidation("request", "unsupported frequency %q", "X"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, TypeValidation, body["type"])
	assert.Equal(t, `unsupported frequency "X"`, body["detail"])
	assert.Equal(t, "request", body["component"])
	assert.True(t, buf.ContainsMessage("request failed"))
}

func TestHandleErrorNil(t *testing.T) {
	rec := httptest.NewRecorder()
	NewErrorHandler(nil, false).HandleError(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	assert.Empty(t, rec.Body.String())
}

func TestMiddlewareRecoversPanic(t *testing.T) {
	logger, buf := testutil.NewTestLogger(t)
	h := NewErrorHandler(logger, true)
	mw := NewErrorMiddleware(h, logger)

	handler := mw.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "kaboom", body["panic"])
	assert.True(t, buf.ContainsMessage("panic recovered"))
	assert.True(t, buf.ContainsMessage("http request"))
}

func TestRateLimited(t *testing.T) {
	rec := httptest.NewRecorder()
	NewErrorHandler(nil, false).RateLimited(rec, httptest.NewRequest(http.MethodGet, "/", nil), 2)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}
