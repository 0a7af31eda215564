package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteClassified(t *testing.T) {
	errDenied := errors.New("forbidden")
	errMissing := errors.New("not found")
	classes := []ErrorClass{
		{Err: errDenied, Status: http.StatusForbidden},
		{Err: errMissing, Status: http.StatusNotFound},
	}

	w := httptest.NewRecorder()
	require.True(t, WriteClassified(w, fmt.Errorf("cannot manage users of c2: %w", errDenied), classes))
	assert.Equal(t, http.StatusForbidden, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "cannot manage users of c2: forbidden", body.Error)
	assert.Equal(t, CodeForbidden, body.Code)

	w = httptest.NewRecorder()
	assert.False(t, WriteClassified(w, errors.New("connection refused"), classes))
	assert.Empty(t, w.Body.String())
}

func TestWriteErrorMessage_EchoesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set(RequestIDHeader, "req-1")

	WriteErrorMessage(w, http.StatusNotFound, "user not found")

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "user not found", body.Error)
	assert.Equal(t, CodeNotFound, body.Code)
	assert.Equal(t, "req-1", body.RequestID)
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		code   string
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "m") }, http.StatusBadRequest, CodeInvalidInput},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "m") }, http.StatusUnauthorized, CodeUnauthenticated},
		{"rate limited", func(w http.ResponseWriter) { WriteErrorMessage(w, http.StatusTooManyRequests, "m") }, http.StatusTooManyRequests, CodeRateLimited},
		{"unavailable", func(w http.ResponseWriter) { WriteServiceUnavailable(w, "m") }, http.StatusServiceUnavailable, CodeUnavailable},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w, errors.New("m")) }, http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, `{"error":"m","code":"`+tt.code+`"}`, w.Body.String())
		})
	}
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteCreated(w, map[string]string{"id": "c1"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "c1")
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteNoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
