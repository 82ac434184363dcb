package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(t *testing.T, origins []string, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	h := CORS(origins)(okHandler())

	req := httptest.NewRequest(method, "/api/markets", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	rec := corsRequest(t, []string{"https://app.dexlens.io"}, http.MethodGet, "https://app.dexlens.io")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.dexlens.io", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Values("Vary"), "Origin")
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	rec := corsRequest(t, []string{"https://app.dexlens.io"}, http.MethodGet, "https://evil.example")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSEmptyListAllowsAll(t *testing.T) {
	rec := corsRequest(t, nil, http.MethodGet, "https://anything.example")
	assert.Equal(t, "https://anything.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardEntryAllowsAll(t *testing.T) {
	rec := corsRequest(t, []string{"*"}, http.MethodGet, "https://anything.example")
	assert.Equal(t, "https://anything.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	rec := corsRequest(t, []string{"https://app.dexlens.io"}, http.MethodOptions, "https://app.dexlens.io")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}
