package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func protected(apiKey string) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return Auth(apiKey)(next)
}

func TestAuthDisabledWithoutKey(t *testing.T) {
	rec := httptest.NewRecorder()
	protected("").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/offers", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthRejectsMissingCredential(t *testing.T) {
	rec := httptest.NewRecorder()
	protected("secret").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/offers", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestAuthRejectsWrongKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/offers", nil)
	req.Header.Set("X-API-Key", "guess")

	rec := httptest.NewRecorder()
	protected("secret").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthAcceptsBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/offers", nil)
	req.Header.Set("Authorization", "Bearer secret")

	rec := httptest.NewRecorder()
	protected("secret").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthAcceptsAPIKeyHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/offers", nil)
	req.Header.Set("X-API-Key", "secret")

	rec := httptest.NewRecorder()
	protected("secret").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
