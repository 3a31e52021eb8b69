package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"McpGateway/internal/config"
)

func newMiddleware(enabled bool, keys ...string) *AuthMiddleware {
	return NewAuthMiddleware(&config.AuthConfig{
		Enabled:    enabled,
		HeaderName: "X-API-Key",
		APIKeys:    keys,
	})
}

func doRequest(t *testing.T, am *AuthMiddleware, decorate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	handler := am.Middleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	if decorate != nil {
		decorate(req)
	}
	recorder := httptest.NewRecorder()
	handler(recorder, req)
	return recorder
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	am := newMiddleware(false)
	recorder := doRequest(t, am, nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestMiddlewareRejectsMissingKey(t *testing.T) {
	am := newMiddleware(true, "valid-key")
	recorder := doRequest(t, am, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestMiddlewareAcceptsHeaderKey(t *testing.T) {
	am := newMiddleware(true, "valid-key")
	recorder := doRequest(t, am, func(r *http.Request) {
		r.Header.Set("X-API-Key", "valid-key")
	})
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestMiddlewareAcceptsBearerToken(t *testing.T) {
	am := newMiddleware(true, "valid-key")
	recorder := doRequest(t, am, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer valid-key")
	})
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestMiddlewareAcceptsQueryParam(t *testing.T) {
	am := newMiddleware(true, "valid-key")

	handler := am.Middleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/metrics?api_key=valid-key", nil)
	recorder := httptest.NewRecorder()
	handler(recorder, req)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestMiddlewareRejectsWrongKey(t *testing.T) {
	am := newMiddleware(true, "valid-key")
	recorder := doRequest(t, am, func(r *http.Request) {
		r.Header.Set("X-API-Key", "wrong-key")
	})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestValidateAPIKey(t *testing.T) {
	am := newMiddleware(true, "a", "b")

	assert.True(t, am.ValidateAPIKey("a"))
	assert.True(t, am.ValidateAPIKey("b"))
	assert.False(t, am.ValidateAPIKey(""))
	assert.False(t, am.ValidateAPIKey("c"))

	disabled := newMiddleware(false)
	assert.True(t, disabled.ValidateAPIKey(""))
}

func TestGetHeaderNameDefault(t *testing.T) {
	am := NewAuthMiddleware(&config.AuthConfig{Enabled: true})
	assert.Equal(t, "X-API-Key", am.GetHeaderName())
}
