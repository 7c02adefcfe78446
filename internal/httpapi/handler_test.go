package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	body []byte
	err  error
}

func (f fakeRenderer) Render() ([]byte, error) { return f.body, f.err }

func TestHandler_ReturnsRenderedBodyWithCorrectContentType(t *testing.T) {
	h := Handler(fakeRenderer{body: []byte("droxporter_up 1\n")})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; version=0.0.4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "droxporter_up 1\n", rec.Body.String())
}

func TestHandler_Returns500OnRenderError(t *testing.T) {
	h := Handler(fakeRenderer{err: errors.New("boom")})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBasicAuth_RejectsMissingCredentials(t *testing.T) {
	h := BasicAuth("login", "password", Handler(fakeRenderer{body: []byte("x")}))
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="droxporter"`, rec.Header().Get("WWW-Authenticate"))
}

func TestBasicAuth_AllowsValidCredentials(t *testing.T) {
	h := BasicAuth("login", "password", Handler(fakeRenderer{body: []byte("x")}))
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("login", "password")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicAuth_RejectsWrongPassword(t *testing.T) {
	h := BasicAuth("login", "password", Handler(fakeRenderer{body: []byte("x")}))
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("login", "wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
