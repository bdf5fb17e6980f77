package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	middlewarePkg "github.com/zhouzirui/travel-agent/backend/internal/middleware"
	"github.com/zhouzirui/travel-agent/backend/internal/service/session"
	travelService "github.com/zhouzirui/travel-agent/backend/internal/service/travel"
)

func TestRouterHealthz(t *testing.T) {
	svc := travelService.NewService(nil, session.NewMemoryStore(time.Hour), travelService.Config{})
	router := NewRouter(svc, middlewarePkg.SessionCookie{Name: "sid"})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
	assert.Empty(t, resp.Result().Cookies())
}

func TestRouterIssuesSessionCookieOnPage(t *testing.T) {
	svc := travelService.NewService(nil, session.NewMemoryStore(time.Hour), travelService.Config{})
	router := NewRouter(svc, middlewarePkg.SessionCookie{Name: "sid"})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	cookies := resp.Result().Cookies()
	if assert.Len(t, cookies, 1) {
		assert.Equal(t, "sid", cookies[0].Name)
	}
}
