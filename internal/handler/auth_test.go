package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/joamik/cinema-reservation/internal/config"
	"github.com/joamik/cinema-reservation/internal/middleware"
	"github.com/joamik/cinema-reservation/internal/utils"
)

func testAuthConfig(t *testing.T) config.Config {
	t.Helper()
	hash, err := utils.HashKey("open-sesame", 4) // low cost keeps the test fast
	if err != nil {
		t.Fatalf("hash admin key: %v", err)
	}
	return config.Config{
		JWTSecret:    "test-secret",
		AdminKeyHash: hash,
		AccessTTLMin: 5,
	}
}

func TestToken(t *testing.T) {
	e := echo.New()
	h := NewAuthHandler(testAuthConfig(t))

	c, rec := postJSON(e, "/v1/auth/token", `{"admin_key":"open-sesame"}`)
	if err := h.Token(c); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("Token status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("empty access token")
	}

	// The issued token must pass the JWT and role middleware guarding
	// show creation.
	guarded := middleware.JWTAuth(h.Cfg.JWTSecret)(middleware.RequireRole(RoleAdmin)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/shows", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	rec = httptest.NewRecorder()
	if err := guarded(e.NewContext(req, rec)); err != nil {
		t.Fatalf("guarded handler: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("guarded status = %d, want %d (body %s)", rec.Code, http.StatusNoContent, rec.Body.String())
	}
}

func TestToken_WrongKey(t *testing.T) {
	e := echo.New()
	h := NewAuthHandler(testAuthConfig(t))

	c, rec := postJSON(e, "/v1/auth/token", `{"admin_key":"guess"}`)
	if err := h.Token(c); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Token status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if strings.Contains(rec.Body.String(), "access_token") {
		t.Fatal("unauthorized response leaked a token")
	}
}

func TestRequireRole_RejectsMissingToken(t *testing.T) {
	e := echo.New()
	cfg := testAuthConfig(t)

	guarded := middleware.JWTAuth(cfg.JWTSecret)(middleware.RequireRole(RoleAdmin)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	if err := guarded(e.NewContext(httptest.NewRequest(http.MethodPost, "/v1/shows", nil), rec)); err != nil {
		t.Fatalf("guarded handler: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
