package handler

import (
	"net/http" // HTTP status codes and primitives
	"strings"  // string manipulation utilities

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/joamik/cinema-reservation/internal/config" // app configuration
	"github.com/joamik/cinema-reservation/internal/utils"  // helper functions (hashing, token issuing)
)

// RoleAdmin marks tokens allowed to create shows.
const RoleAdmin = "ADMIN"

// AuthHandler exchanges the operator's admin key for a short-lived access
// token. Only the bcrypt hash of the key is configured on the server.
type AuthHandler struct {
	Cfg config.Config
}

func NewAuthHandler(cfg config.Config) *AuthHandler {
	return &AuthHandler{Cfg: cfg}
}

// Token handles POST /v1/auth/token. The body carries the plaintext admin
// key; on a match against ADMIN_KEY_HASH a signed JWT with the ADMIN role
// is returned.
func (h *AuthHandler) Token(c echo.Context) error {
	var body struct {
		AdminKey string `json:"admin_key"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	key := strings.TrimSpace(body.AdminKey)
	if key == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "admin_key is required"})
	}
	if !utils.VerifyKey(h.Cfg.AdminKeyHash, key) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid admin key"})
	}
	tok, err := utils.NewAccessToken(h.Cfg.JWTSecret, "admin", RoleAdmin, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to issue token"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"access_token": tok.Token,
		"expires_at":   tok.Exp,
	})
}
