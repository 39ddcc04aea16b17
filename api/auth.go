package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type tokenResponse struct {
	Token string `json:"token"`
}

// RefreshToken exchanges a valid bearer token for a fresh one with the same subject.
func (s *Server) RefreshToken(c echo.Context) error {
	tokenStr, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
	if !ok || tokenStr == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Missing Authorization header"})
	}
	token, err := s.authService.RefreshToken(tokenStr)
	if err != nil {
		s.logger.Warnf("fail to refresh token, err: %v", err)
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	return c.JSON(http.StatusOK, tokenResponse{Token: token})
}
