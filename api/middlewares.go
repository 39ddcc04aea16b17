package api

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/internal/types"
)

func (s *Server) statsdMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		duration := time.Since(start).Milliseconds()

		_ = s.sdClient.Incr("http.requests", []string{"path:" + c.Path()}, 1)
		_ = s.sdClient.Timing("http.response_time", time.Duration(duration)*time.Millisecond, []string{"path:" + c.Path()}, 1)
		_ = s.sdClient.Incr("http.status."+fmt.Sprint(c.Response().Status), []string{"path:" + c.Path(), "method:" + c.Request().Method}, 1)

		return err
	}
}

func (s *Server) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Missing Authorization header"})
		}
		tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}
		claims, err := s.authService.ValidateToken(tokenStr)
		if err != nil {
			s.logger.Warnf("fail to validate token, err: %v", err)
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}
		c.Set("subject", claims.Subject)
		return next(c)
	}
}

// originMiddleware refuses browser requests made on behalf of another site. Requests without
// an Origin header (cli, same-origin navigation) pass.
func (s *Server) originMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		origin := req.Header.Get(echo.HeaderOrigin)
		if origin == "" {
			if req.Header.Get("Sec-Fetch-Site") == "cross-site" {
				return s.refuseOrigin(c, "cross-site")
			}
			return next(c)
		}
		if s.originAllowed(origin, req.Host) {
			return next(c)
		}
		return s.refuseOrigin(c, origin)
	}
}

func (s *Server) originAllowed(origin, host string) bool {
	if slices.Contains(s.cfg.Server.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host != "" && strings.EqualFold(u.Host, host)
}

func (s *Server) refuseOrigin(c echo.Context, origin string) error {
	s.logger.WithFields(logrus.Fields{
		"origin": origin,
		"path":   c.Path(),
	}).Warn("cross-origin request refused")
	return c.JSON(http.StatusForbidden, map[string]string{"error": "cross-origin request refused"})
}

// unlockedMiddleware refuses requests that need wallet material while the wallet is locked.
func (s *Server) unlockedMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		locked, err := s.lock.IsLocked(c.Request().Context())
		if err != nil {
			return fmt.Errorf("fail to read lock state, err: %w", err)
		}
		if locked {
			return types.NewValidationError(types.ErrWalletLocked, "wallet is locked")
		}
		return next(c)
	}
}
