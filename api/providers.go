package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vultisig/octra-wallet/internal/types"
)

type providerList struct {
	Providers []types.RPCProvider `json:"providers"`
	ActiveID  string              `json:"active_id"`
}

func (s *Server) ListProviders(c echo.Context) error {
	ctx := c.Request().Context()
	active, err := s.registry.Active(ctx)
	if err != nil {
		return err
	}
	providers, err := s.registry.List(ctx)
	if err != nil {
		return err
	}
	out := providerList{Providers: make([]types.RPCProvider, 0, len(providers)), ActiveID: active.ID}
	for _, p := range providers {
		out.Providers = append(out.Providers, p.Redacted())
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) AddProvider(c echo.Context) error {
	var req types.AddProviderRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	p, err := s.registry.Add(c.Request().Context(), req)
	if err != nil {
		return err
	}
	s.logger.WithField("provider", p.ID).Info("rpc provider added")
	return c.JSON(http.StatusCreated, p.Redacted())
}

func (s *Server) UpdateProvider(c echo.Context) error {
	var req types.UpdateProviderRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	err := s.registry.Update(c.Request().Context(), types.RPCProvider{
		ID:       c.Param("id"),
		Name:     req.Name,
		URL:      req.URL,
		Headers:  req.Headers,
		Priority: req.Priority,
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SetActiveProvider re-reads the registry after the write, SetActive itself never reports
// an unknown id.
func (s *Server) SetActiveProvider(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := s.registry.SetActive(ctx, id); err != nil {
		return err
	}
	active, err := s.registry.Active(ctx)
	if err != nil {
		return err
	}
	if active.ID != id {
		return types.NewValidationError(types.ErrProviderNotFound, fmt.Sprintf("provider %s not found", id))
	}
	return c.JSON(http.StatusOK, active.Redacted())
}

func (s *Server) RemoveProvider(c echo.Context) error {
	if err := s.registry.Remove(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
