package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vultisig/octra-wallet/internal/types"
)

type walletList struct {
	Wallets []types.PublicWallet `json:"wallets"`
	Active  string               `json:"active,omitempty"`
}

type generatedWallet struct {
	types.PublicWallet
	// Mnemonic is returned once, at generation.
	Mnemonic string `json:"mnemonic"`
}

func publicWallets(wallets []types.Wallet) []types.PublicWallet {
	out := make([]types.PublicWallet, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, w.Public())
	}
	return out
}

func (s *Server) ListWallets(c echo.Context) error {
	ctx := c.Request().Context()
	wallets, err := s.wallets.List(ctx)
	if err != nil {
		return err
	}
	out := walletList{Wallets: publicWallets(wallets)}
	if len(wallets) > 0 {
		active, err := s.wallets.Active(ctx)
		if err != nil {
			return err
		}
		out.Active = active.Address
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) ImportWallet(c echo.Context) error {
	var req types.ImportWalletRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	w, err := s.wallets.Import(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, w.Public())
}

func (s *Server) GenerateWallet(c echo.Context) error {
	w, err := s.wallets.Generate(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, generatedWallet{PublicWallet: w.Public(), Mnemonic: w.Mnemonic})
}

func (s *Server) SwitchWallet(c echo.Context) error {
	if err := s.wallets.Switch(c.Request().Context(), c.Param("address")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) RemoveWallet(c echo.Context) error {
	address := c.Param("address")
	if err := s.wallets.Remove(c.Request().Context(), address); err != nil {
		return err
	}
	s.pipeline.Forget(address)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) BackupWallet(c echo.Context) error {
	address := c.Param("address")
	if _, err := s.wallets.Find(c.Request().Context(), address); err != nil {
		return err
	}
	if err := s.backups.Upload(c.Request().Context(), address); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) RestoreWallet(c echo.Context) error {
	ew, err := s.backups.Restore(c.Request().Context(), c.Param("address"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"address": ew.Address, "created_at": ew.CreatedAt})
}

func (s *Server) SetPassword(c echo.Context) error {
	var req types.PasswordRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	if err := req.IsValid(); err != nil {
		return err
	}
	if err := s.lock.SetPassword(c.Request().Context(), req.Password); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) Lock(c echo.Context) error {
	if err := s.lock.Lock(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) Unlock(c echo.Context) error {
	var req types.PasswordRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	if err := req.IsValid(); err != nil {
		return err
	}
	wallets, err := s.lock.Unlock(c.Request().Context(), req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, walletList{Wallets: publicWallets(wallets)})
}
