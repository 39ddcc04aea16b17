package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/labstack/echo/v4"

	"github.com/vultisig/octra-wallet/dapp"
	"github.com/vultisig/octra-wallet/internal/types"
	"github.com/vultisig/octra-wallet/service"
)

// sessionNavigator drops the session from the cache when the handshake resolves, so a replayed
// approve finds nothing to act on.
type sessionNavigator struct {
	sessions *ttlcache.Cache[string, *dapp.Session]
	id       string
}

func (n sessionNavigator) ClearQuery() {
	n.sessions.Delete(n.id)
}

// Redirect is a no-op here, the handler answers with the target as a 303.
func (n sessionNavigator) Redirect(string) {}

type dappRequestResponse struct {
	SessionID   string                    `json:"session_id,omitempty"`
	State       string                    `json:"state"`
	Origin      string                    `json:"origin,omitempty"`
	Connection  *types.ConnectionRequest  `json:"connection,omitempty"`
	Transaction *types.TransactionRequest `json:"transaction,omitempty"`
	Fee         string                    `json:"fee,omitempty"`
	Preselected string                    `json:"preselected,omitempty"`
	Wallets     []types.PublicWallet      `json:"wallets"`
}

// OpenDAppRequest parses the inbound query once and parks the pending session in the
// ttl cache. A malformed request leaves nothing pending.
func (s *Server) OpenDAppRequest(c echo.Context) error {
	ctx := c.Request().Context()
	in, err := dapp.ParseInbound(c.QueryString())
	if err != nil {
		return err
	}
	wallets, err := s.wallets.List(ctx)
	if err != nil {
		return err
	}
	out := dappRequestResponse{State: dapp.Idle.String(), Wallets: publicWallets(wallets)}
	if in.Empty() {
		return c.JSON(http.StatusOK, out)
	}

	id := uuid.NewString()
	session, err := s.protocol.Open(ctx, in, sessionNavigator{sessions: s.sessions, id: id})
	if err != nil {
		return err
	}
	s.sessions.Set(id, session, ttlcache.DefaultTTL)

	out.SessionID = id
	out.State = session.State().String()
	out.Origin = session.Origin()
	out.Connection = session.Connection()
	out.Transaction = session.Transaction()
	out.Preselected = session.Preselected()
	if out.Transaction != nil {
		if amount, err := types.ParseAmount(out.Transaction.Amount); err == nil {
			out.Fee = feeOf(amount)
		}
	}
	s.incCounter("dapp.request.opened", []string{"state:" + out.State})
	return c.JSON(http.StatusOK, out)
}

func (s *Server) session(c echo.Context) (*dapp.Session, error) {
	item := s.sessions.Get(c.Param("session"))
	if item == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no pending request for this session")
	}
	return item.Value(), nil
}

// ApproveDAppRequest answers 303 to the redirect target. A failed submission is returned as an
// error and the session stays pending for a retry or an explicit reject.
func (s *Server) ApproveDAppRequest(c echo.Context) error {
	ctx := c.Request().Context()
	var req types.ApproveRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	if err := req.IsValid(); err != nil {
		return err
	}
	session, err := s.session(c)
	if err != nil {
		return err
	}
	w, err := s.wallets.Find(ctx, req.Address)
	if err != nil {
		return err
	}
	target, err := session.Approve(ctx, w)
	if err != nil {
		return err
	}
	s.incCounter("dapp.request.approved", nil)
	return c.Redirect(http.StatusSeeOther, target)
}

func (s *Server) RejectDAppRequest(c echo.Context) error {
	session, err := s.session(c)
	if err != nil {
		return err
	}
	target, err := session.Reject(c.Request().Context())
	if err != nil {
		return err
	}
	s.incCounter("dapp.request.rejected", nil)
	return c.Redirect(http.StatusSeeOther, target)
}

func (s *Server) ListDApps(c echo.Context) error {
	list, err := s.connections.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) DisconnectDApp(c echo.Context) error {
	origin := c.QueryParam("origin")
	if origin == "" {
		return types.NewValidationError(types.ErrMissingField, "origin is required")
	}
	removed, err := s.connections.Disconnect(c.Request().Context(), origin)
	if err != nil {
		return err
	}
	if !removed {
		return c.NoContent(http.StatusNotFound)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) incCounter(name string, tags []string) {
	if err := s.sdClient.Count(name, 1, tags, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}
}

func feeOf(amount types.Amount) string {
	return service.Fee(amount).String()
}
