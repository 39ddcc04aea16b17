package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vultisig/octra-wallet/internal/types"
)

// accountResponse always carries a view. Error is set when the view is a degraded fallback.
type accountResponse struct {
	Account types.AccountView `json:"account"`
	Error   *errorResponse    `json:"error,omitempty"`
}

func (s *Server) GetAccount(c echo.Context) error {
	ctx := c.Request().Context()
	w, err := s.wallets.Find(ctx, c.Param("address"))
	if err != nil {
		return err
	}
	view, err := s.accounts.Refresh(ctx, w)
	out := accountResponse{Account: view}
	if err != nil {
		e := newErrorResponse(err)
		out.Error = &e
	}
	return c.JSON(http.StatusOK, out)
}

type sendResponse struct {
	types.SubmitResult
	Fee string `json:"fee"`
}

type sendFailure struct {
	errorResponse
	Result types.SubmitResult `json:"result"`
}

// Send runs one submission. Failures are reported and never retried.
func (s *Server) Send(c echo.Context) error {
	ctx := c.Request().Context()
	var req types.SendRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("fail to parse request, err: %w", err)
	}
	var w types.Wallet
	var err error
	if req.From == "" {
		w, err = s.wallets.Active(ctx)
		req.From = w.Address
	} else {
		w, err = s.wallets.Find(ctx, req.From)
	}
	if err != nil {
		return err
	}
	if err := req.IsValid(); err != nil {
		return err
	}
	amount, err := types.ParseAmount(req.Amount)
	if err != nil {
		return types.NewValidationError(types.ErrInvalidAmount, err.Error())
	}

	result, err := s.pipeline.Submit(ctx, w, req.To, amount, req.Message)
	if err != nil {
		return c.JSON(errorStatus(err), sendFailure{errorResponse: newErrorResponse(err), Result: result})
	}
	return c.JSON(http.StatusOK, sendResponse{SubmitResult: result, Fee: feeOf(amount)})
}
