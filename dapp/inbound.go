package dapp

import (
	"net/url"
	"strings"

	"github.com/vultisig/octra-wallet/internal/types"
)

// query parameter names of the inbound contract
const (
	ParamAction     = "action"
	ParamTo         = "to"
	ParamAmount     = "amount"
	ParamMessage    = "message"
	ParamSuccessURL = "success_url"
	ParamFailureURL = "failure_url"
	ParamOrigin     = "origin"
	ParamAppName    = "app_name"

	ActionSend = "send"
)

// redirect parameter names of the outbound contract
const (
	ParamAccountID = "account_id"
	ParamPublicKey = "public_key"
	ParamTxHash    = "tx_hash"
)

// Inbound is the request descriptor built once from the wallet page query.
// At most one of Connection and Transaction is set; neither means there is nothing to mediate.
type Inbound struct {
	Connection  *types.ConnectionRequest
	Transaction *types.TransactionRequest
}

func (in Inbound) Empty() bool {
	return in.Connection == nil && in.Transaction == nil
}

// ParseInbound reads a raw query string. A query that names a request but lacks one of its
// required fields is a ProtocolViolation; the caller stays idle either way.
func ParseInbound(rawQuery string) (Inbound, error) {
	q, err := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	if err != nil {
		return Inbound{}, types.NewProtocolViolation(types.ErrMissingField, "malformed query string")
	}
	get := func(name string) string {
		return decode(q.Get(name))
	}

	successURL, failureURL, origin := get(ParamSuccessURL), get(ParamFailureURL), get(ParamOrigin)
	if get(ParamAction) == ActionSend {
		to, amount := get(ParamTo), get(ParamAmount)
		if to == "" || amount == "" || successURL == "" || failureURL == "" || origin == "" {
			return Inbound{}, types.NewProtocolViolation(types.ErrMissingField,
				"send request needs to, amount, success_url, failure_url and origin")
		}
		if err := checkRedirects(successURL, failureURL); err != nil {
			return Inbound{}, err
		}
		return Inbound{Transaction: &types.TransactionRequest{
			Action:     ActionSend,
			To:         to,
			Amount:     amount,
			Origin:     origin,
			SuccessURL: successURL,
			FailureURL: failureURL,
			AppName:    get(ParamAppName),
			Message:    get(ParamMessage),
		}}, nil
	}

	if successURL == "" && failureURL == "" && origin == "" {
		return Inbound{}, nil
	}
	if successURL == "" || failureURL == "" || origin == "" {
		return Inbound{}, types.NewProtocolViolation(types.ErrMissingField,
			"connection request needs success_url, failure_url and origin")
	}
	if err := checkRedirects(successURL, failureURL); err != nil {
		return Inbound{}, err
	}
	return Inbound{Connection: &types.ConnectionRequest{
		Origin:      origin,
		SuccessURL:  successURL,
		FailureURL:  failureURL,
		Permissions: types.ConnectionPermissions(),
		AppName:     get(ParamAppName),
	}}, nil
}

// decode undoes the extra encoding layer dApps put on values that are themselves URLs.
// Values that are not valid percent-encoding are used as they are.
func decode(v string) string {
	if !strings.Contains(v, "%") {
		return v
	}
	out, err := url.PathUnescape(v)
	if err != nil {
		return v
	}
	return out
}

func checkRedirects(targets ...string) error {
	for _, t := range targets {
		u, err := url.Parse(t)
		if err != nil || u.Scheme == "" {
			return types.NewProtocolViolation(types.ErrMissingField, "redirect url must be absolute")
		}
	}
	return nil
}

// withParams appends params to the query of target, keeping what is already there.
func withParams(target string, params map[string]string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
