package types

import "net/url"

// RPCProvider is a configured RPC endpoint. Exactly one provider in the registry is active.
type RPCProvider struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	Priority  int               `json:"priority"`
	IsActive  bool              `json:"isActive"`
	CreatedAt int64             `json:"createdAt"`
}

type AddProviderRequest struct {
	Name     string            `json:"name"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers,omitempty"`
	Priority int               `json:"priority"`
}

func (r AddProviderRequest) IsValid() error {
	if r.Name == "" {
		return NewValidationError(ErrMissingField, "name is required")
	}
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewValidationError(ErrMissingField, "url must be an absolute http(s) url")
	}
	return nil
}

// Redacted hides header values, they usually carry credentials.
func (p RPCProvider) Redacted() RPCProvider {
	out := p
	if len(p.Headers) > 0 {
		out.Headers = make(map[string]string, len(p.Headers))
		for k := range p.Headers {
			out.Headers[k] = "***"
		}
	}
	return out
}
