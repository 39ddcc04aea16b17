package types

type PasswordRequest struct {
	Password string `json:"password"`
}

func (r PasswordRequest) IsValid() error {
	if r.Password == "" {
		return NewValidationError(ErrMissingField, "password is required")
	}
	return nil
}

// ApproveRequest names the wallet a pending dApp request is approved with.
type ApproveRequest struct {
	Address string `json:"address"`
}

func (r ApproveRequest) IsValid() error {
	if r.Address == "" {
		return NewValidationError(ErrMissingField, "address is required")
	}
	return nil
}

type UpdateProviderRequest struct {
	Name     string            `json:"name"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers,omitempty"`
	Priority int               `json:"priority"`
}
