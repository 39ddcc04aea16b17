package types

const (
	PermissionViewAddress = "view_address"
	PermissionViewBalance = "view_balance"
	PermissionCallMethods = "call_methods"
)

// ConnectionPermissions is the fixed grant of every connection. Nothing is negotiated.
func ConnectionPermissions() []string {
	return []string{PermissionViewAddress, PermissionViewBalance, PermissionCallMethods}
}

type ConnectionRequest struct {
	Origin      string   `json:"origin"`
	SuccessURL  string   `json:"successUrl"`
	FailureURL  string   `json:"failureUrl"`
	Permissions []string `json:"permissions"`
	AppName     string   `json:"appName,omitempty"`
}

type TransactionRequest struct {
	Action     string `json:"action"`
	To         string `json:"to"`
	Amount     string `json:"amount"`
	Origin     string `json:"origin"`
	SuccessURL string `json:"successUrl"`
	FailureURL string `json:"failureUrl"`
	AppName    string `json:"appName,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ConnectedDApp is keyed by Origin.
type ConnectedDApp struct {
	Origin          string   `json:"origin"`
	AppName         string   `json:"appName"`
	ConnectedAt     int64    `json:"connectedAt"`
	Permissions     []string `json:"permissions"`
	SelectedAddress string   `json:"selectedAddress"`
}
