package tasks

const (
	QUEUE_NAME         = "walletd_queue"
	TypeAccountRefresh = "account:refresh"
)

// AccountRefreshPayload asks a worker to re-read balance, nonce and history for Address.
type AccountRefreshPayload struct {
	Address string `json:"address"`
}
