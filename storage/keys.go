package storage

const (
	KeyWallets            = "wallets"
	KeyActiveWalletID     = "activeWalletId"
	KeyWalletLocked       = "isWalletLocked"
	KeyWalletPasswordHash = "walletPasswordHash"
	KeyEncryptedWallets   = "encryptedWallets"
	KeyRPCProviders       = "rpcProviders"
	KeyConnectedDApps     = "connectedDApps"
)

// AccountStateKey holds the last successful account snapshot for address.
func AccountStateKey(address string) string {
	return "accountState:" + address
}
