package types

// Wallet is identified by Address, unique across the persisted wallet list.
type Wallet struct {
	Address    string `json:"address"`
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
	Mnemonic   string `json:"mnemonic,omitempty"`
}

// Public strips key material before a wallet leaves the process.
func (w Wallet) Public() PublicWallet {
	return PublicWallet{Address: w.Address, PublicKey: w.PublicKey}
}

type PublicWallet struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey,omitempty"`
}

// FindWallet returns the wallet with address, or nil.
func FindWallet(wallets []Wallet, address string) *Wallet {
	for i := range wallets {
		if wallets[i].Address == address {
			w := wallets[i]
			return &w
		}
	}
	return nil
}

// ResolveActive picks the wallet named by activeID, falling back to the first wallet.
func ResolveActive(wallets []Wallet, activeID string) *Wallet {
	if len(wallets) == 0 {
		return nil
	}
	if w := FindWallet(wallets, activeID); w != nil {
		return w
	}
	w := wallets[0]
	return &w
}

// EncryptedWallet is a backup entry under the encryptedWallets key.
// EncryptedData is opaque to the core.
type EncryptedWallet struct {
	Address       string `json:"address"`
	EncryptedData string `json:"encryptedData"`
	CreatedAt     int64  `json:"createdAt"`
}

type ImportWalletRequest struct {
	PrivateKey string `json:"private_key"`
	Mnemonic   string `json:"mnemonic,omitempty"`
}

func (r ImportWalletRequest) IsValid() error {
	if r.PrivateKey == "" {
		return NewValidationError(ErrMissingField, "private_key is required")
	}
	return nil
}
