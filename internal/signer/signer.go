package signer

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/tyler-smith/go-bip39"

	"github.com/vultisig/octra-wallet/internal/types"
)

// AddressPrefix starts every Octra address.
const AddressPrefix = "oct"

// Signer is the opaque signing capability handed to the transaction builder.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
	PublicKey() []byte
}

type Ed25519Signer struct {
	key ed25519.PrivateKey
}

// NewEd25519 accepts a base64 encoded 32 byte seed or 64 byte private key.
func NewEd25519(privateKeyB64 string) (*Ed25519Signer, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(privateKeyB64))
	if err != nil {
		return nil, fmt.Errorf("fail to decode private key, err: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return &Ed25519Signer{key: ed25519.NewKeyFromSeed(raw)}, nil
	case ed25519.PrivateKeySize:
		return &Ed25519Signer{key: ed25519.PrivateKey(raw)}, nil
	default:
		return nil, fmt.Errorf("invalid private key length %d", len(raw))
	}
}

func (s *Ed25519Signer) Sign(payload []byte) ([]byte, error) {
	return ed25519.Sign(s.key, payload), nil
}

func (s *Ed25519Signer) PublicKey() []byte {
	return []byte(s.key.Public().(ed25519.PublicKey))
}

// Seed returns the 32 byte seed in base64, the form wallets are stored in.
func (s *Ed25519Signer) Seed() string {
	return base64.StdEncoding.EncodeToString(s.key.Seed())
}

// Address derives the account address of a public key.
func Address(publicKey []byte) string {
	sum := sha256.Sum256(publicKey)
	return AddressPrefix + base58.Encode(sum[:])
}

func ValidateAddress(address string) error {
	if !strings.HasPrefix(address, AddressPrefix) {
		return types.NewValidationError(types.ErrInvalidAddress, fmt.Sprintf("address %q must start with %s", address, AddressPrefix))
	}
	decoded := base58.Decode(strings.TrimPrefix(address, AddressPrefix))
	if len(decoded) != sha256.Size {
		return types.NewValidationError(types.ErrInvalidAddress, fmt.Sprintf("address %q is malformed", address))
	}
	return nil
}

// WalletFromPrivateKey builds the wallet record for an existing key.
func WalletFromPrivateKey(privateKeyB64 string) (types.Wallet, error) {
	s, err := NewEd25519(privateKeyB64)
	if err != nil {
		return types.Wallet{}, err
	}
	return types.Wallet{
		Address:    Address(s.PublicKey()),
		PublicKey:  base64.StdEncoding.EncodeToString(s.PublicKey()),
		PrivateKey: s.Seed(),
	}, nil
}

// GenerateWallet creates a fresh mnemonic and derives the key from the first 32 bytes of its seed.
func GenerateWallet() (types.Wallet, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return types.Wallet{}, fmt.Errorf("fail to generate entropy, err: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return types.Wallet{}, fmt.Errorf("fail to generate mnemonic, err: %w", err)
	}
	return WalletFromMnemonic(mnemonic)
}

func WalletFromMnemonic(mnemonic string) (types.Wallet, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return types.Wallet{}, fmt.Errorf("invalid mnemonic, err: %w", err)
	}
	w, err := WalletFromPrivateKey(base64.StdEncoding.EncodeToString(seed[:ed25519.SeedSize]))
	if err != nil {
		return types.Wallet{}, err
	}
	w.Mnemonic = mnemonic
	return w, nil
}
