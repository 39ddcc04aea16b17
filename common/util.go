package common

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize       = 16
	pbkdf2Rounds   = 100_000
	derivedKeySize = 32
)

// CompressData xz-compresses data.
func CompressData(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("fail to create xz writer, err: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("fail to compress data, err: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("fail to close xz writer, err: %w", err)
	}
	return buf.Bytes(), nil
}

func DecompressData(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("fail to create xz reader, err: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("fail to decompress data, err: %w", err)
	}
	return out, nil
}

// EncryptGCM seals data with a key derived from password.
// Layout: salt | nonce | ciphertext.
func EncryptGCM(password string, data []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("fail to generate salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("fail to generate nonce: %w", err)
	}
	out := append(salt, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

func DecryptGCM(password string, data []byte) ([]byte, error) {
	if len(data) < saltSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	gcm, err := newGCM(password, data[:saltSize])
	if err != nil {
		return nil, err
	}
	data = data[saltSize:]
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("fail to decrypt, err: %w", err)
	}
	return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Rounds, derivedKeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fail to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fail to create gcm: %w", err)
	}
	return gcm, nil
}
