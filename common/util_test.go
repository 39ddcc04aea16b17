package common

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataCompression(t *testing.T) {
	data := []byte(`{"address":"oct1","encryptedData":"abc"}`)
	compressed, err := CompressData(data)
	require.NoError(t, err)

	decompressed, err := DecompressData(compressed)
	require.NoError(t, err)
	assert.Equal(t, data, decompressed)

	_, err = DecompressData([]byte("not xz"))
	assert.Error(t, err)
}

func TestGCMEncryption(t *testing.T) {
	src := []byte("wallet_bytes")
	encrypted, err := EncryptGCM("password", src)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(encrypted, src))

	decrypted, err := DecryptGCM("password", encrypted)
	require.NoError(t, err)
	assert.Equal(t, src, decrypted)

	_, err = DecryptGCM("wrong", encrypted)
	assert.Error(t, err)

	_, err = DecryptGCM("password", []byte("short"))
	assert.Error(t, err)
}
