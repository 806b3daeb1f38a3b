package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestDecryptWithWrongPasswordFails(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptRejectsShortKey(t *testing.T) {
	_, err := EncryptKey("abcd", "hunter2")
	assert.Error(t, err)
}

func TestLoadKeyPrefersRawKey(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestLoadKeyWithoutSourceFails(t *testing.T) {
	_, err := LoadKey(KeyConfig{})
	assert.Error(t, err)
}

func TestLoadECDSAParsesKey(t *testing.T) {
	key, err := LoadECDSA(KeyConfig{RawPrivateKey: testKeyHex})
	require.NoError(t, err)
	assert.NotNil(t, key.PublicKey.X)
}
