package crypt

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.Len(t, kp.PrivateKey, 2*PrivateKeySize)
	assert.Len(t, kp.PublicKey, 2*PublicKeySize)

	priv, err := ParsePrivateKey(kp.PrivateKey)
	require.NoError(t, err)
	pub, err := ParsePublicKey(kp.PublicKey)
	require.NoError(t, err)
	assert.True(t, priv.PubKey().IsEqual(pub))

	prefixed, err := ParsePublicKey("04" + kp.PublicKey)
	require.NoError(t, err)
	assert.True(t, prefixed.IsEqual(pub))
}

func TestParseKeys_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		parse func(string) error
		input string
	}{
		{"public not hex", func(s string) error { _, err := ParsePublicKey(s); return err }, "zz"},
		{"public short", func(s string) error { _, err := ParsePublicKey(s); return err }, "abcd"},
		{"public off curve", func(s string) error { _, err := ParsePublicKey(s); return err }, hex.EncodeToString(bytes.Repeat([]byte{1}, PublicKeySize))},
		{"private short", func(s string) error { _, err := ParsePrivateKey(s); return err }, "0102"},
		{"private zero", func(s string) error { _, err := ParsePrivateKey(s); return err }, hex.EncodeToString(make([]byte, PrivateKeySize))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.parse(tt.input), ErrInvalidKey)
		})
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	pub, err := ParsePublicKey(kp.PublicKey)
	require.NoError(t, err)
	priv, err := ParsePrivateKey(kp.PrivateKey)
	require.NoError(t, err)

	sealer, err := NewSealer(pub)
	require.NoError(t, err)
	opener := NewOpener(priv)

	var ivs [][IVSize]byte
	for _, msg := range []string{"a", "hello", string(bytes.Repeat([]byte("x"), 1000))} {
		sealed, iv, err := sealer.Seal(nil, []byte(msg))
		require.NoError(t, err)
		assert.Len(t, sealed, len(msg))
		assert.NotEqual(t, []byte(msg), sealed)
		ivs = append(ivs, iv)

		opened, err := opener.Open(nil, sealed, iv, sealer.EphemeralKey())
		require.NoError(t, err)
		assert.Equal(t, msg, string(opened))
	}
	assert.NotEqual(t, ivs[0], ivs[1])
}

func TestSealer_FreshSessionKeys(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	pub, err := ParsePublicKey(kp.PublicKey)
	require.NoError(t, err)

	a, err := NewSealer(pub)
	require.NoError(t, err)
	b, err := NewSealer(pub)
	require.NoError(t, err)
	assert.NotEqual(t, a.EphemeralKey(), b.EphemeralKey())

	_, err = NewSealer(nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestOpener_WrongKeyProducesGarbage(t *testing.T) {
	right, err := GenerateKeyPair()
	require.NoError(t, err)
	wrong, err := GenerateKeyPair()
	require.NoError(t, err)

	pub, err := ParsePublicKey(right.PublicKey)
	require.NoError(t, err)
	wrongPriv, err := ParsePrivateKey(wrong.PrivateKey)
	require.NoError(t, err)

	sealer, err := NewSealer(pub)
	require.NoError(t, err)
	sealed, iv, err := sealer.Seal(nil, []byte("top secret payload"))
	require.NoError(t, err)

	opened, err := NewOpener(wrongPriv).Open(nil, sealed, iv, sealer.EphemeralKey())
	require.NoError(t, err)
	assert.NotEqual(t, "top secret payload", string(opened))
}

func TestOpener_RejectsBadSessionKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	priv, err := ParsePrivateKey(kp.PrivateKey)
	require.NoError(t, err)

	var bogus [PublicKeySize]byte
	_, err = NewOpener(priv).Open(nil, []byte("x"), [IVSize]byte{}, bogus)
	assert.ErrorIs(t, err, ErrInvalidKey)
}
