// Package crypt implements the per-session key agreement and stream cipher
// used by encrypted frames.
//
// A writer holds only the server public key. For each session it generates
// an ephemeral secp256k1 key pair, derives a shared secret with the server
// key (ECDH), and uses the first 16 bytes of the secret's x coordinate as an
// AES-128 key. Every record is encrypted in CFB mode with a fresh random IV.
// Frames carry the IV and the ephemeral public key, so anyone holding the
// server private key can derive the same AES key later.
package crypt

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	// PublicKeySize is the x||y encoding of a curve point.
	PublicKeySize = 64
	// PrivateKeySize is the scalar length.
	PrivateKeySize = 32
	// KeySize is the AES-128 key length.
	KeySize = 16
	// IVSize is the AES block size.
	IVSize = 16
)

// ErrInvalidKey is returned for malformed or off-curve key material.
var ErrInvalidKey = errors.New("invalid key")

// ParsePublicKey decodes a hex x||y public key. A leading 04 prefix is
// accepted.
func ParsePublicKey(s string) (*secp256k1.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: public key is not hex: %v", ErrInvalidKey, err)
	}
	switch len(raw) {
	case PublicKeySize:
		raw = append([]byte{0x04}, raw...)
	case PublicKeySize + 1:
	default:
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrInvalidKey, PublicKeySize, len(raw))
	}
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pub, nil
}

// ParsePrivateKey decodes a hex private key scalar.
func ParsePrivateKey(s string) (*secp256k1.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: private key is not hex: %v", ErrInvalidKey, err)
	}
	if len(raw) != PrivateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrInvalidKey, PrivateKeySize, len(raw))
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	if priv.Key.IsZero() {
		return nil, fmt.Errorf("%w: private key is zero", ErrInvalidKey)
	}
	return priv, nil
}

// EncodePublicKey returns the 64-byte x||y form of pub.
func EncodePublicKey(pub *secp256k1.PublicKey) [PublicKeySize]byte {
	var out [PublicKeySize]byte
	copy(out[:], pub.SerializeUncompressed()[1:])
	return out
}

// DecodePublicKey parses the 64-byte x||y form carried in frames.
func DecodePublicKey(b [PublicKeySize]byte) (*secp256k1.PublicKey, error) {
	raw := make([]byte, 0, PublicKeySize+1)
	raw = append(raw, 0x04)
	raw = append(raw, b[:]...)
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pub, nil
}

// KeyPair is a hex-encoded server key pair.
type KeyPair struct {
	PrivateKey string `json:"private_key" yaml:"private_key"`
	PublicKey  string `json:"public_key" yaml:"public_key"`
}

// GenerateKeyPair creates a server key pair. The public key goes into writer
// configuration; the private key stays with whoever reads the archives.
func GenerateKeyPair() (KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate key: %w", err)
	}
	pub := EncodePublicKey(priv.PubKey())
	return KeyPair{
		PrivateKey: hex.EncodeToString(priv.Serialize()),
		PublicKey:  hex.EncodeToString(pub[:]),
	}, nil
}

func deriveKey(priv *secp256k1.PrivateKey, pub *secp256k1.PublicKey) []byte {
	secret := secp256k1.GenerateSharedSecret(priv, pub)
	return secret[:KeySize]
}
