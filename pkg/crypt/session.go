package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Sealer encrypts records for one writer session. All records sealed by the
// same Sealer share its ephemeral key; each gets its own IV.
type Sealer struct {
	ephemeral [PublicKeySize]byte
	block     cipher.Block
	rand      io.Reader
}

// NewSealer starts a session against the server public key.
func NewSealer(server *secp256k1.PublicKey) (*Sealer, error) {
	if server == nil {
		return nil, fmt.Errorf("%w: server public key is nil", ErrInvalidKey)
	}
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	block, err := aes.NewCipher(deriveKey(priv, server))
	if err != nil {
		return nil, err
	}
	return &Sealer{
		ephemeral: EncodePublicKey(priv.PubKey()),
		block:     block,
		rand:      rand.Reader,
	}, nil
}

// EphemeralKey returns the session public key written into every frame.
func (s *Sealer) EphemeralKey() [PublicKeySize]byte { return s.ephemeral }

// Seal appends the encrypted form of plaintext to dst and returns the IV used.
func (s *Sealer) Seal(dst, plaintext []byte) ([]byte, [IVSize]byte, error) {
	var iv [IVSize]byte
	if _, err := io.ReadFull(s.rand, iv[:]); err != nil {
		return dst, iv, fmt.Errorf("failed to generate iv: %w", err)
	}
	start := len(dst)
	dst = append(dst, plaintext...)
	cipher.NewCFBEncrypter(s.block, iv[:]).XORKeyStream(dst[start:], dst[start:])
	return dst, iv, nil
}

// Opener decrypts records with the server private key. It caches the AES key
// of the most recent session since consecutive frames usually share one.
type Opener struct {
	priv    *secp256k1.PrivateKey
	lastPub [PublicKeySize]byte
	block   cipher.Block
}

// NewOpener creates an Opener for priv.
func NewOpener(priv *secp256k1.PrivateKey) *Opener {
	return &Opener{priv: priv}
}

// Open appends the decrypted form of ciphertext to dst. It fails only when the
// session public key is not a valid curve point; a wrong private key yields
// garbage, which callers detect downstream.
func (o *Opener) Open(dst, ciphertext []byte, iv [IVSize]byte, session [PublicKeySize]byte) ([]byte, error) {
	if o.block == nil || session != o.lastPub {
		pub, err := DecodePublicKey(session)
		if err != nil {
			return dst, err
		}
		block, err := aes.NewCipher(deriveKey(o.priv, pub))
		if err != nil {
			return dst, err
		}
		o.block = block
		o.lastPub = session
	}
	start := len(dst)
	dst = append(dst, ciphertext...)
	cipher.NewCFBDecrypter(o.block, iv[:]).XORKeyStream(dst[start:], dst[start:])
	return dst, nil
}
