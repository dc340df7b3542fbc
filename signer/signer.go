// Package signer provides local ed25519 transaction signing and an
// encrypted on-disk key file.  Key material is encrypted with a
// passphrase-derived snacl secret key and zeroed from memory when a
// signer is closed.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/Se7en-Seas/boring-vault-go/internal/zero"
	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/Se7en-Seas/boring-vault-go/wire"
)

// SeedSize is the size of the private seed backing a signing key.
const SeedSize = ed25519.SeedSize

// ErrSignerClosed is returned when signing with a signer whose key
// material has already been zeroed.
var ErrSignerClosed = errors.New("signer is closed")

// LocalSigner signs messages with an in-memory ed25519 private key.
//
// A LocalSigner is safe for concurrent signing, but Zero must not be
// called concurrently with Sign.
type LocalSigner struct {
	priv ed25519.PrivateKey
	key  pubkey.Key
}

// New returns a signer over the passed private key.
func New(priv ed25519.PrivateKey) (*LocalSigner, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d",
			ed25519.PrivateKeySize, len(priv))
	}
	key, err := pubkey.FromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &LocalSigner{priv: priv, key: key}, nil
}

// FromSeed returns a signer for the key deterministically expanded from
// the passed 32-byte seed.  The seed is copied; callers retain ownership
// of the passed slice.
func FromSeed(seed []byte) (*LocalSigner, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d",
			SeedSize, len(seed))
	}
	return New(ed25519.NewKeyFromSeed(seed))
}

// Generate returns a signer with a fresh cryptographically random key.
func Generate() (*LocalSigner, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return New(priv)
}

// Key returns the public key the signer signs for.
func (s *LocalSigner) Key() pubkey.Key {
	return s.key
}

// Sign signs message with the signer's private key.
func (s *LocalSigner) Sign(message []byte) (wire.Signature, error) {
	var sig wire.Signature
	if s.priv == nil {
		return sig, ErrSignerClosed
	}
	copy(sig[:], ed25519.Sign(s.priv, message))
	return sig, nil
}

// Zero clears the private key from memory.  The signer is unusable
// afterwards.
func (s *LocalSigner) Zero() {
	if s.priv == nil {
		return
	}
	zero.Bytes(s.priv)
	s.priv = nil
}
