// Package snacl wraps nacl secretbox encryption with scrypt passphrase
// key derivation.  Secret keys remember their derivation parameters so a
// key can be rederived from the passphrase after being zeroed.
package snacl

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"io"
	"runtime/debug"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/Se7en-Seas/boring-vault-go/internal/zero"
)

var prng = rand.Reader

// Error types and messages.
var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrMalformed       = errors.New("malformed data")
	ErrDecryptFailed   = errors.New("unable to decrypt")
)

// Various constants needed for encryption scheme.
const (
	// Overhead re-exports the secretbox overhead for convenience.
	Overhead  = secretbox.Overhead
	KeySize   = 32
	NonceSize = 24
	DefaultN  = 16384 // 2^14
	DefaultR  = 8
	DefaultP  = 1
)

// CryptoKey represents a secret key which can be used to encrypt and
// decrypt data.
type CryptoKey [KeySize]byte

// Encrypt encrypts the passed data.  The output carries a random nonce
// followed by the sealed box.
func (ck *CryptoKey) Encrypt(in []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	_, err := io.ReadFull(prng, nonce[:])
	if err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], in, &nonce, (*[KeySize]byte)(ck)), nil
}

// Decrypt decrypts the passed data.  The data must be the output of the
// Encrypt function.
func (ck *CryptoKey) Decrypt(in []byte) ([]byte, error) {
	if len(in) < NonceSize {
		return nil, ErrMalformed
	}

	var nonce [NonceSize]byte
	copy(nonce[:], in[:NonceSize])
	opened, ok := secretbox.Open(nil, in[NonceSize:], &nonce,
		(*[KeySize]byte)(ck))
	if !ok {
		return nil, ErrDecryptFailed
	}
	return opened, nil
}

// Zero clears the key so that it is no longer in memory.
func (ck *CryptoKey) Zero() {
	zero.Bytea32((*[KeySize]byte)(ck))
}

// GenerateCryptoKey generates a new cryptographically random key.
func GenerateCryptoKey() (*CryptoKey, error) {
	var key CryptoKey
	if _, err := io.ReadFull(prng, key[:]); err != nil {
		return nil, err
	}
	return &key, nil
}

// Parameters are not secret and can be stored in plain text.
type Parameters struct {
	Salt   [KeySize]byte
	Digest [sha256.Size]byte
	N      int
	R      int
	P      int
}

// marshalledParamsSize is the size of the serialized Parameters:
// salt, digest, and the three scrypt cost parameters as uint64s.
const marshalledParamsSize = KeySize + sha256.Size + 3*8

// SecretKey houses a crypto key and the parameters needed to derive it
// from a passphrase.  It should only be used in memory.
type SecretKey struct {
	Key        *CryptoKey
	Parameters Parameters
}

// deriveKey fills out the Key field.
func (sk *SecretKey) deriveKey(password *[]byte) error {
	key, err := scrypt.Key(*password, sk.Parameters.Salt[:],
		sk.Parameters.N, sk.Parameters.R, sk.Parameters.P,
		len(sk.Key))
	if err != nil {
		return err
	}
	copy(sk.Key[:], key)
	zero.Bytes(key)

	// scrypt allocates a large transient buffer.  Releasing it now keeps
	// back to back derivations from doubling the process footprint.
	debug.FreeOSMemory()

	return nil
}

// Marshal returns the Parameters field marshalled into a format suitable
// for storage.
//
// The serialized format is:
//
//	[0:32]  Salt (32 bytes)
//	[32:64] Digest (32 bytes)
//	[64:72] N (8 bytes, little endian)
//	[72:80] R (8 bytes, little endian)
//	[80:88] P (8 bytes, little endian)
func (sk *SecretKey) Marshal() []byte {
	params := &sk.Parameters

	marshalled := make([]byte, marshalledParamsSize)
	b := marshalled
	copy(b[:KeySize], params.Salt[:])
	b = b[KeySize:]
	copy(b[:sha256.Size], params.Digest[:])
	b = b[sha256.Size:]
	binary.LittleEndian.PutUint64(b[:8], uint64(params.N))
	b = b[8:]
	binary.LittleEndian.PutUint64(b[:8], uint64(params.R))
	b = b[8:]
	binary.LittleEndian.PutUint64(b[:8], uint64(params.P))

	return marshalled
}

// Unmarshal unmarshalls the parameters needed to derive the secret key
// from a passphrase into sk.
func (sk *SecretKey) Unmarshal(marshalled []byte) error {
	if sk.Key == nil {
		return errors.New("secret key is not initialized")
	}
	if len(marshalled) != marshalledParamsSize {
		return ErrMalformed
	}

	params := &sk.Parameters
	copy(params.Salt[:], marshalled[:KeySize])
	marshalled = marshalled[KeySize:]
	copy(params.Digest[:], marshalled[:sha256.Size])
	marshalled = marshalled[sha256.Size:]
	params.N = int(binary.LittleEndian.Uint64(marshalled[:8]))
	marshalled = marshalled[8:]
	params.R = int(binary.LittleEndian.Uint64(marshalled[:8]))
	marshalled = marshalled[8:]
	params.P = int(binary.LittleEndian.Uint64(marshalled[:8]))

	return nil
}

// Zero zeroes the underlying secret key while leaving the parameters
// intact.  This allows the key to be rederived quickly.
func (sk *SecretKey) Zero() {
	sk.Key.Zero()
}

// DeriveKey derives the underlying secret key and ensures it matches the
// expected digest.  This should only be called after previously calling
// the Zero function or on an initial Unmarshal.
func (sk *SecretKey) DeriveKey(password *[]byte) error {
	if err := sk.deriveKey(password); err != nil {
		return err
	}

	digest := sha256.Sum256(sk.Key[:])
	if subtle.ConstantTimeCompare(digest[:], sk.Parameters.Digest[:]) != 1 {
		return ErrInvalidPassword
	}

	return nil
}

// Encrypt encrypts in bytes and returns the sealed blob.
func (sk *SecretKey) Encrypt(in []byte) ([]byte, error) {
	return sk.Key.Encrypt(in)
}

// Decrypt takes in the sealed blob and returns its decrypted form.
func (sk *SecretKey) Decrypt(in []byte) ([]byte, error) {
	return sk.Key.Decrypt(in)
}

// NewSecretKey returns a SecretKey structure based on the passed
// parameters.
func NewSecretKey(password *[]byte, N, r, p int) (*SecretKey, error) {
	sk := SecretKey{
		Key: (*CryptoKey)(&[KeySize]byte{}),
	}
	sk.Parameters.N = N
	sk.Parameters.R = r
	sk.Parameters.P = p
	if _, err := io.ReadFull(prng, sk.Parameters.Salt[:]); err != nil {
		return nil, err
	}

	if err := sk.deriveKey(password); err != nil {
		return nil, err
	}

	digest := sha256.Sum256(sk.Key[:])
	copy(sk.Parameters.Digest[:], digest[:])

	return &sk, nil
}
