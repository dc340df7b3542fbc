package signer

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/Se7en-Seas/boring-vault-go/internal/zero"
	"github.com/Se7en-Seas/boring-vault-go/snacl"
)

// keyFileMagic identifies an encrypted key file.
var keyFileMagic = []byte("bvk1")

// keyFileParamsSize is the length of the marshalled snacl parameters
// stored after the magic: salt, digest, and the three scrypt cost
// parameters.
const keyFileParamsSize = snacl.KeySize + sha256.Size + 3*8

// ScryptOptions holds the scrypt parameters used when deriving the key
// file's encryption key from a passphrase.
type ScryptOptions struct {
	N, R, P int
}

// DefaultScryptOptions is the default options used with scrypt.
var DefaultScryptOptions = ScryptOptions{
	N: snacl.DefaultN,
	R: snacl.DefaultR,
	P: snacl.DefaultP,
}

// FastScryptOptions are weakened scrypt options reserved for tests.
var FastScryptOptions = ScryptOptions{
	N: 16,
	R: 8,
	P: 1,
}

// WriteKeyFile encrypts the 32-byte seed with a key derived from
// passphrase and writes it to path.  The file layout is the magic,
// the marshalled scrypt parameters, and the sealed seed.  nil opts
// selects DefaultScryptOptions.
func WriteKeyFile(path string, passphrase, seed []byte, opts *ScryptOptions) error {
	if len(seed) != SeedSize {
		return fmt.Errorf("seed must be %d bytes, got %d", SeedSize,
			len(seed))
	}
	if opts == nil {
		opts = &DefaultScryptOptions
	}

	secretKey, err := snacl.NewSecretKey(&passphrase, opts.N, opts.R,
		opts.P)
	if err != nil {
		return err
	}
	defer secretKey.Zero()

	sealed, err := secretKey.Encrypt(seed)
	if err != nil {
		return err
	}

	blob := make([]byte, 0, len(keyFileMagic)+keyFileParamsSize+len(sealed))
	blob = append(blob, keyFileMagic...)
	blob = append(blob, secretKey.Marshal()...)
	blob = append(blob, sealed...)

	return os.WriteFile(path, blob, 0600)
}

// ReadKeyFile decrypts the key file at path with passphrase and returns
// a signer for the stored seed.  A wrong passphrase is reported as
// snacl.ErrInvalidPassword.
func ReadKeyFile(path string, passphrase []byte) (*LocalSigner, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(blob) < len(keyFileMagic)+keyFileParamsSize ||
		!bytes.Equal(blob[:len(keyFileMagic)], keyFileMagic) {

		return nil, fmt.Errorf("%s is not a key file", path)
	}
	blob = blob[len(keyFileMagic):]

	secretKey := snacl.SecretKey{Key: &snacl.CryptoKey{}}
	if err := secretKey.Unmarshal(blob[:keyFileParamsSize]); err != nil {
		return nil, err
	}
	defer secretKey.Zero()

	if err := secretKey.DeriveKey(&passphrase); err != nil {
		return nil, err
	}

	seed, err := secretKey.Decrypt(blob[keyFileParamsSize:])
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(seed)

	return FromSeed(seed)
}
