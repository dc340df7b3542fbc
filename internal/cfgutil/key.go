package cfgutil

import (
	"github.com/Se7en-Seas/boring-vault-go/pubkey"
)

// KeyFlag embeds a pubkey.Key and implements the flags.Marshaler and
// Unmarshaler interfaces so base58 addresses can be used as config
// struct fields.  A zero key marshals to the empty string rather than
// the base58 rendering of 32 zero bytes.
type KeyFlag struct {
	pubkey.Key
}

// NewKeyFlag creates a KeyFlag with a default key.
func NewKeyFlag(defaultValue pubkey.Key) *KeyFlag {
	return &KeyFlag{defaultValue}
}

// MarshalFlag satisifes the flags.Marshaler interface.
func (k *KeyFlag) MarshalFlag() (string, error) {
	if k.Key.IsZero() {
		return "", nil
	}
	return k.Key.String(), nil
}

// UnmarshalFlag satisifes the flags.Unmarshaler interface.
func (k *KeyFlag) UnmarshalFlag(value string) error {
	if value == "" {
		k.Key = pubkey.Key{}
		return nil
	}
	key, err := pubkey.FromBase58(value)
	if err != nil {
		return err
	}
	k.Key = key
	return nil
}
