package cfgutil

import (
	"strings"

	"github.com/Se7en-Seas/boring-vault-go/boringvault"
)

// ShareAmountFlag holds a raw share amount and implements the
// flags.Marshaler and Unmarshaler interfaces so it can be used as a
// config struct field.  Values parse in whole-share units at the share
// mint's fixed decimal scale.
type ShareAmountFlag struct {
	Shares uint64
}

// NewShareAmountFlag creates a ShareAmountFlag with a default raw amount.
func NewShareAmountFlag(defaultValue uint64) *ShareAmountFlag {
	return &ShareAmountFlag{defaultValue}
}

// MarshalFlag satisifes the flags.Marshaler interface.
func (a *ShareAmountFlag) MarshalFlag() (string, error) {
	return boringvault.FormatShares(a.Shares), nil
}

// UnmarshalFlag satisifes the flags.Unmarshaler interface.
func (a *ShareAmountFlag) UnmarshalFlag(value string) error {
	value = strings.TrimSuffix(value, " shares")
	shares, err := boringvault.ParseShares(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	a.Shares = shares
	return nil
}
