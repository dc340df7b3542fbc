package pubkey

import (
	"bytes"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/btcutil/base58"
)

// KeySize is the width of every account address on the wire.  All addresses,
// literal or derived, are exactly this many bytes.
const KeySize = 32

// Key is a 32-byte account address.  It is used both for ed25519 public keys
// (addresses a private key can sign for) and for program derived addresses
// (addresses that intentionally have no corresponding private key).
type Key [KeySize]byte

// Zero is the all-zero key.  It doubles as the system program id, which is
// the base58 string of 32 zero bytes.
var Zero Key

// FromBytes returns the key represented by b.  The slice must be exactly
// KeySize bytes.
func FromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, fmt.Errorf("invalid key length %d, want %d", len(b), KeySize)
	}
	copy(k[:], b)
	return k, nil
}

// FromBase58 parses a base58-encoded key.
func FromBase58(s string) (Key, error) {
	var k Key
	decoded := base58.Decode(s)
	if len(decoded) != KeySize {
		return k, fmt.Errorf("invalid base58 key %q: decoded to %d bytes, want %d",
			s, len(decoded), KeySize)
	}
	copy(k[:], decoded)
	return k, nil
}

// MustFromBase58 parses a base58-encoded key and panics if it is malformed.
// It is intended for package-level initialization of well-known addresses.
func MustFromBase58(s string) Key {
	k, err := FromBase58(s)
	if err != nil {
		panic(err)
	}
	return k
}

// String returns the base58 form of the key.
func (k Key) String() string {
	return base58.Encode(k[:])
}

// Bytes returns a copy of the raw key bytes.
func (k Key) Bytes() []byte {
	b := make([]byte, KeySize)
	copy(b, k[:])
	return b
}

// IsZero reports whether the key is all zeroes.
func (k Key) IsZero() bool {
	return k == Zero
}

// Equal reports whether two keys are the same address.
func (k Key) Equal(other Key) bool {
	return bytes.Equal(k[:], other[:])
}

// IsOnCurve reports whether the key is a valid point on the ed25519 curve,
// meaning a private key could exist for it.  Derived addresses must fail this
// test; see CreateProgramAddress.
func (k Key) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(k[:])
	return err == nil
}

// Well-known program and sysvar ids shared by every deployment.
var (
	// SystemProgramID is the native system program (account creation and
	// lamport transfers).
	SystemProgramID = MustFromBase58("11111111111111111111111111111111")

	// TokenProgramID is the SPL token program.
	TokenProgramID = MustFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// AssociatedTokenProgramID owns the canonical per-(wallet, mint) token
	// account addresses.
	AssociatedTokenProgramID = MustFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

	// AddressTableProgramID owns on-chain address lookup tables used by the
	// versioned transaction format.
	AddressTableProgramID = MustFromBase58("AddressLookupTab1e1111111111111111111111111")

	// ComputeBudgetProgramID adjusts per-transaction compute limits and
	// priority fees.
	ComputeBudgetProgramID = MustFromBase58("ComputeBudget111111111111111111111111111111")

	// SysvarRentID is the rent sysvar account required by account-creating
	// instructions.
	SysvarRentID = MustFromBase58("SysvarRent111111111111111111111111111111111")

	// SysvarClockID is the clock sysvar account.
	SysvarClockID = MustFromBase58("SysvarC1ock11111111111111111111111111111111")
)
