package boringvault

import (
	"crypto/sha256"
	"encoding/hex"
)

// TagSize is the width of the layout tag prefixing every program account
// and of the method tag prefixing every instruction's data.
const TagSize = 8

// Tag is the fixed-width prefix identifying which record layout an account
// uses, or which program method an instruction invokes.
type Tag [TagSize]byte

// String returns the tag as hex for error messages and logs.
func (t Tag) String() string {
	return hex.EncodeToString(t[:])
}

// Tags follow the IDL convention of the program's framework: the first
// eight bytes of sha256 over a namespaced name.  Account records use the
// "account:" namespace with the record's type name; instructions use the
// "global:" namespace with the method's snake_case name.
func namespacedTag(namespace, name string) Tag {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var tag Tag
	copy(tag[:], sum[:TagSize])
	return tag
}

func accountTag(name string) Tag {
	return namespacedTag("account", name)
}

func methodTag(name string) Tag {
	return namespacedTag("global", name)
}

// Account record tags.
var (
	TagVaultConfig       = accountTag("VaultConfig")
	TagTellerState       = accountTag("TellerState")
	TagAssetData         = accountTag("AssetData")
	TagWithdrawRequest   = accountTag("WithdrawRequest")
	TagUserWithdrawState = accountTag("UserWithdrawState")
)

// Instruction method tags.
var (
	tagDeposit            = methodTag("deposit")
	tagRequestWithdraw    = methodTag("request_withdraw")
	tagCancelWithdraw     = methodTag("cancel_withdraw")
	tagFulfillWithdraw    = methodTag("fulfill_withdraw")
	tagUpdateExchangeRate = methodTag("update_exchange_rate")
)
