package boringvault

import (
	"github.com/Se7en-Seas/boring-vault-go/pubkey"
)

// Seed prefixes for every program derived address.  Seeds are literal and
// order-sensitive; changing either breaks compatibility with the deployed
// programs.
var (
	// Vault program seeds.
	seedVaultState      = []byte("vault-state")
	seedVaultSubAccount = []byte("vault")
	seedTeller          = []byte("teller")
	seedAssetData       = []byte("asset-data")

	// Queue program seeds.
	seedQueueState        = []byte("queue-state")
	seedUserWithdrawState = []byte("user-withdraw-state")
	seedWithdrawRequest   = []byte("withdraw-request")
)

// vaultIDSeed returns the 8 byte little-endian seed form of a vault id.
func vaultIDSeed(vaultID uint64) []byte {
	seed := make([]byte, 8)
	byteOrder.PutUint64(seed, vaultID)
	return seed
}

// nonceSeed returns the 8 byte little-endian seed form of a request nonce.
func nonceSeed(nonce uint64) []byte {
	seed := make([]byte, 8)
	byteOrder.PutUint64(seed, nonce)
	return seed
}

// VaultConfigAddress derives the vault program's root state account for a
// vault: ["vault-state", vaultID le64].
func VaultConfigAddress(d *pubkey.Deriver, program pubkey.Key, vaultID uint64) (pubkey.Key, uint8, error) {
	return d.Derive(program, seedVaultState, vaultIDSeed(vaultID))
}

// VaultSubAccountAddress derives one of a vault's token-holding
// sub-accounts: ["vault", vaultID le64, subAccount u8].  The current
// deposit and withdraw indexes live in VaultConfig and move as the program
// rotates sub-accounts, so callers resolve them with a prior read.
func VaultSubAccountAddress(d *pubkey.Deriver, program pubkey.Key, vaultID uint64, subAccount uint8) (pubkey.Key, uint8, error) {
	return d.Derive(program, seedVaultSubAccount, vaultIDSeed(vaultID),
		[]byte{subAccount})
}

// TellerAddress derives a vault's teller state account:
// ["teller", vaultID le64].
func TellerAddress(d *pubkey.Deriver, program pubkey.Key, vaultID uint64) (pubkey.Key, uint8, error) {
	return d.Derive(program, seedTeller, vaultIDSeed(vaultID))
}

// AssetDataAddress derives the per-asset configuration account:
// ["asset-data", vaultID le64, mint].
func AssetDataAddress(d *pubkey.Deriver, program pubkey.Key, vaultID uint64, mint pubkey.Key) (pubkey.Key, uint8, error) {
	return d.Derive(program, seedAssetData, vaultIDSeed(vaultID), mint[:])
}

// QueueStateAddress derives the queue program's per-vault configuration
// account: ["queue-state", vaultID le64].  The queue program reads it on
// every request and fulfillment; this library only needs its address.
func QueueStateAddress(d *pubkey.Deriver, program pubkey.Key, vaultID uint64) (pubkey.Key, uint8, error) {
	return d.Derive(program, seedQueueState, vaultIDSeed(vaultID))
}

// UserWithdrawStateAddress derives a user's request counter account:
// ["user-withdraw-state", owner].
func UserWithdrawStateAddress(d *pubkey.Deriver, program, owner pubkey.Key) (pubkey.Key, uint8, error) {
	return d.Derive(program, seedUserWithdrawState, owner[:])
}

// WithdrawRequestAddress derives the request account for one (owner, nonce)
// pair: ["withdraw-request", owner, nonce le64].
func WithdrawRequestAddress(d *pubkey.Deriver, program, owner pubkey.Key, nonce uint64) (pubkey.Key, uint8, error) {
	return d.Derive(program, seedWithdrawRequest, owner[:], nonceSeed(nonce))
}
