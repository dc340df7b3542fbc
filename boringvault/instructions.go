package boringvault

import (
	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/Se7en-Seas/boring-vault-go/wire"
)

// Instruction data is the 8 byte method tag followed by the arguments as
// little-endian fixed-width fields, in declaration order.

func appendUint64(data []byte, v uint64) []byte {
	var b [8]byte
	byteOrder.PutUint64(b[:], v)
	return append(data, b[:]...)
}

// DepositParams carries the resolved accounts and arguments for a deposit.
// The vault addresses are derivable from VaultID but are passed in resolved
// form so building stays pure; DepositVault must be the sub-account at the
// index VaultConfig currently designates for deposits.
type DepositParams struct {
	VaultID           uint64
	Depositor         pubkey.Key
	VaultConfig       pubkey.Key
	TellerState       pubkey.Key
	DepositVault      pubkey.Key
	AssetData         pubkey.Key
	DepositMint       pubkey.Key
	PriceFeed         pubkey.Key
	DepositorAssetATA pubkey.Key
	VaultAssetATA     pubkey.Key
	ShareMint         pubkey.Key
	DepositorShareATA pubkey.Key

	DepositAmount uint64
	MinMintAmount uint64
}

// NewDepositInstruction builds the vault program's deposit call: move
// DepositAmount of the asset from the depositor into the deposit
// sub-account and mint at least MinMintAmount shares back.
func NewDepositInstruction(program pubkey.Key, p DepositParams) wire.Instruction {
	data := make([]byte, 0, TagSize+24)
	data = append(data, tagDeposit[:]...)
	data = appendUint64(data, p.VaultID)
	data = appendUint64(data, p.DepositAmount)
	data = appendUint64(data, p.MinMintAmount)

	return wire.Instruction{
		ProgramID: program,
		Accounts: []wire.AccountMeta{
			wire.SignerMeta(p.Depositor),
			wire.Meta(p.VaultConfig),
			wire.Meta(p.TellerState),
			wire.WritableMeta(p.DepositVault),
			wire.Meta(p.AssetData),
			wire.Meta(p.DepositMint),
			wire.Meta(p.PriceFeed),
			wire.WritableMeta(p.DepositorAssetATA),
			wire.WritableMeta(p.VaultAssetATA),
			wire.WritableMeta(p.ShareMint),
			wire.WritableMeta(p.DepositorShareATA),
			wire.Meta(pubkey.TokenProgramID),
			wire.Meta(pubkey.SystemProgramID),
		},
		Data: data,
	}
}

// RequestWithdrawParams carries the resolved accounts and arguments for
// queueing a withdrawal.  WithdrawRequest must be derived with the nonce
// following the owner's current counter.
type RequestWithdrawParams struct {
	VaultID           uint64
	Owner             pubkey.Key
	QueueState        pubkey.Key
	UserWithdrawState pubkey.Key
	WithdrawRequest   pubkey.Key
	AssetData         pubkey.Key
	AssetOutMint      pubkey.Key
	PriceFeed         pubkey.Key
	ShareMint         pubkey.Key
	OwnerShareATA     pubkey.Key
	QueueShareATA     pubkey.Key

	ShareAmount uint64
}

// NewRequestWithdrawInstruction builds the queue program's request call:
// move ShareAmount shares into the queue's custody and create the request
// account recording the amount owed, its maturity, and its deadline.
func NewRequestWithdrawInstruction(program pubkey.Key, p RequestWithdrawParams) wire.Instruction {
	data := make([]byte, 0, TagSize+16)
	data = append(data, tagRequestWithdraw[:]...)
	data = appendUint64(data, p.VaultID)
	data = appendUint64(data, p.ShareAmount)

	return wire.Instruction{
		ProgramID: program,
		Accounts: []wire.AccountMeta{
			wire.SignerMeta(p.Owner),
			wire.Meta(p.QueueState),
			wire.WritableMeta(p.UserWithdrawState),
			wire.WritableMeta(p.WithdrawRequest),
			wire.Meta(p.AssetData),
			wire.Meta(p.AssetOutMint),
			wire.Meta(p.PriceFeed),
			wire.Meta(p.ShareMint),
			wire.WritableMeta(p.OwnerShareATA),
			wire.WritableMeta(p.QueueShareATA),
			wire.Meta(pubkey.TokenProgramID),
			wire.Meta(pubkey.SystemProgramID),
		},
		Data: data,
	}
}

// CancelWithdrawParams carries the resolved accounts for cancelling a
// queued request before it is fulfilled.
type CancelWithdrawParams struct {
	Owner           pubkey.Key
	WithdrawRequest pubkey.Key
	ShareMint       pubkey.Key
	QueueShareATA   pubkey.Key
	OwnerShareATA   pubkey.Key
}

// NewCancelWithdrawInstruction builds the queue program's cancel call: the
// request account is closed, its rent returned to the owner, and the queued
// shares handed back.  The request is identified entirely by its account,
// so the instruction carries no arguments.
func NewCancelWithdrawInstruction(program pubkey.Key, p CancelWithdrawParams) wire.Instruction {
	return wire.Instruction{
		ProgramID: program,
		Accounts: []wire.AccountMeta{
			wire.SignerMeta(p.Owner),
			wire.WritableMeta(p.WithdrawRequest),
			wire.Meta(p.ShareMint),
			wire.WritableMeta(p.QueueShareATA),
			wire.WritableMeta(p.OwnerShareATA),
			wire.Meta(pubkey.TokenProgramID),
		},
		Data: append([]byte(nil), tagCancelWithdraw[:]...),
	}
}

// FulfillWithdrawParams carries the resolved accounts for fulfilling a
// matured request.  Any party may act as the solver; the user receives the
// assets and the closed request's rent regardless.
type FulfillWithdrawParams struct {
	Solver          pubkey.Key
	User            pubkey.Key
	QueueState      pubkey.Key
	WithdrawRequest pubkey.Key
	VaultConfig     pubkey.Key
	TellerState     pubkey.Key
	WithdrawVault   pubkey.Key
	AssetData       pubkey.Key
	AssetOutMint    pubkey.Key
	PriceFeed       pubkey.Key
	UserAssetATA    pubkey.Key
	VaultAssetATA   pubkey.Key
	ShareMint       pubkey.Key
	QueueShareATA   pubkey.Key
}

// NewFulfillWithdrawInstruction builds the queue program's fulfill call:
// assets move from the withdraw sub-account to the user and the queued
// shares are burned.  WithdrawVault must be the sub-account at the index
// VaultConfig currently designates for withdrawals.
func NewFulfillWithdrawInstruction(program pubkey.Key, p FulfillWithdrawParams) wire.Instruction {
	return wire.Instruction{
		ProgramID: program,
		Accounts: []wire.AccountMeta{
			wire.SignerMeta(p.Solver),
			wire.WritableMeta(p.User),
			wire.Meta(p.QueueState),
			wire.WritableMeta(p.WithdrawRequest),
			wire.Meta(p.VaultConfig),
			wire.Meta(p.TellerState),
			wire.WritableMeta(p.WithdrawVault),
			wire.Meta(p.AssetData),
			wire.Meta(p.AssetOutMint),
			wire.Meta(p.PriceFeed),
			wire.WritableMeta(p.UserAssetATA),
			wire.WritableMeta(p.VaultAssetATA),
			wire.WritableMeta(p.ShareMint),
			wire.WritableMeta(p.QueueShareATA),
			wire.Meta(pubkey.TokenProgramID),
		},
		Data: append([]byte(nil), tagFulfillWithdraw[:]...),
	}
}

// UpdateExchangeRateParams carries the resolved accounts and arguments for
// the authority's rate update.
type UpdateExchangeRateParams struct {
	VaultID     uint64
	Authority   pubkey.Key
	VaultConfig pubkey.Key
	TellerState pubkey.Key

	NewRate uint64
}

// NewUpdateExchangeRateInstruction builds the vault program's rate update
// call.  Only the configured authority may sign it.
func NewUpdateExchangeRateInstruction(program pubkey.Key, p UpdateExchangeRateParams) wire.Instruction {
	data := make([]byte, 0, TagSize+16)
	data = append(data, tagUpdateExchangeRate[:]...)
	data = appendUint64(data, p.VaultID)
	data = appendUint64(data, p.NewRate)

	return wire.Instruction{
		ProgramID: program,
		Accounts: []wire.AccountMeta{
			wire.SignerMeta(p.Authority),
			wire.Meta(p.VaultConfig),
			wire.WritableMeta(p.TellerState),
		},
		Data: data,
	}
}
