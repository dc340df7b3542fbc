package boringvault

import (
	"encoding/binary"
	"fmt"

	"github.com/Se7en-Seas/boring-vault-go/pubkey"
)

// All account fields are serialized little-endian, matching the program's
// own state encoding.
var byteOrder = binary.LittleEndian

// This package makes assumptions that the width of a pubkey.Key is always
// 32 bytes.  If this is ever changed, offsets have to be rewritten.  Use a
// compile-time assertion that this assumption holds true.
var _ [32]byte = pubkey.Key{}

// Record is implemented by every decoded account type.
type Record interface {
	// Tag returns the layout tag identifying the record type.
	Tag() Tag
}

// layout describes one record type for the tag dispatch table: the type
// name for error messages, the exact serialized size tag included, and the
// decode function, which may assume both the tag and length checks already
// passed.
type layout struct {
	name   string
	size   int
	decode func(data []byte) Record
}

// layouts is the dispatch table mapping each account tag to its layout.
var layouts = map[Tag]layout{
	TagVaultConfig:       {"VaultConfig", vaultConfigSize, decodeVaultConfig},
	TagTellerState:       {"TellerState", tellerStateSize, decodeTellerState},
	TagAssetData:         {"AssetData", assetDataSize, decodeAssetData},
	TagWithdrawRequest:   {"WithdrawRequest", withdrawRequestSize, decodeWithdrawRequest},
	TagUserWithdrawState: {"UserWithdrawState", userWithdrawStateSize, decodeUserWithdrawState},
}

// extractTag performs an unchecked slice of the tag prefix.  Callers must
// have verified len(data) >= TagSize.
func extractTag(data []byte) Tag {
	var tag Tag
	copy(tag[:], data[:TagSize])
	return tag
}

// Decode decodes account data fetched from addr into whichever record type
// its tag names.  Unknown tags and short data produce typed errors; the
// input buffer is never mutated or retained.
func Decode(addr pubkey.Key, data []byte) (Record, error) {
	if len(data) < TagSize {
		str := fmt.Sprintf("%d bytes is too short to hold a layout tag "+
			"(want at least %d)", len(data), TagSize)
		return nil, decodeError(ErrTruncatedAccount, addr, str)
	}
	tag := extractTag(data)
	l, ok := layouts[tag]
	if !ok {
		str := fmt.Sprintf("tag %s matches no known record layout", tag)
		return nil, decodeError(ErrUnknownTag, addr, str)
	}
	if len(data) < l.size {
		str := fmt.Sprintf("%s: %d bytes is shorter than the layout "+
			"minimum %d", l.name, len(data), l.size)
		return nil, decodeError(ErrTruncatedAccount, addr, str)
	}
	return l.decode(data), nil
}

// decodeExpected decodes account data that must carry the want tag.  The
// tag is checked before the full length so a wrong record type is reported
// as such rather than as a size mismatch.
func decodeExpected(addr pubkey.Key, data []byte, want Tag) (Record, error) {
	if len(data) < TagSize {
		str := fmt.Sprintf("%d bytes is too short to hold a layout tag "+
			"(want at least %d)", len(data), TagSize)
		return nil, decodeError(ErrTruncatedAccount, addr, str)
	}
	got := extractTag(data)
	l := layouts[want]
	if got != want {
		str := fmt.Sprintf("tag %s does not match %s (%s)", got, l.name, want)
		return nil, decodeError(ErrWrongAccountType, addr, str)
	}
	if len(data) < l.size {
		str := fmt.Sprintf("%s: %d bytes is shorter than the layout "+
			"minimum %d", l.name, len(data), l.size)
		return nil, decodeError(ErrTruncatedAccount, addr, str)
	}
	return l.decode(data), nil
}

// VaultConfig is the vault program's root state record for one vault.
type VaultConfig struct {
	VaultID            uint64
	Authority          pubkey.Key
	PendingAuthority   pubkey.Key
	ShareMint          pubkey.Key
	DepositSubAccount  uint8
	WithdrawSubAccount uint8
	Paused             bool
}

// The VaultConfig value layout, after the 8 byte tag:
//
//	[0:8]     vault id (uint64)
//	[8:40]    authority (32 bytes)
//	[40:72]   pending authority (32 bytes)
//	[72:104]  share mint (32 bytes)
//	[104]     deposit sub-account index (uint8)
//	[105]     withdraw sub-account index (uint8)
//	[106]     paused (bool)
const vaultConfigSize = TagSize + 107

// Tag returns the layout tag identifying the record type.
func (*VaultConfig) Tag() Tag { return TagVaultConfig }

func decodeVaultConfig(data []byte) Record {
	v := data[TagSize:]
	rec := &VaultConfig{
		VaultID:            byteOrder.Uint64(v[0:8]),
		DepositSubAccount:  v[104],
		WithdrawSubAccount: v[105],
		Paused:             v[106] != 0,
	}
	copy(rec.Authority[:], v[8:40])
	copy(rec.PendingAuthority[:], v[40:72])
	copy(rec.ShareMint[:], v[72:104])
	return rec
}

// Encode serializes the record in its account layout.
func (r *VaultConfig) Encode() []byte {
	data := make([]byte, vaultConfigSize)
	copy(data, TagVaultConfig[:])
	v := data[TagSize:]
	byteOrder.PutUint64(v[0:8], r.VaultID)
	copy(v[8:40], r.Authority[:])
	copy(v[40:72], r.PendingAuthority[:])
	copy(v[72:104], r.ShareMint[:])
	v[104] = r.DepositSubAccount
	v[105] = r.WithdrawSubAccount
	if r.Paused {
		v[106] = 1
	}
	return data
}

// DecodeVaultConfig decodes a VaultConfig record.
func DecodeVaultConfig(addr pubkey.Key, data []byte) (*VaultConfig, error) {
	rec, err := decodeExpected(addr, data, TagVaultConfig)
	if err != nil {
		return nil, err
	}
	return rec.(*VaultConfig), nil
}

// TellerState carries the vault's accounting state: the base asset, the
// current exchange rate between shares and that asset, and the fee
// configuration.
type TellerState struct {
	BaseAsset                 pubkey.Key
	BaseAssetDecimals         uint8
	ExchangeRate              uint64
	ExchangeRateHighWaterMark uint64
	FeesOwedInBaseAsset       uint64
	LastUpdateTimestamp       uint64
	PlatformFeeBps            uint16
	PerformanceFeeBps         uint16
}

// The TellerState value layout, after the 8 byte tag:
//
//	[0:32]   base asset mint (32 bytes)
//	[32]     base asset decimals (uint8)
//	[33:41]  exchange rate (uint64)
//	[41:49]  exchange rate high water mark (uint64)
//	[49:57]  fees owed in base asset (uint64)
//	[57:65]  last update timestamp (uint64)
//	[65:67]  platform fee (uint16, basis points)
//	[67:69]  performance fee (uint16, basis points)
const tellerStateSize = TagSize + 69

// Tag returns the layout tag identifying the record type.
func (*TellerState) Tag() Tag { return TagTellerState }

func decodeTellerState(data []byte) Record {
	v := data[TagSize:]
	rec := &TellerState{
		BaseAssetDecimals:         v[32],
		ExchangeRate:              byteOrder.Uint64(v[33:41]),
		ExchangeRateHighWaterMark: byteOrder.Uint64(v[41:49]),
		FeesOwedInBaseAsset:       byteOrder.Uint64(v[49:57]),
		LastUpdateTimestamp:       byteOrder.Uint64(v[57:65]),
		PlatformFeeBps:            byteOrder.Uint16(v[65:67]),
		PerformanceFeeBps:         byteOrder.Uint16(v[67:69]),
	}
	copy(rec.BaseAsset[:], v[0:32])
	return rec
}

// Encode serializes the record in its account layout.
func (r *TellerState) Encode() []byte {
	data := make([]byte, tellerStateSize)
	copy(data, TagTellerState[:])
	v := data[TagSize:]
	copy(v[0:32], r.BaseAsset[:])
	v[32] = r.BaseAssetDecimals
	byteOrder.PutUint64(v[33:41], r.ExchangeRate)
	byteOrder.PutUint64(v[41:49], r.ExchangeRateHighWaterMark)
	byteOrder.PutUint64(v[49:57], r.FeesOwedInBaseAsset)
	byteOrder.PutUint64(v[57:65], r.LastUpdateTimestamp)
	byteOrder.PutUint16(v[65:67], r.PlatformFeeBps)
	byteOrder.PutUint16(v[67:69], r.PerformanceFeeBps)
	return data
}

// DecodeTellerState decodes a TellerState record.
func DecodeTellerState(addr pubkey.Key, data []byte) (*TellerState, error) {
	rec, err := decodeExpected(addr, data, TagTellerState)
	if err != nil {
		return nil, err
	}
	return rec.(*TellerState), nil
}

// AssetData describes one asset the vault accepts: its price feed against
// the base asset, deposit and withdraw permissions, and the oracle
// freshness bounds the program enforces when the feed is consumed.
type AssetData struct {
	PriceFeed           pubkey.Key
	Decimals            uint8
	AllowDeposits       bool
	AllowWithdraws      bool
	SharePremiumBps     uint16
	IsPeggedToBaseAsset bool
	MaxStaleness        uint64
	MinSamples          uint32
}

// The AssetData value layout, after the 8 byte tag:
//
//	[0:32]   price feed (32 bytes)
//	[32]     asset decimals (uint8)
//	[33]     allow deposits (bool)
//	[34]     allow withdraws (bool)
//	[35:37]  share premium (uint16, basis points)
//	[37]     pegged to base asset (bool)
//	[38:46]  max staleness (uint64, seconds)
//	[46:50]  min samples (uint32)
const assetDataSize = TagSize + 50

// Tag returns the layout tag identifying the record type.
func (*AssetData) Tag() Tag { return TagAssetData }

func decodeAssetData(data []byte) Record {
	v := data[TagSize:]
	rec := &AssetData{
		Decimals:            v[32],
		AllowDeposits:       v[33] != 0,
		AllowWithdraws:      v[34] != 0,
		SharePremiumBps:     byteOrder.Uint16(v[35:37]),
		IsPeggedToBaseAsset: v[37] != 0,
		MaxStaleness:        byteOrder.Uint64(v[38:46]),
		MinSamples:          byteOrder.Uint32(v[46:50]),
	}
	copy(rec.PriceFeed[:], v[0:32])
	return rec
}

// Encode serializes the record in its account layout.
func (r *AssetData) Encode() []byte {
	data := make([]byte, assetDataSize)
	copy(data, TagAssetData[:])
	v := data[TagSize:]
	copy(v[0:32], r.PriceFeed[:])
	v[32] = r.Decimals
	if r.AllowDeposits {
		v[33] = 1
	}
	if r.AllowWithdraws {
		v[34] = 1
	}
	byteOrder.PutUint16(v[35:37], r.SharePremiumBps)
	if r.IsPeggedToBaseAsset {
		v[37] = 1
	}
	byteOrder.PutUint64(v[38:46], r.MaxStaleness)
	byteOrder.PutUint32(v[46:50], r.MinSamples)
	return data
}

// DecodeAssetData decodes an AssetData record.
func DecodeAssetData(addr pubkey.Key, data []byte) (*AssetData, error) {
	rec, err := decodeExpected(addr, data, TagAssetData)
	if err != nil {
		return nil, err
	}
	return rec.(*AssetData), nil
}

// WithdrawRequest is one queued withdrawal.  The account is closed by the
// queue program on fulfillment or cancellation, so its absence is a normal
// terminal state rather than an error.
type WithdrawRequest struct {
	VaultID           uint64
	AssetOut          pubkey.Key
	ShareAmount       uint64
	AssetAmount       uint64
	CreationTime      uint64
	SecondsToMaturity uint32
	SecondsToDeadline uint32
	User              pubkey.Key
	Nonce             uint64
}

// The WithdrawRequest value layout, after the 8 byte tag:
//
//	[0:8]     vault id (uint64)
//	[8:40]    asset out mint (32 bytes)
//	[40:48]   share amount (uint64)
//	[48:56]   asset amount (uint64)
//	[56:64]   creation time (uint64, unix seconds)
//	[64:68]   seconds to maturity (uint32)
//	[68:72]   seconds to deadline (uint32)
//	[72:104]  user (32 bytes)
//	[104:112] nonce (uint64)
const withdrawRequestSize = TagSize + 112

// Tag returns the layout tag identifying the record type.
func (*WithdrawRequest) Tag() Tag { return TagWithdrawRequest }

func decodeWithdrawRequest(data []byte) Record {
	v := data[TagSize:]
	rec := &WithdrawRequest{
		VaultID:           byteOrder.Uint64(v[0:8]),
		ShareAmount:       byteOrder.Uint64(v[40:48]),
		AssetAmount:       byteOrder.Uint64(v[48:56]),
		CreationTime:      byteOrder.Uint64(v[56:64]),
		SecondsToMaturity: byteOrder.Uint32(v[64:68]),
		SecondsToDeadline: byteOrder.Uint32(v[68:72]),
		Nonce:             byteOrder.Uint64(v[104:112]),
	}
	copy(rec.AssetOut[:], v[8:40])
	copy(rec.User[:], v[72:104])
	return rec
}

// Encode serializes the record in its account layout.
func (r *WithdrawRequest) Encode() []byte {
	data := make([]byte, withdrawRequestSize)
	copy(data, TagWithdrawRequest[:])
	v := data[TagSize:]
	byteOrder.PutUint64(v[0:8], r.VaultID)
	copy(v[8:40], r.AssetOut[:])
	byteOrder.PutUint64(v[40:48], r.ShareAmount)
	byteOrder.PutUint64(v[48:56], r.AssetAmount)
	byteOrder.PutUint64(v[56:64], r.CreationTime)
	byteOrder.PutUint32(v[64:68], r.SecondsToMaturity)
	byteOrder.PutUint32(v[68:72], r.SecondsToDeadline)
	copy(v[72:104], r.User[:])
	byteOrder.PutUint64(v[104:112], r.Nonce)
	return data
}

// DecodeWithdrawRequest decodes a WithdrawRequest record.
func DecodeWithdrawRequest(addr pubkey.Key, data []byte) (*WithdrawRequest, error) {
	rec, err := decodeExpected(addr, data, TagWithdrawRequest)
	if err != nil {
		return nil, err
	}
	return rec.(*WithdrawRequest), nil
}

// UserWithdrawState holds a user's request counter.  Nonces are assigned
// contiguously from zero and LastNonce is the only stored counter; request
// accounts themselves may disappear without it ever decreasing.  An absent
// record means the user has never queued a request.
type UserWithdrawState struct {
	LastNonce uint64
}

// The UserWithdrawState value layout, after the 8 byte tag:
//
//	[0:8]  last nonce (uint64)
const userWithdrawStateSize = TagSize + 8

// Tag returns the layout tag identifying the record type.
func (*UserWithdrawState) Tag() Tag { return TagUserWithdrawState }

func decodeUserWithdrawState(data []byte) Record {
	v := data[TagSize:]
	return &UserWithdrawState{LastNonce: byteOrder.Uint64(v[0:8])}
}

// Encode serializes the record in its account layout.
func (r *UserWithdrawState) Encode() []byte {
	data := make([]byte, userWithdrawStateSize)
	copy(data, TagUserWithdrawState[:])
	byteOrder.PutUint64(data[TagSize:], r.LastNonce)
	return data
}

// DecodeUserWithdrawState decodes a UserWithdrawState record.
func DecodeUserWithdrawState(addr pubkey.Key, data []byte) (*UserWithdrawState, error) {
	rec, err := decodeExpected(addr, data, TagUserWithdrawState)
	if err != nil {
		return nil, err
	}
	return rec.(*UserWithdrawState), nil
}
