package boringvault

import (
	"bytes"
	"testing"

	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/Se7en-Seas/boring-vault-go/wire"
)

func TestMethodTagsDistinct(t *testing.T) {
	tags := []Tag{
		tagDeposit, tagRequestWithdraw, tagCancelWithdraw,
		tagFulfillWithdraw, tagUpdateExchangeRate,
	}
	seen := make(map[Tag]struct{})
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			t.Fatalf("duplicate method tag %s", tag)
		}
		seen[tag] = struct{}{}
	}
}

func TestDepositInstruction(t *testing.T) {
	p := DepositParams{
		VaultID:           7,
		Depositor:         testKey(0x21),
		VaultConfig:       testKey(0x31),
		TellerState:       testKey(0x32),
		DepositVault:      testKey(0x33),
		AssetData:         testKey(0x34),
		DepositMint:       testKey(0x35),
		PriceFeed:         testKey(0x36),
		DepositorAssetATA: testKey(0x37),
		VaultAssetATA:     testKey(0x38),
		ShareMint:         testKey(0x39),
		DepositorShareATA: testKey(0x3a),
		DepositAmount:     5_000_000,
		MinMintAmount:     4_750_000_000,
	}
	instr := NewDepositInstruction(testVaultProgram, p)

	if instr.ProgramID != testVaultProgram {
		t.Errorf("program = %s, want %s", instr.ProgramID, testVaultProgram)
	}
	if !bytes.HasPrefix(instr.Data, tagDeposit[:]) {
		t.Fatal("data does not start with the deposit method tag")
	}
	args := instr.Data[TagSize:]
	if len(args) != 24 {
		t.Fatalf("argument bytes = %d, want 24", len(args))
	}
	if got := byteOrder.Uint64(args[0:8]); got != p.VaultID {
		t.Errorf("vault id argument = %d, want %d", got, p.VaultID)
	}
	if got := byteOrder.Uint64(args[8:16]); got != p.DepositAmount {
		t.Errorf("deposit amount argument = %d, want %d", got, p.DepositAmount)
	}
	if got := byteOrder.Uint64(args[16:24]); got != p.MinMintAmount {
		t.Errorf("min mint argument = %d, want %d", got, p.MinMintAmount)
	}

	first := instr.Accounts[0]
	if first.Key != p.Depositor || !first.Signer || !first.Writable {
		t.Errorf("first account = %+v, want writable signer %s", first, p.Depositor)
	}
	assertAccount(t, instr, p.DepositVault, false, true)
	assertAccount(t, instr, p.PriceFeed, false, false)
	assertAccount(t, instr, p.ShareMint, false, true)
	assertAccount(t, instr, pubkey.TokenProgramID, false, false)
	assertAccount(t, instr, pubkey.SystemProgramID, false, false)
}

func TestRequestWithdrawInstruction(t *testing.T) {
	p := RequestWithdrawParams{
		VaultID:           7,
		Owner:             testKey(0x21),
		QueueState:        testKey(0x41),
		UserWithdrawState: testKey(0x42),
		WithdrawRequest:   testKey(0x43),
		AssetData:         testKey(0x44),
		AssetOutMint:      testKey(0x45),
		PriceFeed:         testKey(0x46),
		ShareMint:         testKey(0x47),
		OwnerShareATA:     testKey(0x48),
		QueueShareATA:     testKey(0x49),
		ShareAmount:       1_500_000_000,
	}
	instr := NewRequestWithdrawInstruction(testQueueProgram, p)

	if !bytes.HasPrefix(instr.Data, tagRequestWithdraw[:]) {
		t.Fatal("data does not start with the request_withdraw method tag")
	}
	args := instr.Data[TagSize:]
	if got := byteOrder.Uint64(args[0:8]); got != p.VaultID {
		t.Errorf("vault id argument = %d, want %d", got, p.VaultID)
	}
	if got := byteOrder.Uint64(args[8:16]); got != p.ShareAmount {
		t.Errorf("share amount argument = %d, want %d", got, p.ShareAmount)
	}

	first := instr.Accounts[0]
	if first.Key != p.Owner || !first.Signer || !first.Writable {
		t.Errorf("first account = %+v, want writable signer %s", first, p.Owner)
	}
	// Both state accounts are created or mutated by the call.
	assertAccount(t, instr, p.UserWithdrawState, false, true)
	assertAccount(t, instr, p.WithdrawRequest, false, true)
	assertAccount(t, instr, p.QueueState, false, false)
	assertAccount(t, instr, p.OwnerShareATA, false, true)
}

// TestTagOnlyInstructions checks the calls whose request account carries
// all identifying state: their data is exactly the method tag.
func TestTagOnlyInstructions(t *testing.T) {
	cancel := NewCancelWithdrawInstruction(testQueueProgram, CancelWithdrawParams{
		Owner:           testKey(0x21),
		WithdrawRequest: testKey(0x43),
		ShareMint:       testKey(0x47),
		QueueShareATA:   testKey(0x49),
		OwnerShareATA:   testKey(0x48),
	})
	if !bytes.Equal(cancel.Data, tagCancelWithdraw[:]) {
		t.Errorf("cancel data = %x, want bare tag %s", cancel.Data, tagCancelWithdraw)
	}

	fulfill := NewFulfillWithdrawInstruction(testQueueProgram, FulfillWithdrawParams{
		Solver:          testKey(0x51),
		User:            testKey(0x21),
		QueueState:      testKey(0x41),
		WithdrawRequest: testKey(0x43),
		VaultConfig:     testKey(0x31),
		TellerState:     testKey(0x32),
		WithdrawVault:   testKey(0x52),
		AssetData:       testKey(0x44),
		AssetOutMint:    testKey(0x45),
		PriceFeed:       testKey(0x46),
		UserAssetATA:    testKey(0x53),
		VaultAssetATA:   testKey(0x54),
		ShareMint:       testKey(0x47),
		QueueShareATA:   testKey(0x49),
	})
	if !bytes.Equal(fulfill.Data, tagFulfillWithdraw[:]) {
		t.Errorf("fulfill data = %x, want bare tag %s", fulfill.Data, tagFulfillWithdraw)
	}

	// The solver signs and pays, but the assets and rent go to the user.
	first := fulfill.Accounts[0]
	if first.Key != testKey(0x51) || !first.Signer {
		t.Errorf("first fulfill account = %+v, want solver signer", first)
	}
	assertAccount(t, fulfill, testKey(0x21), false, true)
	assertAccount(t, fulfill, testKey(0x52), false, true)
}

func TestUpdateExchangeRateInstruction(t *testing.T) {
	p := UpdateExchangeRateParams{
		VaultID:     7,
		Authority:   testKey(0x61),
		VaultConfig: testKey(0x31),
		TellerState: testKey(0x32),
		NewRate:     1_050_000,
	}
	instr := NewUpdateExchangeRateInstruction(testVaultProgram, p)

	if !bytes.HasPrefix(instr.Data, tagUpdateExchangeRate[:]) {
		t.Fatal("data does not start with the update_exchange_rate method tag")
	}
	args := instr.Data[TagSize:]
	if got := byteOrder.Uint64(args[8:16]); got != p.NewRate {
		t.Errorf("new rate argument = %d, want %d", got, p.NewRate)
	}
	assertAccount(t, instr, p.TellerState, false, true)
	assertAccount(t, instr, p.VaultConfig, false, false)
}

// assertAccount fails unless instr references key with exactly the given
// privileges.
func assertAccount(t *testing.T, instr wire.Instruction, key pubkey.Key, signer, writable bool) {
	t.Helper()
	for _, account := range instr.Accounts {
		if account.Key != key {
			continue
		}
		if account.Signer != signer || account.Writable != writable {
			t.Errorf("account %s privileges = signer:%v writable:%v, "+
				"want signer:%v writable:%v",
				key, account.Signer, account.Writable, signer, writable)
		}
		return
	}
	t.Errorf("account %s not referenced by instruction", key)
}
