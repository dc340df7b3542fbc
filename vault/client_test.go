package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Se7en-Seas/boring-vault-go/boringvault"
	"github.com/Se7en-Seas/boring-vault-go/oracle"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(&Config{})
	require.Error(t, err)

	_, err = NewClient(&Config{
		VaultProgram: testVaultProgram,
		QueueProgram: testQueueProgram,
	})
	require.Error(t, err, "a client without a chain reader is useless")
}

func TestNewClientDefaults(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.Cranker = nil
		cfg.Policy = oracle.Policy{}
	})

	require.Equal(t, f.signer.Key(), f.client.cfg.FeePayer)
	require.IsType(t, oracle.NopCranker{}, f.client.cranker)
}

func TestOverview(t *testing.T) {
	f := newFixture(t, nil)
	f.installVault(t, defaultVaultConfig(), nil, testBaseMint)

	ov, err := f.client.Overview(context.Background(), testVaultID)
	require.NoError(t, err)

	require.Equal(t, testVaultID, ov.VaultID)
	require.Equal(t, testVaultID, ov.Config.VaultID)
	require.Equal(t, testKey(0x41), ov.Config.Authority)
	require.Equal(t, uint64(1047500), ov.Teller.ExchangeRate)
	require.Equal(t, testBaseMint, ov.Teller.BaseAsset)
	require.Equal(t, uint64(100), ov.Slot)

	cfgAddr, _, err := boringvault.VaultConfigAddress(f.client.deriver,
		testVaultProgram, testVaultID)
	require.NoError(t, err)
	require.Equal(t, cfgAddr, ov.ConfigAddress)
}

func TestOverviewUnknownVault(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.client.Overview(context.Background(), 77)
	require.ErrorIs(t, err, ErrAccountAbsent)
}

func TestTellerStateAbsent(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.client.TellerState(context.Background(), testVaultID)
	require.ErrorIs(t, err, ErrAccountAbsent)
}

func TestAssetData(t *testing.T) {
	f := newFixture(t, nil)
	f.installVault(t, defaultVaultConfig(), defaultAssetData(), testBaseMint)

	asset, err := f.client.AssetData(context.Background(), testVaultID, testBaseMint)
	require.NoError(t, err)
	require.Equal(t, testFeed, asset.PriceFeed)
	require.True(t, asset.AllowDeposits)
}

func TestUserWithdrawStateAbsent(t *testing.T) {
	f := newFixture(t, nil)

	state, err := f.client.UserWithdrawState(context.Background(), testOwner)
	require.NoError(t, err)
	require.Nil(t, state)
}

func TestUserWithdrawState(t *testing.T) {
	f := newFixture(t, nil)
	f.installUserState(t, testOwner, 12)

	state, err := f.client.UserWithdrawState(context.Background(), testOwner)
	require.NoError(t, err)
	require.Equal(t, uint64(12), state.LastNonce)
}

func TestReadErrorPropagates(t *testing.T) {
	f := newFixture(t, nil)
	flake := errors.New("rpc timeout")

	cfgAddr, _, err := boringvault.VaultConfigAddress(f.client.deriver,
		testVaultProgram, testVaultID)
	require.NoError(t, err)
	f.chain.fail(cfgAddr, flake)

	_, err = f.client.VaultConfig(context.Background(), testVaultID)
	require.ErrorIs(t, err, flake)
}
