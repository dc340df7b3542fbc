package vault

import (
	"context"
	"fmt"

	"github.com/Se7en-Seas/boring-vault-go/boringvault"
	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/Se7en-Seas/boring-vault-go/wire"
)

// assetFeeds returns the feed requirement for an asset, or none when the
// asset is pegged to the base asset and priced without an oracle.
func assetFeeds(asset *boringvault.AssetData) []FeedRequirement {
	if asset.IsPeggedToBaseAsset || asset.PriceFeed.IsZero() {
		return nil
	}
	return []FeedRequirement{{Feed: asset.PriceFeed, MinSamples: asset.MinSamples}}
}

// DepositAction exchanges Amount of Mint for newly minted shares,
// refusing a mint below MinMint.  A zero Depositor composes for the
// configured signer.
type DepositAction struct {
	VaultID   uint64
	Depositor pubkey.Key
	Mint      pubkey.Key
	Amount    uint64
	MinMint   uint64
}

// Resolve implements Action.
func (a *DepositAction) Resolve(ctx context.Context, c *Client) (*Resolved, error) {
	depositor, err := c.actor(a.Depositor)
	if err != nil {
		return nil, err
	}

	cfg, cfgAddr, err := c.readVaultConfig(ctx, a.VaultID)
	if err != nil {
		return nil, err
	}
	if cfg.Paused {
		return nil, fmt.Errorf("vault %d: %w", a.VaultID, ErrVaultPaused)
	}
	asset, assetAddr, err := c.readAssetData(ctx, a.VaultID, a.Mint)
	if err != nil {
		return nil, err
	}
	if !asset.AllowDeposits {
		return nil, fmt.Errorf("mint %s: %w", a.Mint, ErrDepositsDisabled)
	}

	tellerAddr, _, err := boringvault.TellerAddress(c.deriver, c.cfg.VaultProgram, a.VaultID)
	if err != nil {
		return nil, err
	}
	// The deposit sub-account index is whatever the config currently
	// designates, so it must come from the read above, never a cache.
	depositVault, _, err := boringvault.VaultSubAccountAddress(c.deriver,
		c.cfg.VaultProgram, a.VaultID, cfg.DepositSubAccount)
	if err != nil {
		return nil, err
	}
	depositorAssetATA, err := c.ata(depositor, a.Mint)
	if err != nil {
		return nil, err
	}
	vaultAssetATA, err := c.ata(depositVault, a.Mint)
	if err != nil {
		return nil, err
	}
	depositorShareATA, err := c.ata(depositor, cfg.ShareMint)
	if err != nil {
		return nil, err
	}

	instr := boringvault.NewDepositInstruction(c.cfg.VaultProgram, boringvault.DepositParams{
		VaultID:           a.VaultID,
		Depositor:         depositor,
		VaultConfig:       cfgAddr,
		TellerState:       tellerAddr,
		DepositVault:      depositVault,
		AssetData:         assetAddr,
		DepositMint:       a.Mint,
		PriceFeed:         asset.PriceFeed,
		DepositorAssetATA: depositorAssetATA,
		VaultAssetATA:     vaultAssetATA,
		ShareMint:         cfg.ShareMint,
		DepositorShareATA: depositorShareATA,
		DepositAmount:     a.Amount,
		MinMintAmount:     a.MinMint,
	})

	return &Resolved{
		Kind:         "deposit",
		VaultID:      a.VaultID,
		User:         depositor,
		Instructions: []wire.Instruction{instr},
		Feeds:        assetFeeds(asset),
	}, nil
}

// RequestWithdrawAction queues ShareAmount of the owner's shares for
// withdrawal into AssetOut.  The request's nonce is the successor of the
// owner's stored counter, read at resolution time.  A zero Owner
// composes for the configured signer.
type RequestWithdrawAction struct {
	VaultID     uint64
	Owner       pubkey.Key
	AssetOut    pubkey.Key
	ShareAmount uint64
}

// Resolve implements Action.
func (a *RequestWithdrawAction) Resolve(ctx context.Context, c *Client) (*Resolved, error) {
	owner, err := c.actor(a.Owner)
	if err != nil {
		return nil, err
	}

	cfg, _, err := c.readVaultConfig(ctx, a.VaultID)
	if err != nil {
		return nil, err
	}
	asset, assetAddr, err := c.readAssetData(ctx, a.VaultID, a.AssetOut)
	if err != nil {
		return nil, err
	}
	if !asset.AllowWithdraws {
		return nil, fmt.Errorf("mint %s: %w", a.AssetOut, ErrWithdrawsDisabled)
	}

	nonce, err := c.NextWithdrawNonce(ctx, owner)
	if err != nil {
		return nil, err
	}

	queueState, _, err := boringvault.QueueStateAddress(c.deriver, c.cfg.QueueProgram, a.VaultID)
	if err != nil {
		return nil, err
	}
	userState, _, err := boringvault.UserWithdrawStateAddress(c.deriver, c.cfg.QueueProgram, owner)
	if err != nil {
		return nil, err
	}
	request, _, err := boringvault.WithdrawRequestAddress(c.deriver, c.cfg.QueueProgram, owner, nonce)
	if err != nil {
		return nil, err
	}
	ownerShareATA, err := c.ata(owner, cfg.ShareMint)
	if err != nil {
		return nil, err
	}
	queueShareATA, err := c.ata(queueState, cfg.ShareMint)
	if err != nil {
		return nil, err
	}

	instr := boringvault.NewRequestWithdrawInstruction(c.cfg.QueueProgram, boringvault.RequestWithdrawParams{
		VaultID:           a.VaultID,
		Owner:             owner,
		QueueState:        queueState,
		UserWithdrawState: userState,
		WithdrawRequest:   request,
		AssetData:         assetAddr,
		AssetOutMint:      a.AssetOut,
		PriceFeed:         asset.PriceFeed,
		ShareMint:         cfg.ShareMint,
		OwnerShareATA:     ownerShareATA,
		QueueShareATA:     queueShareATA,
		ShareAmount:       a.ShareAmount,
	})

	return &Resolved{
		Kind:         "request-withdraw",
		VaultID:      a.VaultID,
		User:         owner,
		Nonce:        nonce,
		HasNonce:     true,
		Instructions: []wire.Instruction{instr},
		Feeds:        assetFeeds(asset),
	}, nil
}

// CancelWithdrawAction cancels the owner's queued request, returning the
// escrowed shares.  A zero Owner composes for the configured signer.
type CancelWithdrawAction struct {
	Owner pubkey.Key
	Nonce uint64
}

// Resolve implements Action.
func (a *CancelWithdrawAction) Resolve(ctx context.Context, c *Client) (*Resolved, error) {
	owner, err := c.actor(a.Owner)
	if err != nil {
		return nil, err
	}

	info, err := c.WithdrawRequest(ctx, owner, a.Nonce)
	if err != nil {
		return nil, err
	}
	req := info.Request

	cfg, _, err := c.readVaultConfig(ctx, req.VaultID)
	if err != nil {
		return nil, err
	}
	queueState, _, err := boringvault.QueueStateAddress(c.deriver, c.cfg.QueueProgram, req.VaultID)
	if err != nil {
		return nil, err
	}
	queueShareATA, err := c.ata(queueState, cfg.ShareMint)
	if err != nil {
		return nil, err
	}
	ownerShareATA, err := c.ata(owner, cfg.ShareMint)
	if err != nil {
		return nil, err
	}

	instr := boringvault.NewCancelWithdrawInstruction(c.cfg.QueueProgram, boringvault.CancelWithdrawParams{
		Owner:           owner,
		WithdrawRequest: info.Address,
		ShareMint:       cfg.ShareMint,
		QueueShareATA:   queueShareATA,
		OwnerShareATA:   ownerShareATA,
	})

	return &Resolved{
		Kind:         "cancel-withdraw",
		VaultID:      req.VaultID,
		User:         owner,
		Nonce:        a.Nonce,
		HasNonce:     true,
		Instructions: []wire.Instruction{instr},
	}, nil
}

// FulfillWithdrawAction pays out a matured request.  Any key may act as
// the solver; the request's owner receives the assets either way.  A
// zero Solver composes for the configured signer.
type FulfillWithdrawAction struct {
	Solver pubkey.Key
	Owner  pubkey.Key
	Nonce  uint64
}

// Resolve implements Action.
func (a *FulfillWithdrawAction) Resolve(ctx context.Context, c *Client) (*Resolved, error) {
	solver, err := c.actor(a.Solver)
	if err != nil {
		return nil, err
	}
	if a.Owner.IsZero() {
		return nil, fmt.Errorf("fulfill requires the request owner")
	}

	info, err := c.WithdrawRequest(ctx, a.Owner, a.Nonce)
	if err != nil {
		return nil, err
	}
	switch info.Status {
	case StatusMaturing:
		return nil, fmt.Errorf("request %d matures at %v: %w", a.Nonce,
			info.Times.Matures, ErrRequestNotReady)
	case StatusExpired:
		return nil, fmt.Errorf("request %d expired at %v: %w", a.Nonce,
			info.Times.Expires, ErrRequestExpired)
	}
	req := info.Request

	cfg, cfgAddr, err := c.readVaultConfig(ctx, req.VaultID)
	if err != nil {
		return nil, err
	}
	asset, assetAddr, err := c.readAssetData(ctx, req.VaultID, req.AssetOut)
	if err != nil {
		return nil, err
	}

	tellerAddr, _, err := boringvault.TellerAddress(c.deriver, c.cfg.VaultProgram, req.VaultID)
	if err != nil {
		return nil, err
	}
	withdrawVault, _, err := boringvault.VaultSubAccountAddress(c.deriver,
		c.cfg.VaultProgram, req.VaultID, cfg.WithdrawSubAccount)
	if err != nil {
		return nil, err
	}
	queueState, _, err := boringvault.QueueStateAddress(c.deriver, c.cfg.QueueProgram, req.VaultID)
	if err != nil {
		return nil, err
	}
	userAssetATA, err := c.ata(req.User, req.AssetOut)
	if err != nil {
		return nil, err
	}
	vaultAssetATA, err := c.ata(withdrawVault, req.AssetOut)
	if err != nil {
		return nil, err
	}
	queueShareATA, err := c.ata(queueState, cfg.ShareMint)
	if err != nil {
		return nil, err
	}

	instr := boringvault.NewFulfillWithdrawInstruction(c.cfg.QueueProgram, boringvault.FulfillWithdrawParams{
		Solver:          solver,
		User:            req.User,
		QueueState:      queueState,
		WithdrawRequest: info.Address,
		VaultConfig:     cfgAddr,
		TellerState:     tellerAddr,
		WithdrawVault:   withdrawVault,
		AssetData:       assetAddr,
		AssetOutMint:    req.AssetOut,
		PriceFeed:       asset.PriceFeed,
		UserAssetATA:    userAssetATA,
		VaultAssetATA:   vaultAssetATA,
		ShareMint:       cfg.ShareMint,
		QueueShareATA:   queueShareATA,
	})

	return &Resolved{
		Kind:         "fulfill-withdraw",
		VaultID:      req.VaultID,
		User:         req.User,
		Nonce:        a.Nonce,
		HasNonce:     true,
		Instructions: []wire.Instruction{instr},
		Feeds:        assetFeeds(asset),
	}, nil
}

// UpdateExchangeRateAction posts a new share exchange rate.  Only the
// vault's configured authority may perform it; a zero Authority composes
// for the configured signer.
type UpdateExchangeRateAction struct {
	VaultID   uint64
	Authority pubkey.Key
	NewRate   uint64
}

// Resolve implements Action.
func (a *UpdateExchangeRateAction) Resolve(ctx context.Context, c *Client) (*Resolved, error) {
	authority, err := c.actor(a.Authority)
	if err != nil {
		return nil, err
	}

	cfg, cfgAddr, err := c.readVaultConfig(ctx, a.VaultID)
	if err != nil {
		return nil, err
	}
	if !cfg.Authority.Equal(authority) {
		return nil, fmt.Errorf("%s: %w", authority, ErrNotAuthority)
	}
	tellerAddr, _, err := boringvault.TellerAddress(c.deriver, c.cfg.VaultProgram, a.VaultID)
	if err != nil {
		return nil, err
	}

	instr := boringvault.NewUpdateExchangeRateInstruction(c.cfg.VaultProgram, boringvault.UpdateExchangeRateParams{
		VaultID:     a.VaultID,
		Authority:   authority,
		VaultConfig: cfgAddr,
		TellerState: tellerAddr,
		NewRate:     a.NewRate,
	})

	return &Resolved{
		Kind:         "update-rate",
		VaultID:      a.VaultID,
		User:         authority,
		Instructions: []wire.Instruction{instr},
	}, nil
}
