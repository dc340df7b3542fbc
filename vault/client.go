package vault

import (
	"context"
	"fmt"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/Se7en-Seas/boring-vault-go/boringvault"
	"github.com/Se7en-Seas/boring-vault-go/chain"
	"github.com/Se7en-Seas/boring-vault-go/oracle"
	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/Se7en-Seas/boring-vault-go/txmgr"
	"github.com/Se7en-Seas/boring-vault-go/wire"
)

// Signer signs composed transactions.
type Signer interface {
	// Key returns the public key signatures are made for.
	Key() pubkey.Key

	// Sign signs a serialized transaction message.
	Sign(message []byte) (wire.Signature, error)
}

// Config supplies a Client's collaborators.  Chain and the two program
// keys are required; everything else is optional and gates which
// operations the client supports.
type Config struct {
	// VaultProgram and QueueProgram identify the deployed vault program
	// and its withdraw queue companion.
	VaultProgram pubkey.Key
	QueueProgram pubkey.Key

	// Chain reads account state.
	Chain chain.ReadClient

	// Submitter provides recent anchors and transaction submission.
	// Without it the client is read-only.
	Submitter chain.SubmitClient

	// Signer signs finalized transactions.
	Signer Signer

	// FeePayer pays transaction fees.  Zero selects the signer's key.
	FeePayer pubkey.Key

	// Cranker produces oracle freshness instructions.  Nil selects the
	// no-op cranker.
	Cranker oracle.Cranker

	// Policy is the oracle freshness policy applied by Compose.
	Policy oracle.Policy

	// Tables are the address lookup tables available when a transaction
	// does not fit the simple encoding.
	Tables []wire.AddressTable

	// Clock is the time source for lifecycle derivation.  Nil selects
	// the real clock.
	Clock clock.Clock

	// Deriver caches address derivations.  Nil allocates a private one.
	Deriver *pubkey.Deriver

	// Journal, when set, records every submitted transaction.
	Journal *txmgr.Store
}

// Client talks to one vault program and queue program pair.  It is safe
// for concurrent use.
type Client struct {
	cfg     Config
	clk     clock.Clock
	deriver *pubkey.Deriver
	cranker oracle.Cranker
}

// NewClient builds a client from cfg.  The config is copied; later
// mutation of the caller's copy has no effect.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.VaultProgram.IsZero() || cfg.QueueProgram.IsZero() {
		return nil, fmt.Errorf("both program keys are required")
	}
	if cfg.Chain == nil {
		return nil, fmt.Errorf("a chain read client is required")
	}

	c := &Client{
		cfg:     *cfg,
		clk:     cfg.Clock,
		deriver: cfg.Deriver,
		cranker: cfg.Cranker,
	}
	if c.clk == nil {
		c.clk = clock.NewDefaultClock()
	}
	if c.deriver == nil {
		c.deriver = pubkey.NewDeriver(0)
	}
	if c.cranker == nil {
		c.cranker = oracle.NopCranker{}
	}
	if c.cfg.FeePayer.IsZero() && c.cfg.Signer != nil {
		c.cfg.FeePayer = c.cfg.Signer.Key()
	}
	return c, nil
}

// signerKey returns the configured signer's key, or an error for clients
// built without one.
func (c *Client) signerKey() (pubkey.Key, error) {
	if c.cfg.Signer == nil {
		return pubkey.Key{}, ErrNoSigner
	}
	return c.cfg.Signer.Key(), nil
}

// actor returns key unless it is zero, in which case the signer's key
// stands in.  Actions use it so callers composing for their own key can
// leave the field unset.
func (c *Client) actor(key pubkey.Key) (pubkey.Key, error) {
	if !key.IsZero() {
		return key, nil
	}
	return c.signerKey()
}

// ata derives the wallet's associated token account for mint through
// the client's deriver cache.
func (c *Client) ata(wallet, mint pubkey.Key) (pubkey.Key, error) {
	addr, _, err := c.deriver.Derive(pubkey.AssociatedTokenProgramID,
		wallet[:], pubkey.TokenProgramID[:], mint[:])
	return addr, err
}

// readAccount fetches addr and reports absence through the returned
// account being nil.
func (c *Client) readAccount(ctx context.Context, addr pubkey.Key) (*chain.Account, error) {
	acct, err := c.cfg.Chain.AccountInfo(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("read account %s: %w", addr, err)
	}
	return acct, nil
}

// readVaultConfig fetches and decodes the vault's config account.
func (c *Client) readVaultConfig(ctx context.Context, vaultID uint64) (*boringvault.VaultConfig, pubkey.Key, error) {
	addr, _, err := boringvault.VaultConfigAddress(c.deriver, c.cfg.VaultProgram, vaultID)
	if err != nil {
		return nil, pubkey.Key{}, err
	}
	acct, err := c.readAccount(ctx, addr)
	if err != nil {
		return nil, pubkey.Key{}, err
	}
	if acct == nil {
		return nil, pubkey.Key{}, fmt.Errorf("vault %d config %s: %w",
			vaultID, addr, ErrAccountAbsent)
	}
	cfg, err := boringvault.DecodeVaultConfig(addr, acct.Data)
	if err != nil {
		return nil, pubkey.Key{}, err
	}
	return cfg, addr, nil
}

// readAssetData fetches and decodes the vault's per-asset settings for
// mint.
func (c *Client) readAssetData(ctx context.Context, vaultID uint64, mint pubkey.Key) (*boringvault.AssetData, pubkey.Key, error) {
	addr, _, err := boringvault.AssetDataAddress(c.deriver, c.cfg.VaultProgram, vaultID, mint)
	if err != nil {
		return nil, pubkey.Key{}, err
	}
	acct, err := c.readAccount(ctx, addr)
	if err != nil {
		return nil, pubkey.Key{}, err
	}
	if acct == nil {
		return nil, pubkey.Key{}, fmt.Errorf("vault %d asset data for "+
			"mint %s: %w", vaultID, mint, ErrAccountAbsent)
	}
	asset, err := boringvault.DecodeAssetData(addr, acct.Data)
	if err != nil {
		return nil, pubkey.Key{}, err
	}
	return asset, addr, nil
}

// VaultConfig fetches the vault's config account.
func (c *Client) VaultConfig(ctx context.Context, vaultID uint64) (*boringvault.VaultConfig, error) {
	cfg, _, err := c.readVaultConfig(ctx, vaultID)
	return cfg, err
}

// TellerState fetches the vault's teller account, which carries the
// current exchange rate and fee accruals.
func (c *Client) TellerState(ctx context.Context, vaultID uint64) (*boringvault.TellerState, error) {
	addr, _, err := boringvault.TellerAddress(c.deriver, c.cfg.VaultProgram, vaultID)
	if err != nil {
		return nil, err
	}
	acct, err := c.readAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("vault %d teller %s: %w", vaultID, addr,
			ErrAccountAbsent)
	}
	return boringvault.DecodeTellerState(addr, acct.Data)
}

// AssetData fetches the vault's per-asset deposit and withdraw settings
// for mint.
func (c *Client) AssetData(ctx context.Context, vaultID uint64, mint pubkey.Key) (*boringvault.AssetData, error) {
	asset, _, err := c.readAssetData(ctx, vaultID, mint)
	return asset, err
}

// UserWithdrawState fetches the owner's withdraw nonce counter.  A nil
// record with a nil error means the owner has never queued a request.
func (c *Client) UserWithdrawState(ctx context.Context, owner pubkey.Key) (*boringvault.UserWithdrawState, error) {
	addr, _, err := boringvault.UserWithdrawStateAddress(c.deriver, c.cfg.QueueProgram, owner)
	if err != nil {
		return nil, err
	}
	acct, err := c.readAccount(ctx, addr)
	if err != nil || acct == nil {
		return nil, err
	}
	return boringvault.DecodeUserWithdrawState(addr, acct.Data)
}

// NextWithdrawNonce returns the nonce the owner's next withdraw request
// will be derived with.
func (c *Client) NextWithdrawNonce(ctx context.Context, owner pubkey.Key) (uint64, error) {
	state, err := c.UserWithdrawState(ctx, owner)
	if err != nil {
		return 0, err
	}
	if state == nil {
		return 0, nil
	}
	return state.LastNonce + 1, nil
}

// WithdrawRequest fetches a single withdraw request by owner and nonce.
// An account that has been fulfilled or cancelled reports
// ErrRequestNotFound.
func (c *Client) WithdrawRequest(ctx context.Context, owner pubkey.Key, nonce uint64) (*RequestInfo, error) {
	info, err := c.lookupRequest(ctx, owner, nonce, c.clk.Now())
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("request %d for %s: %w", nonce, owner,
			ErrRequestNotFound)
	}
	return info, nil
}

// Overview is a point-in-time snapshot of a vault's control accounts,
// read in a single batched call so the two records describe the same
// slot.
type Overview struct {
	VaultID       uint64
	ConfigAddress pubkey.Key
	TellerAddress pubkey.Key
	Config        *boringvault.VaultConfig
	Teller        *boringvault.TellerState

	// Slot is the slot the batched read was served at.
	Slot uint64
}

// Overview fetches the vault's config and teller state together.
func (c *Client) Overview(ctx context.Context, vaultID uint64) (*Overview, error) {
	cfgAddr, _, err := boringvault.VaultConfigAddress(c.deriver, c.cfg.VaultProgram, vaultID)
	if err != nil {
		return nil, err
	}
	tellerAddr, _, err := boringvault.TellerAddress(c.deriver, c.cfg.VaultProgram, vaultID)
	if err != nil {
		return nil, err
	}

	accts, err := c.cfg.Chain.MultiAccountInfo(ctx, []pubkey.Key{cfgAddr, tellerAddr})
	if err != nil {
		return nil, err
	}
	if accts[0] == nil {
		return nil, fmt.Errorf("vault %d config %s: %w", vaultID,
			cfgAddr, ErrAccountAbsent)
	}
	if accts[1] == nil {
		return nil, fmt.Errorf("vault %d teller %s: %w", vaultID,
			tellerAddr, ErrAccountAbsent)
	}

	cfg, err := boringvault.DecodeVaultConfig(cfgAddr, accts[0].Data)
	if err != nil {
		return nil, err
	}
	teller, err := boringvault.DecodeTellerState(tellerAddr, accts[1].Data)
	if err != nil {
		return nil, err
	}

	return &Overview{
		VaultID:       vaultID,
		ConfigAddress: cfgAddr,
		TellerAddress: tellerAddr,
		Config:        cfg,
		Teller:        teller,
		Slot:          accts[0].Slot,
	}, nil
}
