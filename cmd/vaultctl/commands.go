package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Se7en-Seas/boring-vault-go/boringvault"
	"github.com/Se7en-Seas/boring-vault-go/chain"
	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/Se7en-Seas/boring-vault-go/txmgr"
	"github.com/Se7en-Seas/boring-vault-go/vault"
	"github.com/Se7en-Seas/boring-vault-go/wire"
)

// commands maps each method name to its implementation.  Amounts are
// given in human units: asset amounts at the mint's own decimal scale
// and share amounts in whole shares.
var commands = map[string]command{
	"vault-info": {
		usage:   "vault-info <vaultid>",
		minArgs: 1,
		maxArgs: 1,
		handler: vaultInfoCmd,
	},
	"teller": {
		usage:   "teller <vaultid>",
		minArgs: 1,
		maxArgs: 1,
		handler: tellerCmd,
	},
	"asset": {
		usage:   "asset <vaultid> <mint>",
		minArgs: 2,
		maxArgs: 2,
		handler: assetCmd,
	},
	"next-nonce": {
		usage:   "next-nonce <owner>",
		minArgs: 1,
		maxArgs: 1,
		handler: nextNonceCmd,
	},
	"requests": {
		usage:   "requests <owner> [maxcount]",
		minArgs: 1,
		maxArgs: 2,
		handler: requestsCmd,
	},
	"active-requests": {
		usage:   "active-requests <owner> [maxcount]",
		minArgs: 1,
		maxArgs: 2,
		handler: activeRequestsCmd,
	},
	"request": {
		usage:   "request <owner> <nonce>",
		minArgs: 2,
		maxArgs: 2,
		handler: requestCmd,
	},
	"deposit": {
		usage:     "deposit <vaultid> <mint> <amount> [minshares]",
		minArgs:   3,
		maxArgs:   4,
		needsSign: true,
		handler:   depositCmd,
	},
	"request-withdraw": {
		usage:     "request-withdraw <vaultid> <assetout> <shares>",
		minArgs:   3,
		maxArgs:   3,
		needsSign: true,
		handler:   requestWithdrawCmd,
	},
	"cancel-withdraw": {
		usage:     "cancel-withdraw <nonce>",
		minArgs:   1,
		maxArgs:   1,
		needsSign: true,
		handler:   cancelWithdrawCmd,
	},
	"fulfill-withdraw": {
		usage:     "fulfill-withdraw <owner> <nonce>",
		minArgs:   2,
		maxArgs:   2,
		needsSign: true,
		handler:   fulfillWithdrawCmd,
	},
	"update-rate": {
		usage:     "update-rate <vaultid> <rate>",
		minArgs:   2,
		maxArgs:   2,
		needsSign: true,
		handler:   updateRateCmd,
	},
	"status": {
		usage:   "status <signature>",
		minArgs: 1,
		maxArgs: 1,
		handler: statusCmd,
	},
	"slot": {
		usage:   "slot",
		handler: slotCmd,
	},
	"history": {
		usage:   "history [limit]",
		maxArgs: 1,
		handler: historyCmd,
	},
	"user-history": {
		usage:   "user-history <owner> [limit]",
		minArgs: 1,
		maxArgs: 2,
		handler: userHistoryCmd,
	},
	"vault-history": {
		usage:   "vault-history <vaultid> [limit]",
		minArgs: 1,
		maxArgs: 2,
		handler: vaultHistoryCmd,
	},
	"prune-history": {
		usage:   "prune-history <days>",
		minArgs: 1,
		maxArgs: 1,
		handler: pruneHistoryCmd,
	},
	"watch": {
		usage:   "watch <vaultid>",
		minArgs: 1,
		maxArgs: 1,
		handler: watchCmd,
	},
}

func parseUint64(name, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return v, nil
}

func parseLimit(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q", s)
	}
	return v, nil
}

func parseKey(name, s string) (pubkey.Key, error) {
	key, err := pubkey.FromBase58(s)
	if err != nil {
		return pubkey.Key{}, fmt.Errorf("invalid %s %q: %v", name, s, err)
	}
	return key, nil
}

// requireJournal returns the journal or a uniform error for commands
// that cannot run with journaling disabled.
func (e *env) requireJournal() (*txmgr.Store, error) {
	if e.journal == nil {
		return nil, fmt.Errorf("journaling is disabled; remove --nojournal")
	}
	return e.journal, nil
}

// tellerView is the printable form of a teller account.  Monetary fields
// render at the base asset's decimal scale.
type tellerView struct {
	BaseAsset         string `json:"baseasset"`
	BaseAssetDecimals uint8  `json:"baseassetdecimals"`
	ExchangeRate      string `json:"exchangerate"`
	HighWaterMark     string `json:"highwatermark"`
	FeesOwed          string `json:"feesowed"`
	LastUpdate        string `json:"lastupdate"`
	PlatformFeeBps    uint16 `json:"platformfeebps"`
	PerformanceFeeBps uint16 `json:"performancefeebps"`
}

func newTellerView(t *boringvault.TellerState) tellerView {
	return tellerView{
		BaseAsset:         t.BaseAsset.String(),
		BaseAssetDecimals: t.BaseAssetDecimals,
		ExchangeRate:      boringvault.FormatAmount(t.ExchangeRate, t.BaseAssetDecimals),
		HighWaterMark:     boringvault.FormatAmount(t.ExchangeRateHighWaterMark, t.BaseAssetDecimals),
		FeesOwed:          boringvault.FormatAmount(t.FeesOwedInBaseAsset, t.BaseAssetDecimals),
		LastUpdate:        time.Unix(int64(t.LastUpdateTimestamp), 0).UTC().Format(time.RFC3339),
		PlatformFeeBps:    t.PlatformFeeBps,
		PerformanceFeeBps: t.PerformanceFeeBps,
	}
}

type configView struct {
	VaultID            uint64 `json:"vaultid"`
	Address            string `json:"address"`
	Authority          string `json:"authority"`
	PendingAuthority   string `json:"pendingauthority,omitempty"`
	ShareMint          string `json:"sharemint"`
	DepositSubAccount  uint8  `json:"depositsubaccount"`
	WithdrawSubAccount uint8  `json:"withdrawsubaccount"`
	Paused             bool   `json:"paused"`
}

func newConfigView(addr pubkey.Key, cfg *boringvault.VaultConfig) configView {
	view := configView{
		VaultID:            cfg.VaultID,
		Address:            addr.String(),
		Authority:          cfg.Authority.String(),
		ShareMint:          cfg.ShareMint.String(),
		DepositSubAccount:  cfg.DepositSubAccount,
		WithdrawSubAccount: cfg.WithdrawSubAccount,
		Paused:             cfg.Paused,
	}
	if !cfg.PendingAuthority.IsZero() {
		view.PendingAuthority = cfg.PendingAuthority.String()
	}
	return view
}

type overviewView struct {
	Config configView `json:"config"`
	Teller tellerView `json:"teller"`
	Slot   uint64     `json:"slot"`
}

type assetView struct {
	Mint            string `json:"mint"`
	PriceFeed       string `json:"pricefeed,omitempty"`
	Decimals        uint8  `json:"decimals"`
	AllowDeposits   bool   `json:"allowdeposits"`
	AllowWithdraws  bool   `json:"allowwithdraws"`
	SharePremiumBps uint16 `json:"sharepremiumbps"`
	Pegged          bool   `json:"pegged"`
	MaxStaleness    uint64 `json:"maxstaleness"`
	MinSamples      uint32 `json:"minsamples"`
}

type requestView struct {
	Address     string `json:"address"`
	VaultID     uint64 `json:"vaultid"`
	Owner       string `json:"owner"`
	Nonce       uint64 `json:"nonce"`
	AssetOut    string `json:"assetout"`
	Shares      string `json:"shares"`
	AssetAmount uint64 `json:"assetamount"`
	Created     string `json:"created"`
	Matures     string `json:"matures"`
	Expires     string `json:"expires"`
	Status      string `json:"status"`
}

func newRequestView(info *vault.RequestInfo) requestView {
	req := info.Request
	return requestView{
		Address:     info.Address.String(),
		VaultID:     req.VaultID,
		Owner:       req.User.String(),
		Nonce:       req.Nonce,
		AssetOut:    req.AssetOut.String(),
		Shares:      boringvault.FormatShares(req.ShareAmount),
		AssetAmount: req.AssetAmount,
		Created:     time.Unix(int64(req.CreationTime), 0).UTC().Format(time.RFC3339),
		Matures:     info.Times.Matures.Format(time.RFC3339),
		Expires:     info.Times.Expires.Format(time.RFC3339),
		Status:      info.Status.String(),
	}
}

type historyView struct {
	Signature  string  `json:"signature"`
	Kind       string  `json:"kind"`
	VaultID    uint64  `json:"vaultid"`
	User       string  `json:"user"`
	Nonce      *uint64 `json:"nonce,omitempty"`
	Submitted  string  `json:"submitted"`
	AnchorSlot uint64  `json:"anchorslot"`
}

func newHistoryView(rec *txmgr.Record) historyView {
	view := historyView{
		Signature:  rec.Signature.String(),
		Kind:       rec.Kind,
		VaultID:    rec.VaultID,
		User:       rec.User.String(),
		Submitted:  rec.SubmitTime.Format(time.RFC3339),
		AnchorSlot: rec.AnchorSlot,
	}
	if rec.HasNonce {
		nonce := rec.Nonce
		view.Nonce = &nonce
	}
	return view
}

func newHistoryViews(recs []txmgr.Record) []historyView {
	views := make([]historyView, 0, len(recs))
	for i := range recs {
		views = append(views, newHistoryView(&recs[i]))
	}
	return views
}

type statusView struct {
	Signature          string          `json:"signature"`
	Known              bool            `json:"known"`
	Slot               uint64          `json:"slot,omitempty"`
	Confirmations      *uint64         `json:"confirmations,omitempty"`
	ConfirmationStatus string          `json:"confirmationstatus,omitempty"`
	Err                json.RawMessage `json:"err,omitempty"`
	Journal            *historyView    `json:"journal,omitempty"`
}

func vaultInfoCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	vaultID, err := parseUint64("vault id", args[0])
	if err != nil {
		return nil, err
	}
	ov, err := e.client.Overview(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	return overviewView{
		Config: newConfigView(ov.ConfigAddress, ov.Config),
		Teller: newTellerView(ov.Teller),
		Slot:   ov.Slot,
	}, nil
}

func tellerCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	vaultID, err := parseUint64("vault id", args[0])
	if err != nil {
		return nil, err
	}
	teller, err := e.client.TellerState(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	return newTellerView(teller), nil
}

func assetCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	vaultID, err := parseUint64("vault id", args[0])
	if err != nil {
		return nil, err
	}
	mint, err := parseKey("mint", args[1])
	if err != nil {
		return nil, err
	}
	asset, err := e.client.AssetData(ctx, vaultID, mint)
	if err != nil {
		return nil, err
	}
	view := assetView{
		Mint:            mint.String(),
		Decimals:        asset.Decimals,
		AllowDeposits:   asset.AllowDeposits,
		AllowWithdraws:  asset.AllowWithdraws,
		SharePremiumBps: asset.SharePremiumBps,
		Pegged:          asset.IsPeggedToBaseAsset,
		MaxStaleness:    asset.MaxStaleness,
		MinSamples:      asset.MinSamples,
	}
	if !asset.PriceFeed.IsZero() {
		view.PriceFeed = asset.PriceFeed.String()
	}
	return view, nil
}

func nextNonceCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	owner, err := parseKey("owner", args[0])
	if err != nil {
		return nil, err
	}
	nonce, err := e.client.NextWithdrawNonce(ctx, owner)
	if err != nil {
		return nil, err
	}
	return nonce, nil
}

func listOptions(args []string) (vault.ListOptions, error) {
	var opts vault.ListOptions
	if len(args) > 1 {
		max, err := parseLimit(args[1])
		if err != nil {
			return opts, err
		}
		opts.MaxCount = max
	}
	return opts, nil
}

func requestsCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	owner, err := parseKey("owner", args[0])
	if err != nil {
		return nil, err
	}
	opts, err := listOptions(args)
	if err != nil {
		return nil, err
	}
	infos, err := e.client.WithdrawRequests(ctx, owner, opts)
	if err != nil {
		return nil, err
	}
	views := make([]requestView, 0, len(infos))
	for i := range infos {
		views = append(views, newRequestView(&infos[i]))
	}
	return views, nil
}

func activeRequestsCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	owner, err := parseKey("owner", args[0])
	if err != nil {
		return nil, err
	}
	opts, err := listOptions(args)
	if err != nil {
		return nil, err
	}
	infos, err := e.client.ActiveWithdrawStatuses(ctx, owner, opts)
	if err != nil {
		return nil, err
	}
	views := make([]requestView, 0, len(infos))
	for i := range infos {
		views = append(views, newRequestView(&infos[i]))
	}
	return views, nil
}

func requestCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	owner, err := parseKey("owner", args[0])
	if err != nil {
		return nil, err
	}
	nonce, err := parseUint64("nonce", args[1])
	if err != nil {
		return nil, err
	}
	info, err := e.client.WithdrawRequest(ctx, owner, nonce)
	if err != nil {
		return nil, err
	}
	return newRequestView(info), nil
}

func depositCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	vaultID, err := parseUint64("vault id", args[0])
	if err != nil {
		return nil, err
	}
	mint, err := parseKey("mint", args[1])
	if err != nil {
		return nil, err
	}
	// The amount is scaled by the mint's on-chain decimals, so those are
	// read before parsing.
	asset, err := e.client.AssetData(ctx, vaultID, mint)
	if err != nil {
		return nil, err
	}
	amount, err := boringvault.ParseAmount(args[2], asset.Decimals)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %v", args[2], err)
	}
	var minMint uint64
	if len(args) > 3 {
		minMint, err = boringvault.ParseShares(args[3])
		if err != nil {
			return nil, fmt.Errorf("invalid minshares %q: %v", args[3], err)
		}
	}

	sig, err := e.client.Perform(ctx, &vault.DepositAction{
		VaultID: vaultID,
		Mint:    mint,
		Amount:  amount,
		MinMint: minMint,
	})
	if err != nil {
		return nil, err
	}
	return sig.String(), nil
}

func requestWithdrawCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	vaultID, err := parseUint64("vault id", args[0])
	if err != nil {
		return nil, err
	}
	assetOut, err := parseKey("assetout", args[1])
	if err != nil {
		return nil, err
	}
	shares, err := boringvault.ParseShares(args[2])
	if err != nil {
		return nil, fmt.Errorf("invalid shares %q: %v", args[2], err)
	}

	sig, err := e.client.Perform(ctx, &vault.RequestWithdrawAction{
		VaultID:     vaultID,
		AssetOut:    assetOut,
		ShareAmount: shares,
	})
	if err != nil {
		return nil, err
	}
	return sig.String(), nil
}

func cancelWithdrawCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	nonce, err := parseUint64("nonce", args[0])
	if err != nil {
		return nil, err
	}
	sig, err := e.client.Perform(ctx, &vault.CancelWithdrawAction{Nonce: nonce})
	if err != nil {
		return nil, err
	}
	return sig.String(), nil
}

func fulfillWithdrawCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	owner, err := parseKey("owner", args[0])
	if err != nil {
		return nil, err
	}
	nonce, err := parseUint64("nonce", args[1])
	if err != nil {
		return nil, err
	}
	sig, err := e.client.Perform(ctx, &vault.FulfillWithdrawAction{
		Owner: owner,
		Nonce: nonce,
	})
	if err != nil {
		return nil, err
	}
	return sig.String(), nil
}

func updateRateCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	vaultID, err := parseUint64("vault id", args[0])
	if err != nil {
		return nil, err
	}
	// The rate is the base-asset value of one whole share, so it parses
	// at the base asset's decimal scale.
	teller, err := e.client.TellerState(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	rate, err := boringvault.ParseAmount(args[1], teller.BaseAssetDecimals)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %v", args[1], err)
	}

	sig, err := e.client.Perform(ctx, &vault.UpdateExchangeRateAction{
		VaultID: vaultID,
		NewRate: rate,
	})
	if err != nil {
		return nil, err
	}
	return sig.String(), nil
}

func statusCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	sig, err := wire.SignatureFromBase58(args[0])
	if err != nil {
		return nil, err
	}
	view := statusView{Signature: sig.String()}

	if e.journal != nil {
		rec, err := e.journal.Submission(sig)
		switch {
		case err == nil:
			journal := newHistoryView(rec)
			view.Journal = &journal
		case !txmgr.IsError(err, txmgr.ErrNoExists):
			return nil, err
		}
	}

	statuses, err := e.rpc.SignatureStatuses(ctx, []wire.Signature{sig})
	if err != nil {
		return nil, err
	}
	if st := statuses[0]; st != nil {
		view.Known = true
		view.Slot = st.Slot
		view.Confirmations = st.Confirmations
		view.ConfirmationStatus = st.ConfirmationStatus
		view.Err = st.Err
	}
	return view, nil
}

func slotCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	return e.rpc.Slot(ctx)
}

func historyCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	journal, err := e.requireJournal()
	if err != nil {
		return nil, err
	}
	limit := 0
	if len(args) > 0 {
		limit, err = parseLimit(args[0])
		if err != nil {
			return nil, err
		}
	}
	recs, err := journal.Submissions(limit)
	if err != nil {
		return nil, err
	}
	return newHistoryViews(recs), nil
}

func userHistoryCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	journal, err := e.requireJournal()
	if err != nil {
		return nil, err
	}
	user, err := parseKey("owner", args[0])
	if err != nil {
		return nil, err
	}
	limit := 0
	if len(args) > 1 {
		limit, err = parseLimit(args[1])
		if err != nil {
			return nil, err
		}
	}
	recs, err := journal.UserSubmissions(user, limit)
	if err != nil {
		return nil, err
	}
	return newHistoryViews(recs), nil
}

func vaultHistoryCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	journal, err := e.requireJournal()
	if err != nil {
		return nil, err
	}
	vaultID, err := parseUint64("vault id", args[0])
	if err != nil {
		return nil, err
	}
	limit := 0
	if len(args) > 1 {
		limit, err = parseLimit(args[1])
		if err != nil {
			return nil, err
		}
	}
	recs, err := journal.VaultSubmissions(vaultID, limit)
	if err != nil {
		return nil, err
	}
	return newHistoryViews(recs), nil
}

func pruneHistoryCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	journal, err := e.requireJournal()
	if err != nil {
		return nil, err
	}
	days, err := parseUint64("days", args[0])
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	removed, err := journal.Prune(cutoff)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("removed %d journaled transactions", removed), nil
}

// watchCmd streams config and teller changes for one vault until
// interrupted.
func watchCmd(ctx context.Context, e *env, args []string) (interface{}, error) {
	vaultID, err := parseUint64("vault id", args[0])
	if err != nil {
		return nil, err
	}
	deriver := pubkey.NewDeriver(0)
	program := e.cfg.VaultProgram.Key
	cfgAddr, _, err := boringvault.VaultConfigAddress(deriver, program, vaultID)
	if err != nil {
		return nil, err
	}
	tellerAddr, _, err := boringvault.TellerAddress(deriver, program, vaultID)
	if err != nil {
		return nil, err
	}

	sub := chain.NewPubSubClient(e.cfg.WSConnect, chain.Commitment(e.cfg.Commitment))
	if err := sub.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		sub.Stop()
		sub.WaitForShutdown()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case n, ok := <-sub.Notifications():
			if !ok {
				return nil, fmt.Errorf("subscription connection closed")
			}
			switch n := n.(type) {
			case chain.ClientConnected:
				if err := sub.SubscribeAccount(cfgAddr); err != nil {
					return nil, err
				}
				if err := sub.SubscribeAccount(tellerAddr); err != nil {
					return nil, err
				}
				fmt.Printf("watching vault %d\n", vaultID)
			case chain.AccountChanged:
				printAccountChange(cfgAddr, tellerAddr, n)
			case chain.SubscriptionLost:
				return nil, n.Err
			}
		}
	}
}

// printAccountChange renders one account update as a single JSON line.
func printAccountChange(cfgAddr, tellerAddr pubkey.Key, n chain.AccountChanged) {
	if n.Account == nil {
		fmt.Printf("account %s closed\n", n.Key)
		return
	}

	var (
		view interface{}
		err  error
	)
	switch n.Key {
	case cfgAddr:
		var cfg *boringvault.VaultConfig
		cfg, err = boringvault.DecodeVaultConfig(n.Key, n.Account.Data)
		if err == nil {
			view = newConfigView(n.Key, cfg)
		}
	case tellerAddr:
		var teller *boringvault.TellerState
		teller, err = boringvault.DecodeTellerState(n.Key, n.Account.Data)
		if err == nil {
			view = newTellerView(teller)
		}
	default:
		return
	}
	if err != nil {
		log.Warnf("Dropping undecodable update for %s: %v", n.Key, err)
		return
	}

	out, err := json.Marshal(struct {
		Slot   uint64      `json:"slot"`
		Update interface{} `json:"update"`
	}{Slot: n.Account.Slot, Update: view})
	if err != nil {
		log.Errorf("Failed to format update: %v", err)
		return
	}
	fmt.Println(string(out))
}
