package chain

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/Se7en-Seas/boring-vault-go/wire"
	"github.com/abesuite/go-socks/socks"
	"github.com/btcsuite/btcd/btcutil/base58"
)

// Commitment selects how settled chain state must be before reads observe
// it and before submission preflight simulates against it.
type Commitment string

// The commitment levels offered by the node, least to most settled.
const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// defaultRequestTimeout bounds one HTTP round trip when the caller's
// context carries no earlier deadline.
const defaultRequestTimeout = 30 * time.Second

// ConnConfig describes the connection configuration for a client.
type ConnConfig struct {
	// URL is the node's JSON-RPC endpoint.
	URL string

	// Commitment applies to every read and to submission preflight.
	// Empty selects confirmed.
	Commitment Commitment

	// Proxy specifies a SOCKS5 proxy to route connections through, with
	// optional credentials.
	Proxy     string
	ProxyUser string
	ProxyPass string

	// TLSSkipVerify disables server certificate verification.  Only
	// sensible against a local node with a self-signed certificate.
	TLSSkipVerify bool

	// Timeout bounds each round trip.  Zero selects a default.
	Timeout time.Duration
}

// RPCClient is a JSON-RPC client for the node's HTTP endpoint.  It
// performs exactly one round trip per call and never retries; retry and
// confirmation policy belong to the caller.  It is safe for concurrent
// use.
type RPCClient struct {
	cfg        ConnConfig
	httpClient *http.Client
	nextID     uint64
}

// Compile-time check that RPCClient provides both collaborator surfaces.
var _ Client = (*RPCClient)(nil)

// NewRPCClient returns an RPCClient for the given connection config.
func NewRPCClient(cfg ConnConfig) (*RPCClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("rpc url is required")
	}
	if cfg.Commitment == "" {
		cfg.Commitment = CommitmentConfirmed
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	httpClient, err := newHTTPClient(&cfg)
	if err != nil {
		return nil, err
	}
	return &RPCClient{cfg: cfg, httpClient: httpClient}, nil
}

// newHTTPClient returns a new http client that is configured according to
// the proxy and TLS settings in the associated connection configuration.
func newHTTPClient(cfg *ConnConfig) (*http.Client, error) {
	// Configure proxy if needed.
	var dial func(network, addr string) (net.Conn, error)
	if cfg.Proxy != "" {
		proxy := &socks.Proxy{
			Addr:     cfg.Proxy,
			Username: cfg.ProxyUser,
			Password: cfg.ProxyPass,
		}
		dial = func(network, addr string) (net.Conn, error) {
			c, err := proxy.Dial(network, addr)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}

	var tlsConfig *tls.Config
	if cfg.TLSSkipVerify {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Dial:            dial,
			TLSClientConfig: tlsConfig,
		},
	}, nil
}

// RPCError is the error object of a JSON-RPC response.  Submission
// failures surface to callers as *RPCError untouched.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error satisfies the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// call performs one JSON-RPC round trip, unmarshalling the result field
// into result when it is non-nil.
func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	id := atomic.AddUint64(&c.nextID, 1)
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL,
		bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	log.Tracef("POST %s id %d", method, id)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http status %s", method, resp.Status)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("%s: malformed response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("%s: malformed result: %w", method, err)
	}
	return nil
}

// rpcContext is the context object every stateful response carries.
type rpcContext struct {
	Slot uint64 `json:"slot"`
}

// rpcAccount is the JSON form of one account with base64 data.
type rpcAccount struct {
	Data     []string `json:"data"`
	Owner    string   `json:"owner"`
	Lamports uint64   `json:"lamports"`
}

func (a *rpcAccount) account(slot uint64) (*Account, error) {
	if len(a.Data) != 2 || a.Data[1] != "base64" {
		return nil, fmt.Errorf("unexpected account data encoding %v", a.Data)
	}
	data, err := base64.StdEncoding.DecodeString(a.Data[0])
	if err != nil {
		return nil, fmt.Errorf("account data: %w", err)
	}
	owner, err := pubkey.FromBase58(a.Owner)
	if err != nil {
		return nil, fmt.Errorf("account owner: %w", err)
	}
	return &Account{
		Owner:    owner,
		Data:     data,
		Lamports: a.Lamports,
		Slot:     slot,
	}, nil
}

func (c *RPCClient) accountOpts() map[string]interface{} {
	return map[string]interface{}{
		"encoding":   "base64",
		"commitment": c.cfg.Commitment,
	}
}

// AccountInfo returns the account at key, or nil if it is absent.
func (c *RPCClient) AccountInfo(ctx context.Context, key pubkey.Key) (*Account, error) {
	var result struct {
		Context rpcContext  `json:"context"`
		Value   *rpcAccount `json:"value"`
	}
	params := []interface{}{key.String(), c.accountOpts()}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, nil
	}
	return result.Value.account(result.Context.Slot)
}

// MultiAccountInfo returns the accounts at keys in order, with nil entries
// for absent accounts.
func (c *RPCClient) MultiAccountInfo(ctx context.Context, keys []pubkey.Key) ([]*Account, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	encoded := make([]string, len(keys))
	for i := range keys {
		encoded[i] = keys[i].String()
	}

	var result struct {
		Context rpcContext    `json:"context"`
		Value   []*rpcAccount `json:"value"`
	}
	params := []interface{}{encoded, c.accountOpts()}
	if err := c.call(ctx, "getMultipleAccounts", params, &result); err != nil {
		return nil, err
	}
	if len(result.Value) != len(keys) {
		return nil, fmt.Errorf("requested %d accounts, response carries %d",
			len(keys), len(result.Value))
	}

	accounts := make([]*Account, len(keys))
	for i, value := range result.Value {
		if value == nil {
			continue
		}
		account, err := value.account(result.Context.Slot)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", keys[i], err)
		}
		accounts[i] = account
	}
	return accounts, nil
}

// RecentAnchor returns a fresh blockhash for transaction signing.
func (c *RPCClient) RecentAnchor(ctx context.Context) (Anchor, error) {
	var result struct {
		Context rpcContext `json:"context"`
		Value   struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	params := []interface{}{map[string]interface{}{"commitment": c.cfg.Commitment}}
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return Anchor{}, err
	}
	hash, err := wire.BlockhashFromBase58(result.Value.Blockhash)
	if err != nil {
		return Anchor{}, err
	}
	return Anchor{Blockhash: hash, Slot: result.Context.Slot}, nil
}

// Submit broadcasts a fully signed transaction and returns its id.
func (c *RPCClient) Submit(ctx context.Context, signedTx []byte) (wire.Signature, error) {
	params := []interface{}{
		base64.StdEncoding.EncodeToString(signedTx),
		map[string]interface{}{
			"encoding":            "base64",
			"preflightCommitment": c.cfg.Commitment,
		},
	}
	var sigStr string
	if err := c.call(ctx, "sendTransaction", params, &sigStr); err != nil {
		return wire.Signature{}, err
	}

	decoded := base58.Decode(sigStr)
	if len(decoded) != wire.SignatureSize {
		return wire.Signature{}, fmt.Errorf("malformed signature in response: %q", sigStr)
	}
	var sig wire.Signature
	copy(sig[:], decoded)
	log.Debugf("Submitted transaction %s", sig)
	return sig, nil
}

// Slot returns the node's current slot at the configured commitment.
func (c *RPCClient) Slot(ctx context.Context) (uint64, error) {
	var slot uint64
	params := []interface{}{map[string]interface{}{"commitment": c.cfg.Commitment}}
	if err := c.call(ctx, "getSlot", params, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// SignatureStatus is the node's view of one submitted transaction.  A nil
// Confirmations means the transaction is rooted.
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	ConfirmationStatus string          `json:"confirmationStatus"`
	Err                json.RawMessage `json:"err"`
}

// SignatureStatuses returns the status of each signature in order, with
// nil entries for signatures the node does not know.  Polling these until
// confirmation is the caller's concern.
func (c *RPCClient) SignatureStatuses(ctx context.Context, sigs []wire.Signature) ([]*SignatureStatus, error) {
	if len(sigs) == 0 {
		return nil, nil
	}
	encoded := make([]string, len(sigs))
	for i := range sigs {
		encoded[i] = sigs[i].String()
	}

	var result struct {
		Value []*SignatureStatus `json:"value"`
	}
	params := []interface{}{
		encoded,
		map[string]interface{}{"searchTransactionHistory": true},
	}
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return nil, err
	}
	if len(result.Value) != len(sigs) {
		return nil, fmt.Errorf("requested %d statuses, response carries %d",
			len(sigs), len(result.Value))
	}
	return result.Value, nil
}
