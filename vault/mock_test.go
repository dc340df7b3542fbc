package vault

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/Se7en-Seas/boring-vault-go/boringvault"
	"github.com/Se7en-Seas/boring-vault-go/chain"
	"github.com/Se7en-Seas/boring-vault-go/oracle"
	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/Se7en-Seas/boring-vault-go/signer"
	"github.com/Se7en-Seas/boring-vault-go/wire"
)

var (
	testVaultProgram = testKey(0x11)
	testQueueProgram = testKey(0x12)
	testBaseMint     = testKey(0x21)
	testShareMint    = testKey(0x22)
	testFeed         = testKey(0x31)
	testOwner        = testKey(0x42)

	testStart = time.Unix(1700000000, 0).UTC()

	testVaultID = uint64(3)
)

func testKey(b byte) pubkey.Key {
	var k pubkey.Key
	for i := range k {
		k[i] = b
	}
	return k
}

func uint64Ptr(v uint64) *uint64 {
	return &v
}

// fakeChain is an in-memory ReadClient and SubmitClient.
type fakeChain struct {
	mtx sync.Mutex

	accounts map[pubkey.Key]*chain.Account
	failing  map[pubkey.Key]error
	reads    []pubkey.Key

	anchor    chain.Anchor
	anchorErr error

	submitted [][]byte
	submitErr error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		accounts: make(map[pubkey.Key]*chain.Account),
		failing:  make(map[pubkey.Key]error),
		anchor: chain.Anchor{
			Blockhash: wire.Blockhash{0xab},
			Slot:      9000,
		},
	}
}

func (f *fakeChain) put(key pubkey.Key, data []byte) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.accounts[key] = &chain.Account{Data: data, Slot: 100}
}

func (f *fakeChain) fail(key pubkey.Key, err error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.failing[key] = err
}

func (f *fakeChain) AccountInfo(ctx context.Context, key pubkey.Key) (*chain.Account, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.reads = append(f.reads, key)
	if err, ok := f.failing[key]; ok {
		return nil, err
	}
	return f.accounts[key], nil
}

func (f *fakeChain) MultiAccountInfo(ctx context.Context, keys []pubkey.Key) ([]*chain.Account, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	accts := make([]*chain.Account, len(keys))
	for i, key := range keys {
		if err, ok := f.failing[key]; ok {
			return nil, err
		}
		accts[i] = f.accounts[key]
	}
	return accts, nil
}

func (f *fakeChain) RecentAnchor(ctx context.Context) (chain.Anchor, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.anchor, f.anchorErr
}

func (f *fakeChain) Submit(ctx context.Context, signedTx []byte) (wire.Signature, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.submitErr != nil {
		return wire.Signature{}, f.submitErr
	}
	f.submitted = append(f.submitted, append([]byte(nil), signedTx...))

	// Report the transaction's own first signature, like a real node.
	tx, err := wire.DeserializeTransaction(signedTx)
	if err != nil {
		return wire.Signature{}, err
	}
	return tx.Signatures[0], nil
}

// readCount returns how many AccountInfo calls targeted key.
func (f *fakeChain) readCount(key pubkey.Key) int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	n := 0
	for _, read := range f.reads {
		if read == key {
			n++
		}
	}
	return n
}

// fakeCranker records crank calls and serves configured instruction
// lists.
type fakeCranker struct {
	mtx sync.Mutex

	instrs      []wire.Instruction
	err         error
	calls       []pubkey.Key
	sawDeadline bool
}

func (f *fakeCranker) Crank(ctx context.Context, feed pubkey.Key, _ uint32) ([]wire.Instruction, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.calls = append(f.calls, feed)
	_, f.sawDeadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return f.instrs, nil
}

// testFixture bundles a client with the fakes behind it.
type testFixture struct {
	client  *Client
	chain   *fakeChain
	clk     *clock.TestClock
	cranker *fakeCranker
	signer  *signer.LocalSigner
}

func testSeed(b byte) []byte {
	seed := make([]byte, signer.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	return seed
}

// newFixture builds a client over fresh fakes.  mutate, when non-nil,
// adjusts the config before the client is constructed.
func newFixture(t *testing.T, mutate func(*Config)) *testFixture {
	t.Helper()

	fc := newFakeChain()
	cranker := &fakeCranker{}
	clk := clock.NewTestClock(testStart)

	sgn, err := signer.FromSeed(testSeed(0x51))
	require.NoError(t, err)

	cfg := Config{
		VaultProgram: testVaultProgram,
		QueueProgram: testQueueProgram,
		Chain:        fc,
		Submitter:    fc,
		Signer:       sgn,
		Cranker:      cranker,
		Policy:       oracle.Policy{Mode: oracle.BestEffort},
		Clock:        clk,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	client, err := NewClient(&cfg)
	require.NoError(t, err)

	return &testFixture{
		client:  client,
		chain:   fc,
		clk:     clk,
		cranker: cranker,
		signer:  sgn,
	}
}

// derive panics on failure; fixtures only derive well-formed seeds.
func derive(t *testing.T, program pubkey.Key, seeds ...[]byte) pubkey.Key {
	t.Helper()
	key, _, err := pubkey.FindProgramAddress(program, seeds...)
	require.NoError(t, err)
	return key
}

// defaultVaultConfig is the config record fixtures install unless a test
// overrides fields.
func defaultVaultConfig() *boringvault.VaultConfig {
	return &boringvault.VaultConfig{
		VaultID:            testVaultID,
		Authority:          testKey(0x41),
		ShareMint:          testShareMint,
		DepositSubAccount:  0,
		WithdrawSubAccount: 1,
	}
}

func defaultAssetData() *boringvault.AssetData {
	return &boringvault.AssetData{
		PriceFeed:      testFeed,
		Decimals:       6,
		AllowDeposits:  true,
		AllowWithdraws: true,
		MinSamples:     3,
	}
}

// installVault places the vault's control accounts into the fake chain
// and returns their addresses keyed by role.
func (f *testFixture) installVault(t *testing.T, cfg *boringvault.VaultConfig, asset *boringvault.AssetData, assetMint pubkey.Key) {
	t.Helper()

	cfgAddr, _, err := boringvault.VaultConfigAddress(f.client.deriver,
		testVaultProgram, cfg.VaultID)
	require.NoError(t, err)
	f.chain.put(cfgAddr, cfg.Encode())

	tellerAddr, _, err := boringvault.TellerAddress(f.client.deriver,
		testVaultProgram, cfg.VaultID)
	require.NoError(t, err)
	teller := &boringvault.TellerState{
		BaseAsset:         testBaseMint,
		BaseAssetDecimals: 6,
		ExchangeRate:      1047500,
	}
	f.chain.put(tellerAddr, teller.Encode())

	if asset != nil {
		assetAddr, _, err := boringvault.AssetDataAddress(f.client.deriver,
			testVaultProgram, cfg.VaultID, assetMint)
		require.NoError(t, err)
		f.chain.put(assetAddr, asset.Encode())
	}
}

// installUserState stores the owner's nonce counter.
func (f *testFixture) installUserState(t *testing.T, owner pubkey.Key, lastNonce uint64) {
	t.Helper()

	addr, _, err := boringvault.UserWithdrawStateAddress(f.client.deriver,
		testQueueProgram, owner)
	require.NoError(t, err)
	state := &boringvault.UserWithdrawState{LastNonce: lastNonce}
	f.chain.put(addr, state.Encode())
}

// installRequest stores a withdraw request account and returns its
// address.
func (f *testFixture) installRequest(t *testing.T, req *boringvault.WithdrawRequest) pubkey.Key {
	t.Helper()

	addr, _, err := boringvault.WithdrawRequestAddress(f.client.deriver,
		testQueueProgram, req.User, req.Nonce)
	require.NoError(t, err)
	f.chain.put(addr, req.Encode())
	return addr
}

// testRequest returns a request created at the fixture epoch with a one
// hour maturity and one day deadline.
func testRequest(owner pubkey.Key, nonce uint64) *boringvault.WithdrawRequest {
	return &boringvault.WithdrawRequest{
		VaultID:           testVaultID,
		AssetOut:          testBaseMint,
		ShareAmount:       1500000000,
		AssetAmount:       1571250,
		CreationTime:      uint64(testStart.Unix()),
		SecondsToMaturity: 3600,
		SecondsToDeadline: 86400,
		User:              owner,
		Nonce:             nonce,
	}
}
