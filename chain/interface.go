package chain

import (
	"context"

	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/Se7en-Seas/boring-vault-go/wire"
)

// Account is one on-chain account as returned by a read client: its raw
// data, owning program, lamport balance, and the slot the read observed.
type Account struct {
	Owner    pubkey.Key
	Data     []byte
	Lamports uint64
	Slot     uint64
}

// Anchor is a recent blockhash paired with the slot it was observed at.  It
// is short-lived, so callers fetch one immediately before signing.
type Anchor struct {
	Blockhash wire.Blockhash
	Slot      uint64
}

// ReadClient fetches account state.  A nil *Account with a nil error means
// the account does not exist, which is a normal outcome for program state
// that has been closed or never created, never an error.
type ReadClient interface {
	// AccountInfo returns the account at key, or nil if it is absent.
	AccountInfo(ctx context.Context, key pubkey.Key) (*Account, error)

	// MultiAccountInfo returns the accounts at keys in order, with nil
	// entries for absent accounts.
	MultiAccountInfo(ctx context.Context, keys []pubkey.Key) ([]*Account, error)
}

// SubmitClient provides the two write-side primitives: a validity anchor
// for signing, and transaction submission.  Submission is a single round
// trip; failures propagate verbatim and are never retried here, since
// retry and confirmation policy belong to the caller.
type SubmitClient interface {
	// RecentAnchor returns a fresh anchor for transaction signing.
	RecentAnchor(ctx context.Context) (Anchor, error)

	// Submit broadcasts a fully signed transaction and returns its id.
	Submit(ctx context.Context, signedTx []byte) (wire.Signature, error)
}

// Client is the combined read and submit surface implemented by RPCClient.
type Client interface {
	ReadClient
	SubmitClient
}

// Notification types.  These are defined here and processed from reading a
// notification channel to avoid handling them directly in transport
// callbacks, which isn't very Go-like and doesn't allow blocking client
// calls.
type (
	// ClientConnected is a notification for when a subscription connection
	// is opened or reestablished to the chain server.
	ClientConnected struct{}

	// AccountChanged is a notification that a subscribed account's data
	// changed.  Account is nil if the account was closed.
	AccountChanged struct {
		Key     pubkey.Key
		Account *Account
	}

	// SubscriptionLost is a notification that the subscription connection
	// failed and no further AccountChanged notifications will arrive
	// until the client is restarted.
	SubscriptionLost struct {
		Err error
	}
)
