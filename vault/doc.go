/*
Package vault provides the high-level client for the vault and withdraw
queue programs.

The Client is built from explicit collaborators: a read client for
account state, a submit client for anchors and transaction submission, a
signer, an oracle cranker, and a clock.  Each can be replaced with a fake
in tests, and read-only clients can simply omit the write-side pieces.

Listing a user's withdraw requests walks the nonce window below the
user's stored counter with bounded concurrent reads; request accounts
that have since been fulfilled or cancelled are skipped, and a request's
maturity status is always derived from the clock rather than stored.

Composition turns one program action into an unsigned transaction.
Oracle crank instructions for every price feed the action reads are
placed strictly before the action's own instructions, the transaction is
sized against the protocol ceiling (falling back to the table-addressed
encoding when the simple one does not fit), and the recent anchor is
attached only at finalization so its validity window is spent on the
network, not in the process.
*/
package vault
