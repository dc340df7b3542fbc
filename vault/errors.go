package vault

import "errors"

var (
	// ErrAccountAbsent is returned when an account a caller explicitly
	// asked about does not exist.  Reads where absence is an expected
	// outcome report it through their results instead.
	ErrAccountAbsent = errors.New("account does not exist")

	// ErrOracleRequired is returned by composition when the policy marks
	// oracle freshness mandatory and the cranker could not provide it.
	ErrOracleRequired = errors.New("oracle freshness required but unavailable")

	// ErrTransactionTooLarge is returned when a composed transaction
	// exceeds the protocol size ceiling even in the table-addressed
	// encoding.
	ErrTransactionTooLarge = errors.New("transaction exceeds protocol size limit")

	// ErrVaultPaused rejects deposits against a paused vault before any
	// transaction is built.
	ErrVaultPaused = errors.New("vault is paused")

	// ErrDepositsDisabled rejects deposits of an asset the vault does
	// not currently accept.
	ErrDepositsDisabled = errors.New("asset is not accepting deposits")

	// ErrWithdrawsDisabled rejects withdraw requests into an asset the
	// vault does not currently pay out.
	ErrWithdrawsDisabled = errors.New("asset is not accepting withdraws")

	// ErrRequestNotFound is returned when a withdraw request account has
	// already been fulfilled or cancelled, or never existed.
	ErrRequestNotFound = errors.New("withdraw request does not exist")

	// ErrRequestNotReady rejects fulfilling a request that has not
	// matured yet.
	ErrRequestNotReady = errors.New("withdraw request has not matured")

	// ErrRequestExpired rejects fulfilling a request past its deadline.
	ErrRequestExpired = errors.New("withdraw request deadline has passed")

	// ErrNotAuthority rejects authority-gated actions signed by a key
	// other than the vault's configured authority.
	ErrNotAuthority = errors.New("key is not the vault authority")

	// ErrNoSigner is returned by operations that need a signature when
	// the client was built without a signer.
	ErrNoSigner = errors.New("no signer configured")

	// ErrNoSubmitter is returned by operations that need the network
	// when the client was built without a submit client.
	ErrNoSubmitter = errors.New("no submit client configured")

	// ErrNoFeePayer is returned by composition when neither a fee payer
	// nor a signer is configured.
	ErrNoFeePayer = errors.New("no fee payer configured")
)
