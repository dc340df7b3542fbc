package boringvault

import (
	"errors"
	"fmt"

	"github.com/Se7en-Seas/boring-vault-go/pubkey"
)

// ErrorCode identifies a kind of account decode failure.
type ErrorCode int

// These constants define the possible error codes.
const (
	// ErrWrongAccountType indicates an account's tag prefix does not match
	// the record type the caller asked for.
	ErrWrongAccountType ErrorCode = iota

	// ErrTruncatedAccount indicates an account's data is shorter than the
	// minimum size of its layout, or too short to hold a tag at all.
	ErrTruncatedAccount

	// ErrUnknownTag indicates an account's tag prefix matches no known
	// record layout.
	ErrUnknownTag
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errCodeStrings = map[ErrorCode]string{
	ErrWrongAccountType: "ErrWrongAccountType",
	ErrTruncatedAccount: "ErrTruncatedAccount",
	ErrUnknownTag:       "ErrUnknownTag",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can happen while decoding
// account data.  It carries the address the data was fetched from so decode
// failures can be traced back to the offending account.
type Error struct {
	ErrorCode   ErrorCode  // Describes the kind of error
	Address     pubkey.Key // Account the data was fetched from
	Description string     // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return fmt.Sprintf("account %s: %s", e.Address, e.Description)
}

// decodeError creates an Error given a set of arguments.
func decodeError(c ErrorCode, addr pubkey.Key, desc string) Error {
	return Error{ErrorCode: c, Address: addr, Description: desc}
}

// IsError returns whether the error is of type Error and its code matches
// the passed code.
func IsError(err error, code ErrorCode) bool {
	var e Error
	return errors.As(err, &e) && e.ErrorCode == code
}
