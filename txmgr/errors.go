package txmgr

import "errors"

// ErrorCode identifies a category of error.
type ErrorCode uint8

const (
	// ErrDatabase indicates an underlying database error.
	ErrDatabase ErrorCode = iota

	// ErrData describes an error where data stored in the journal is
	// incorrect.  This may be due to missing values or wrong lengths and
	// usually indicates corruption.
	ErrData

	// ErrNoExists describes a lookup for a record that is not stored.
	ErrNoExists
)

// errCodeStrings maps each error code to its human-readable name.
var errCodeStrings = map[ErrorCode]string{
	ErrDatabase: "ErrDatabase",
	ErrData:     "ErrData",
	ErrNoExists: "ErrNoExists",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s, ok := errCodeStrings[e]; ok {
		return s
	}
	return "Unknown ErrorCode"
}

// Error provides a single type for errors that can occur in the journal.
type Error struct {
	Code        ErrorCode
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e Error) Unwrap() error {
	return e.Err
}

// storeError creates a new Error.
func storeError(c ErrorCode, desc string, err error) Error {
	return Error{Code: c, Description: desc, Err: err}
}

// IsError returns whether the error is an Error with a matching code.
func IsError(err error, code ErrorCode) bool {
	var e Error
	return errors.As(err, &e) && e.Code == code
}
