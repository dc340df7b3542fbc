// Package wire implements the binary transaction format accepted by the
// chain: account metadata, instructions, the legacy and the versioned
// (lookup-table addressed) message encodings, and whole-transaction
// serialization.
//
// The package is purely computational.  It performs no I/O and holds no
// state; every function is safe for concurrent use.
package wire
