// Package zero contains functions to clear data from byte slices and
// multi-precision integers.
package zero

// Bytes sets all bytes in the passed slice to zero.  This is used to
// explicitly clear secret key material from memory.  It is copied here
// so that the compiler cannot optimize the clearing away.
func Bytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Bytea32 clears the 32-byte array by filling it with the zero value.
// This is used to explicitly clear seed material from memory.
func Bytea32(b *[32]byte) {
	*b = [32]byte{}
}

// Bytea64 clears the 64-byte array by filling it with the zero value.
// This is used to explicitly clear private key material from memory.
func Bytea64(b *[64]byte) {
	*b = [64]byte{}
}
