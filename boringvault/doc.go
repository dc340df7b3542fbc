/*
Package boringvault binds the on-chain vault program and its withdraw queue
companion: account record layouts and their decoders, the seed derivations
for every program-owned address, and the instruction builders for each
supported action.

All records share one binary convention: an 8 byte layout tag followed by
little-endian fields at fixed offsets.  Decoding is total once the tag and
minimum length checks pass, copies out of the input buffer, and never
mutates or retains it.  Every function here is pure and safe for concurrent
use.
*/
package boringvault
