package pubkey

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

const (
	// MaxSeeds is the maximum number of seeds a single derivation may use,
	// not counting the bump seed appended by FindProgramAddress.
	MaxSeeds = 16

	// MaxSeedLen is the maximum length in bytes of any single seed.
	MaxSeedLen = 32

	// MaxBumpSeed is the first bump value tried by the derivation search.
	// The search walks downward from here to zero.
	MaxBumpSeed = 255
)

// pdaMarker is the domain separation tag hashed after the program id.  It
// guarantees derivation output can never collide with any other use of
// sha256 over the same seed material.
var pdaMarker = []byte("ProgramDerivedAddress")

var (
	// ErrTooManySeeds is returned when a derivation is requested with more
	// than MaxSeeds seeds.
	ErrTooManySeeds = errors.New("too many derivation seeds")

	// ErrMaxSeedLenExceeded is returned when any single seed is longer
	// than MaxSeedLen bytes.
	ErrMaxSeedLenExceeded = errors.New("derivation seed exceeds maximum length")

	// ErrInvalidSeeds is returned by CreateProgramAddress when the hashed
	// candidate lands on the ed25519 curve and therefore cannot be used as
	// a program controlled address.
	ErrInvalidSeeds = errors.New("invalid seeds, address must fall off the curve")

	// ErrBumpSeedNotFound is returned when every bump value in
	// [0, MaxBumpSeed] produced an on-curve candidate.  The probability of
	// this for honest inputs is negligible; callers should treat it as
	// fatal rather than retryable.
	ErrBumpSeedNotFound = errors.New("unable to find a viable bump seed for derivation")
)

func validateSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return fmt.Errorf("%w: %d > %d", ErrTooManySeeds, len(seeds), MaxSeeds)
	}
	for i, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return fmt.Errorf("%w: seed %d is %d bytes", ErrMaxSeedLenExceeded,
				i, len(seed))
		}
	}
	return nil
}

// CreateProgramAddress derives the address for the given seeds and bump under
// program.  The result is sha256(seeds || bump || program || marker), valid
// only when it does not decode as an ed25519 curve point: an address with no
// possible private key, controllable exclusively by the owning program.
func CreateProgramAddress(program Key, bump uint8, seeds ...[]byte) (Key, error) {
	if err := validateSeeds(seeds); err != nil {
		return Key{}, err
	}

	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write([]byte{bump})
	h.Write(program[:])
	h.Write(pdaMarker)

	var candidate Key
	copy(candidate[:], h.Sum(nil))

	if candidate.IsOnCurve() {
		return Key{}, ErrInvalidSeeds
	}
	return candidate, nil
}

// FindProgramAddress searches bump values from MaxBumpSeed downward for the
// first off-curve address derived from seeds under program, returning the
// address and the bump that produced it.  The result is a pure function of
// its inputs: the same program and seeds always yield the same address and
// bump.
//
// ErrBumpSeedNotFound is returned if the entire bump range is exhausted,
// which is statistically unreachable for honest inputs.
func FindProgramAddress(program Key, seeds ...[]byte) (Key, uint8, error) {
	if err := validateSeeds(seeds); err != nil {
		return Key{}, 0, err
	}

	for bump := MaxBumpSeed; bump >= 0; bump-- {
		key, err := CreateProgramAddress(program, uint8(bump), seeds...)
		if err == nil {
			return key, uint8(bump), nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return Key{}, 0, err
		}
	}
	return Key{}, 0, ErrBumpSeedNotFound
}

// AssociatedTokenAddress derives the canonical token account for wallet and
// mint under the associated token program.
func AssociatedTokenAddress(wallet, mint Key) (Key, uint8, error) {
	return FindProgramAddress(AssociatedTokenProgramID,
		wallet[:], TokenProgramID[:], mint[:])
}

// defaultDeriverSize bounds the memo kept by a Deriver.  Each entry is a
// 32-byte digest key and a 33-byte result, so the default is a few tens of
// kilobytes.
const defaultDeriverSize = 512

// Deriver memoizes FindProgramAddress results.  Derivation is deterministic,
// so memoization is invisible to callers, but the downward bump search costs
// up to 256 hash-and-decompress rounds per miss, which matters on paths that
// derive the same handful of addresses per request.  A Deriver is safe for
// concurrent use.
type Deriver struct {
	cache *lru.Cache
}

// NewDeriver returns a Deriver holding at most size memoized derivations.  A
// size of zero or less selects a small default.
func NewDeriver(size int) *Deriver {
	if size <= 0 {
		size = defaultDeriverSize
	}
	// New only fails for non-positive sizes, which are rewritten above.
	cache, _ := lru.New(size)
	return &Deriver{cache: cache}
}

type derived struct {
	key  Key
	bump uint8
}

// memoKey collapses (program, seeds) into a fixed cache key.  Seed lengths
// are included so that ("ab","c") and ("a","bc") cannot collide.
func memoKey(program Key, seeds [][]byte) [sha256.Size]byte {
	h := sha256.New()
	h.Write(program[:])
	var n [4]byte
	for _, seed := range seeds {
		binary.LittleEndian.PutUint32(n[:], uint32(len(seed)))
		h.Write(n[:])
		h.Write(seed)
	}
	var out [sha256.Size]byte
	h.Sum(out[:0])
	return out
}

// Derive behaves exactly like FindProgramAddress with memoization.
func (d *Deriver) Derive(program Key, seeds ...[]byte) (Key, uint8, error) {
	mk := memoKey(program, seeds)
	if hit, ok := d.cache.Get(mk); ok {
		res := hit.(derived)
		return res.key, res.bump, nil
	}

	key, bump, err := FindProgramAddress(program, seeds...)
	if err != nil {
		return Key{}, 0, err
	}
	d.cache.Add(mk, derived{key: key, bump: bump})
	return key, bump, nil
}
