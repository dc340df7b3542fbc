// Package oracle defines the price feed freshness collaborator consumed by
// transaction composition.  A Cranker turns a feed address into the
// ordered instruction list that refreshes the feed; composition places
// those instructions strictly before any instruction that reads the feed.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/Se7en-Seas/boring-vault-go/wire"
)

// ErrUnavailable is returned by crankers that cannot produce freshness
// instructions for a feed.  Whether it aborts composition depends on the
// policy mode.
var ErrUnavailable = errors.New("oracle cranker unavailable")

// Cranker produces the ordered crank instructions that refresh feed with
// at least requiredResponses oracle samples.  Implementations must honor
// ctx: composition calls exactly once with a policy-bounded deadline.
type Cranker interface {
	Crank(ctx context.Context, feed pubkey.Key, requiredResponses uint32) ([]wire.Instruction, error)
}

// Mode selects how composition treats feed freshness.
type Mode uint8

const (
	// Disabled composes without any crank instructions.
	Disabled Mode = iota

	// BestEffort bundles crank instructions when the cranker succeeds and
	// silently proceeds without them when it fails.
	BestEffort

	// Mandatory aborts composition when the cranker fails.
	Mandatory
)

// String returns the Mode as a human-readable name.
func (m Mode) String() string {
	switch m {
	case Disabled:
		return "disabled"
	case BestEffort:
		return "best-effort"
	case Mandatory:
		return "mandatory"
	default:
		return "unknown"
	}
}

// ParseMode parses the name of a Mode as produced by String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "disabled":
		return Disabled, nil
	case "best-effort", "besteffort":
		return BestEffort, nil
	case "mandatory":
		return Mandatory, nil
	default:
		return 0, fmt.Errorf("unknown oracle mode %q", s)
	}
}

// defaultCrankTimeout bounds the cranker call when the policy does not.
const defaultCrankTimeout = 10 * time.Second

// Policy is a caller's freshness requirement for one composition.
type Policy struct {
	Mode Mode

	// Timeout bounds the single cranker call.  Zero selects a default;
	// the deadline never extends past the caller's context.
	Timeout time.Duration
}

// CrankTimeout returns the effective cranker deadline.
func (p Policy) CrankTimeout() time.Duration {
	if p.Timeout <= 0 {
		return defaultCrankTimeout
	}
	return p.Timeout
}

// NopCranker is a Cranker with no freshness source.  Every call reports
// ErrUnavailable, which composes to "no crank instructions" under a
// best-effort policy and to a hard failure under a mandatory one.
type NopCranker struct{}

// Crank implements Cranker.
func (NopCranker) Crank(context.Context, pubkey.Key, uint32) ([]wire.Instruction, error) {
	return nil, ErrUnavailable
}

// FixedCranker serves prebuilt crank instructions keyed by feed.  It backs
// offline composition and deterministic tests; feeds it does not know
// report ErrUnavailable.
type FixedCranker struct {
	feeds map[pubkey.Key][]wire.Instruction
}

// NewFixedCranker copies feeds into a cranker.  The cranker is immutable
// afterwards and safe for concurrent use.
func NewFixedCranker(feeds map[pubkey.Key][]wire.Instruction) *FixedCranker {
	copied := make(map[pubkey.Key][]wire.Instruction, len(feeds))
	for feed, instrs := range feeds {
		copied[feed] = append([]wire.Instruction(nil), instrs...)
	}
	return &FixedCranker{feeds: copied}
}

// Crank implements Cranker.
func (c *FixedCranker) Crank(ctx context.Context, feed pubkey.Key, _ uint32) ([]wire.Instruction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	instrs, ok := c.feeds[feed]
	if !ok {
		return nil, ErrUnavailable
	}
	return append([]wire.Instruction(nil), instrs...), nil
}
