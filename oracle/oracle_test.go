package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/Se7en-Seas/boring-vault-go/wire"
)

func testKey(b byte) pubkey.Key {
	var k pubkey.Key
	for i := range k {
		k[i] = b
	}
	return k
}

func TestNopCrankerUnavailable(t *testing.T) {
	_, err := NopCranker{}.Crank(context.Background(), testKey(1), 3)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Crank error = %v, want %v", err, ErrUnavailable)
	}
}

func TestFixedCrankerKnownFeed(t *testing.T) {
	feed := testKey(1)
	instr := wire.Instruction{
		ProgramID: testKey(2),
		Accounts:  []wire.AccountMeta{wire.WritableMeta(feed)},
		Data:      []byte{1, 2, 3},
	}
	c := NewFixedCranker(map[pubkey.Key][]wire.Instruction{
		feed: {instr},
	})

	got, err := c.Crank(context.Background(), feed, 1)
	if err != nil {
		t.Fatalf("Crank: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Crank returned %d instructions, want 1", len(got))
	}
	if got[0].ProgramID != instr.ProgramID {
		t.Errorf("program = %v, want %v", got[0].ProgramID, instr.ProgramID)
	}

	// The returned slice must not alias the configured one.
	got[0] = wire.Instruction{}
	again, err := c.Crank(context.Background(), feed, 1)
	if err != nil {
		t.Fatalf("Crank: %v", err)
	}
	if again[0].ProgramID != instr.ProgramID {
		t.Error("configured instructions were mutated through a returned slice")
	}
}

func TestFixedCrankerUnknownFeed(t *testing.T) {
	c := NewFixedCranker(nil)
	_, err := c.Crank(context.Background(), testKey(9), 1)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Crank error = %v, want %v", err, ErrUnavailable)
	}
}

func TestFixedCrankerCanceledContext(t *testing.T) {
	feed := testKey(1)
	c := NewFixedCranker(map[pubkey.Key][]wire.Instruction{feed: nil})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Crank(ctx, feed, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Crank error = %v, want %v", err, context.Canceled)
	}
}

func TestPolicyCrankTimeout(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		want   time.Duration
	}{
		{"default", Policy{Mode: BestEffort}, defaultCrankTimeout},
		{"explicit", Policy{Mode: Mandatory, Timeout: time.Second}, time.Second},
		{"negative", Policy{Mode: Mandatory, Timeout: -time.Second}, defaultCrankTimeout},
	}
	for _, test := range tests {
		if got := test.policy.CrankTimeout(); got != test.want {
			t.Errorf("%s: CrankTimeout = %v, want %v", test.name, got, test.want)
		}
	}
}

func TestModeString(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{Disabled, "disabled"},
		{BestEffort, "best-effort"},
		{Mandatory, "mandatory"},
		{Mode(250), "unknown"},
	}
	for _, test := range tests {
		if got := test.mode.String(); got != test.want {
			t.Errorf("Mode(%d).String() = %q, want %q", test.mode, got, test.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, mode := range []Mode{Disabled, BestEffort, Mandatory} {
		got, err := ParseMode(mode.String())
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", mode.String(), err)
		}
		if got != mode {
			t.Errorf("ParseMode(%q) = %v, want %v", mode.String(), got, mode)
		}
	}
	if _, err := ParseMode("sometimes"); err == nil {
		t.Error("ParseMode accepted an unknown mode name")
	}
}
