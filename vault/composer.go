package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/Se7en-Seas/boring-vault-go/oracle"
	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/Se7en-Seas/boring-vault-go/txmgr"
	"github.com/Se7en-Seas/boring-vault-go/wire"
)

// FeedRequirement names a price feed an action's instructions read and
// the sample count the feed needs refreshed.
type FeedRequirement struct {
	Feed       pubkey.Key
	MinSamples uint32
}

// Resolved is the outcome of resolving an action: its ordered base
// instructions, the feeds they read, and the identifiers the submission
// journal records.
type Resolved struct {
	// Kind names the action, such as "deposit".
	Kind string

	// VaultID is the vault the action targets.
	VaultID uint64

	// User is the acting key.
	User pubkey.Key

	// Nonce identifies the withdraw request the action creates or
	// consumes; HasNonce reports whether it is meaningful.
	Nonce    uint64
	HasNonce bool

	// Instructions is the action's ordered base instruction set.
	Instructions []wire.Instruction

	// Feeds lists the price feeds the instructions read.  Crank
	// instructions for them are placed before Instructions.
	Feeds []FeedRequirement
}

// Action resolves one program operation into instructions.  Resolution
// may read chain state through the client, such as the vault's current
// sub-account indexes or the owner's next nonce.
type Action interface {
	Resolve(ctx context.Context, c *Client) (*Resolved, error)
}

// Prepared pairs an unsigned transaction with the resolution it was
// composed from.  The transaction carries a zero anchor until Finalize
// attaches a fresh one.
type Prepared struct {
	Tx       *wire.Transaction
	Resolved *Resolved

	// AnchorSlot is the slot of the anchor attached by Finalize.
	AnchorSlot uint64
}

// Compose resolves action and builds its unsigned transaction under the
// client's configured freshness policy.
//
// Crank instructions for every feed the action reads are placed strictly
// before the action's own instructions.  Crank failure is swallowed
// under a best-effort policy and aborts with ErrOracleRequired under a
// mandatory one.  The transaction uses the simple encoding when it fits
// the protocol ceiling and otherwise routes repeated accounts through
// the configured lookup tables; if it still does not fit, Compose fails
// with ErrTransactionTooLarge.
func (c *Client) Compose(ctx context.Context, action Action) (*Prepared, error) {
	return c.ComposeWithPolicy(ctx, action, c.cfg.Policy)
}

// ComposeWithPolicy is Compose with the freshness policy overridden for
// this one transaction.
func (c *Client) ComposeWithPolicy(ctx context.Context, action Action, policy oracle.Policy) (*Prepared, error) {
	resolved, err := action.Resolve(ctx, c)
	if err != nil {
		return nil, err
	}
	if c.cfg.FeePayer.IsZero() {
		return nil, ErrNoFeePayer
	}

	crank, err := c.crankInstructions(ctx, policy, resolved.Feeds)
	if err != nil {
		return nil, err
	}

	instrs := make([]wire.Instruction, 0, len(crank)+len(resolved.Instructions))
	instrs = append(instrs, crank...)
	instrs = append(instrs, resolved.Instructions...)

	tx, err := c.encode(instrs)
	if err != nil {
		return nil, err
	}
	log.Debugf("Composed %s transaction: %d instructions, %d bytes, "+
		"version %v", resolved.Kind, len(instrs), tx.SerializeSize(),
		tx.Message.Version)
	return &Prepared{Tx: tx, Resolved: resolved}, nil
}

// crankInstructions asks the cranker for freshness instructions for each
// distinct feed, honoring the passed policy.
func (c *Client) crankInstructions(ctx context.Context, policy oracle.Policy, feeds []FeedRequirement) ([]wire.Instruction, error) {
	if policy.Mode == oracle.Disabled || len(feeds) == 0 {
		return nil, nil
	}

	crankCtx, cancel := context.WithTimeout(ctx, policy.CrankTimeout())
	defer cancel()

	var (
		crank []wire.Instruction
		seen  = make(map[pubkey.Key]struct{}, len(feeds))
	)
	for _, feed := range feeds {
		if _, ok := seen[feed.Feed]; ok {
			continue
		}
		seen[feed.Feed] = struct{}{}

		instrs, err := c.cranker.Crank(crankCtx, feed.Feed, feed.MinSamples)
		if err != nil {
			if policy.Mode == oracle.Mandatory {
				return nil, fmt.Errorf("%w: feed %s: %v",
					ErrOracleRequired, feed.Feed, err)
			}
			log.Warnf("Composing without freshness for feed %v: %v",
				feed.Feed, err)
			continue
		}
		crank = append(crank, instrs...)
	}
	return crank, nil
}

// encode compiles instrs into the smallest encoding that fits the
// protocol ceiling.  The anchor is left zero for Finalize.
func (c *Client) encode(instrs []wire.Instruction) (*wire.Transaction, error) {
	msg, err := wire.CompileMessage(c.cfg.FeePayer, wire.Blockhash{}, instrs)
	switch {
	case errors.Is(err, wire.ErrTooManyAccounts):
		// Only the table-addressed encoding can carry this many
		// accounts.
	case err != nil:
		return nil, err
	default:
		tx := wire.NewTransaction(msg)
		if tx.SerializeSize() <= wire.MaxTransactionSize {
			return tx, nil
		}
	}

	if len(c.cfg.Tables) == 0 {
		return nil, fmt.Errorf("%w: no lookup tables configured",
			ErrTransactionTooLarge)
	}
	msg, err = wire.CompileV0Message(c.cfg.FeePayer, wire.Blockhash{},
		instrs, c.cfg.Tables)
	if err != nil {
		return nil, err
	}
	tx := wire.NewTransaction(msg)
	if size := tx.SerializeSize(); size > wire.MaxTransactionSize {
		return nil, fmt.Errorf("%w: %d bytes after table substitution",
			ErrTransactionTooLarge, size)
	}
	return tx, nil
}

// Finalize attaches a freshly fetched anchor and the fee payer's
// signature.  It is kept separate from Compose so the anchor's short
// validity window starts as late as possible.  Signatures the configured
// signer cannot provide must be added by the caller through
// Tx.AddSignature before Submit.
func (c *Client) Finalize(ctx context.Context, p *Prepared) error {
	if c.cfg.Submitter == nil {
		return ErrNoSubmitter
	}
	if c.cfg.Signer == nil {
		return ErrNoSigner
	}

	anchor, err := c.cfg.Submitter.RecentAnchor(ctx)
	if err != nil {
		return fmt.Errorf("fetch recent anchor: %w", err)
	}
	p.Tx.SetRecentAnchor(anchor.Blockhash)
	p.AnchorSlot = anchor.Slot

	payload, err := p.Tx.SigningPayload()
	if err != nil {
		return err
	}
	sig, err := c.cfg.Signer.Sign(payload)
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	return p.Tx.AddSignature(c.cfg.Signer.Key(), sig)
}

// Submit serializes the fully signed transaction and hands it to the
// network, journaling the submission when a journal is configured.
// Submission errors propagate verbatim; no retries are attempted.
func (c *Client) Submit(ctx context.Context, p *Prepared) (wire.Signature, error) {
	if c.cfg.Submitter == nil {
		return wire.Signature{}, ErrNoSubmitter
	}

	raw, err := p.Tx.Serialize()
	if err != nil {
		return wire.Signature{}, err
	}
	sig, err := c.cfg.Submitter.Submit(ctx, raw)
	if err != nil {
		return wire.Signature{}, err
	}
	log.Infof("Submitted %s transaction %v", p.Resolved.Kind, sig)

	if c.cfg.Journal != nil {
		err := c.cfg.Journal.RecordSubmission(&txmgr.Record{
			Signature:  sig,
			Kind:       p.Resolved.Kind,
			VaultID:    p.Resolved.VaultID,
			User:       p.Resolved.User,
			Nonce:      p.Resolved.Nonce,
			HasNonce:   p.Resolved.HasNonce,
			AnchorSlot: p.AnchorSlot,
		})
		if err != nil {
			// The transaction is already on the network; a journal
			// fault must not turn success into failure.
			log.Warnf("Failed to journal transaction %v: %v", sig, err)
		}
	}
	return sig, nil
}

// Perform composes, finalizes, and submits action in one call.
func (c *Client) Perform(ctx context.Context, action Action) (wire.Signature, error) {
	p, err := c.Compose(ctx, action)
	if err != nil {
		return wire.Signature{}, err
	}
	if err := c.Finalize(ctx, p); err != nil {
		return wire.Signature{}, err
	}
	return c.Submit(ctx, p)
}
