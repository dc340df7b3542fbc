package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/btcsuite/btcd/btcutil/base58"
)

// SignatureSize is the width of one ed25519 signature.
const SignatureSize = 64

// Signature is a detached ed25519 signature over a serialized message.
type Signature [SignatureSize]byte

// String returns the base58 form of the signature, which doubles as the
// transaction id once the payer's signature is in slot zero.
func (s Signature) String() string {
	return base58.Encode(s[:])
}

// SignatureFromBase58 parses the base58 form used by the RPC layer.
func SignatureFromBase58(str string) (Signature, error) {
	var s Signature
	decoded := base58.Decode(str)
	if len(decoded) != SignatureSize {
		return s, fmt.Errorf("invalid base58 signature %q: decoded to %d bytes, want %d",
			str, len(decoded), SignatureSize)
	}
	copy(s[:], decoded)
	return s, nil
}

// IsZero reports whether the signature slot is still unfilled.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

var (
	// ErrUnknownSigner is returned when a signature is offered for a key
	// that holds no signature slot in the message.
	ErrUnknownSigner = errors.New("key is not a required signer")

	// ErrMissingSignatures is returned when serializing a transaction
	// whose signature slots are not all filled.
	ErrMissingSignatures = errors.New("transaction is missing signatures")
)

// Transaction pairs a compiled message with its signature slots.  Slot i
// belongs to account key i; the payer therefore always signs slot zero.
type Transaction struct {
	Message    *Message
	Signatures []Signature
}

// NewTransaction wraps a compiled message with empty signature slots.
func NewTransaction(msg *Message) *Transaction {
	return &Transaction{
		Message:    msg,
		Signatures: make([]Signature, msg.Header.NumRequiredSignatures),
	}
}

// SetRecentAnchor stamps a fresh anchor into the message.  Existing
// signatures covered the old anchor, so all slots are cleared.
func (tx *Transaction) SetRecentAnchor(anchor Blockhash) {
	tx.Message.RecentAnchor = anchor
	for i := range tx.Signatures {
		tx.Signatures[i] = Signature{}
	}
}

// SigningPayload returns the exact bytes each signer must sign.
func (tx *Transaction) SigningPayload() ([]byte, error) {
	return tx.Message.Serialize()
}

// AddSignature stores sig in the slot belonging to signer.
func (tx *Transaction) AddSignature(signer pubkey.Key, sig Signature) error {
	n := int(tx.Message.Header.NumRequiredSignatures)
	for i := 0; i < n && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i] == signer {
			tx.Signatures[i] = sig
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownSigner, signer)
}

// IsFullySigned reports whether every signature slot is filled.
func (tx *Transaction) IsFullySigned() bool {
	for i := range tx.Signatures {
		if tx.Signatures[i].IsZero() {
			return false
		}
	}
	return len(tx.Signatures) > 0
}

// ID returns the transaction id, the base58 of the slot zero signature.
// Empty until the payer has signed.
func (tx *Transaction) ID() string {
	if len(tx.Signatures) == 0 || tx.Signatures[0].IsZero() {
		return ""
	}
	return tx.Signatures[0].String()
}

// SerializeSize returns the exact serialized length, signatures included.
// It is valid before signing, which lets composition measure a candidate
// transaction against the size ceiling without a usable anchor.
func (tx *Transaction) SerializeSize() int {
	return shortVecLenSize(len(tx.Signatures)) +
		len(tx.Signatures)*SignatureSize +
		tx.Message.SerializeSize()
}

// Serialize encodes the transaction in its wire form.  All signature slots
// must be filled.
func (tx *Transaction) Serialize() ([]byte, error) {
	if !tx.IsFullySigned() {
		return nil, ErrMissingSignatures
	}
	return tx.serialize()
}

func (tx *Transaction) serialize() ([]byte, error) {
	buf := make([]byte, 0, tx.SerializeSize())
	buf, err := appendShortVecLen(buf, len(tx.Signatures))
	if err != nil {
		return nil, err
	}
	for i := range tx.Signatures {
		buf = append(buf, tx.Signatures[i][:]...)
	}
	msg, err := tx.Message.Serialize()
	if err != nil {
		return nil, err
	}
	return append(buf, msg...), nil
}

// DeserializeTransaction decodes a serialized transaction.
func DeserializeTransaction(raw []byte) (*Transaction, error) {
	r := bytes.NewReader(raw)
	numSigs, err := readShortVecLen(r)
	if err != nil {
		return nil, err
	}
	sigs := make([]Signature, numSigs)
	for i := 0; i < numSigs; i++ {
		if _, err := io.ReadFull(r, sigs[i][:]); err != nil {
			return nil, err
		}
	}
	rest := make([]byte, r.Len())
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	msg, err := DeserializeMessage(rest)
	if err != nil {
		return nil, err
	}
	return &Transaction{Message: msg, Signatures: sigs}, nil
}
