package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/btcsuite/btcd/btcutil/base58"
)

const (
	// BlockhashSize is the width of the recent anchor embedded in every
	// message.
	BlockhashSize = 32

	// MaxTransactionSize is the hard protocol ceiling on a serialized
	// transaction, signatures included.  It applies to both message
	// encodings; the versioned encoding exists to fit more accounts under
	// it, not to raise it.
	MaxTransactionSize = 1232

	// maxMessageAccounts bounds the combined account index space of one
	// message, since compiled instructions address accounts with a single
	// byte.
	maxMessageAccounts = 256
)

var (
	// ErrTooManyAccounts is returned when a message references more
	// accounts than its one-byte index space can address.
	ErrTooManyAccounts = errors.New("message references too many accounts")

	// ErrNoInstructions is returned when compiling an empty instruction
	// set.
	ErrNoInstructions = errors.New("message requires at least one instruction")
)

// Blockhash is a recent anchor: a short-lived validity token quoted from a
// recently produced block.  A transaction carrying an anchor older than the
// validity window is rejected by the network, so anchors are attached as
// late as possible.
type Blockhash [BlockhashSize]byte

// BlockhashFromBase58 parses the base58 form used by the RPC layer.
func BlockhashFromBase58(s string) (Blockhash, error) {
	var h Blockhash
	decoded := base58.Decode(s)
	if len(decoded) != BlockhashSize {
		return h, fmt.Errorf("invalid base58 blockhash %q: decoded to %d bytes, want %d",
			s, len(decoded), BlockhashSize)
	}
	copy(h[:], decoded)
	return h, nil
}

// String returns the base58 form of the blockhash.
func (h Blockhash) String() string {
	return base58.Encode(h[:])
}

// AccountMeta describes one account an instruction touches together with the
// privileges the instruction needs on it.
type AccountMeta struct {
	Key      pubkey.Key
	Signer   bool
	Writable bool
}

// Meta is a convenience constructor for a readonly non-signer account.
func Meta(key pubkey.Key) AccountMeta {
	return AccountMeta{Key: key}
}

// WritableMeta is a convenience constructor for a writable non-signer
// account.
func WritableMeta(key pubkey.Key) AccountMeta {
	return AccountMeta{Key: key, Writable: true}
}

// SignerMeta is a convenience constructor for a writable signer account.
func SignerMeta(key pubkey.Key) AccountMeta {
	return AccountMeta{Key: key, Signer: true, Writable: true}
}

// Instruction is a single program invocation: the program to call, the
// accounts it may read or write, and its opaque argument data.
type Instruction struct {
	ProgramID pubkey.Key
	Accounts  []AccountMeta
	Data      []byte
}

// MessageVersion selects the message encoding.
type MessageVersion uint8

const (
	// VersionLegacy is the original fixed encoding where every account is
	// listed inline.
	VersionLegacy MessageVersion = iota

	// VersionV0 is the versioned encoding that can address accounts
	// indirectly through on-chain lookup tables.
	VersionV0
)

// String returns the version as the name used on the wire.
func (v MessageVersion) String() string {
	switch v {
	case VersionLegacy:
		return "legacy"
	case VersionV0:
		return "v0"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(v))
	}
}

// versionV0Prefix is the first byte of a versioned message: the version
// number with the high bit set to distinguish it from a legacy message,
// whose first byte is a (small) signature count.
const versionV0Prefix = 0x80

// MessageHeader counts the signature slots and readonly accounts of a
// compiled message.  Account keys are laid out so that these three counts
// fully describe each key's privileges by position.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction is an instruction with its accounts rewritten as
// indexes into the message's combined account key space.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	AccountIndexes []uint8
	Data           []byte
}

// TableLookup references a slice of an on-chain address lookup table.  The
// indexed addresses extend the message's account key space without being
// serialized inline.
type TableLookup struct {
	Table           pubkey.Key
	WritableIndexes []uint8
	ReadonlyIndexes []uint8
}

// Message is a compiled transaction payload in either encoding.  The
// TableLookups slice is populated only for VersionV0.
type Message struct {
	Version      MessageVersion
	Header       MessageHeader
	AccountKeys  []pubkey.Key
	RecentAnchor Blockhash
	Instructions []CompiledInstruction
	TableLookups []TableLookup
}

// compiledMeta is an AccountMeta after privilege merging, ordered by first
// appearance within its privilege class.
type compiledMeta struct {
	key      pubkey.Key
	signer   bool
	writable bool
}

// collectMetas flattens payer plus all instruction accounts and program ids
// into a privilege-merged list.  The payer is pinned first; the remainder
// keeps first-appearance order and is later partitioned by privilege class.
func collectMetas(payer pubkey.Key, instrs []Instruction) []compiledMeta {
	index := make(map[pubkey.Key]int)
	metas := make([]compiledMeta, 0, 8)

	merge := func(m compiledMeta) {
		if at, ok := index[m.key]; ok {
			metas[at].signer = metas[at].signer || m.signer
			metas[at].writable = metas[at].writable || m.writable
			return
		}
		index[m.key] = len(metas)
		metas = append(metas, m)
	}

	// The payer signs and is debited fees, so it is always a writable
	// signer regardless of how instructions reference it.
	merge(compiledMeta{key: payer, signer: true, writable: true})

	for _, instr := range instrs {
		for _, account := range instr.Accounts {
			merge(compiledMeta{
				key:      account.Key,
				signer:   account.Signer,
				writable: account.Writable,
			})
		}
	}
	// Program ids are readonly non-signers and must remain inline even in
	// the versioned encoding, so they are merged after real accounts.
	for _, instr := range instrs {
		merge(compiledMeta{key: instr.ProgramID})
	}
	return metas
}

// partitionMetas orders merged metas into the canonical privilege layout:
// writable signers, readonly signers, writable non-signers, readonly
// non-signers.  collectMetas pins the payer at the head of the first class.
func partitionMetas(metas []compiledMeta) ([]compiledMeta, MessageHeader) {
	ordered := make([]compiledMeta, 0, len(metas))
	var header MessageHeader

	for _, m := range metas {
		if m.signer && m.writable {
			ordered = append(ordered, m)
		}
	}
	for _, m := range metas {
		if m.signer && !m.writable {
			ordered = append(ordered, m)
			header.NumReadonlySignedAccounts++
		}
	}
	header.NumRequiredSignatures = uint8(len(ordered))
	for _, m := range metas {
		if !m.signer && m.writable {
			ordered = append(ordered, m)
		}
	}
	for _, m := range metas {
		if !m.signer && !m.writable {
			ordered = append(ordered, m)
			header.NumReadonlyUnsignedAccounts++
		}
	}
	return ordered, header
}

// compileInstructions rewrites instruction accounts against the combined key
// space described by lookup.
func compileInstructions(instrs []Instruction, lookup map[pubkey.Key]uint8) ([]CompiledInstruction, error) {
	compiled := make([]CompiledInstruction, 0, len(instrs))
	for _, instr := range instrs {
		programIdx, ok := lookup[instr.ProgramID]
		if !ok {
			return nil, fmt.Errorf("program %s missing from account keys", instr.ProgramID)
		}
		ci := CompiledInstruction{
			ProgramIDIndex: programIdx,
			Data:           instr.Data,
		}
		for _, account := range instr.Accounts {
			idx, ok := lookup[account.Key]
			if !ok {
				return nil, fmt.Errorf("account %s missing from account keys", account.Key)
			}
			ci.AccountIndexes = append(ci.AccountIndexes, idx)
		}
		compiled = append(compiled, ci)
	}
	return compiled, nil
}

// CompileMessage builds a legacy message from the payer, anchor, and ordered
// instruction set.  Account keys are deduplicated with privileges merged and
// laid out in the canonical privilege order with the payer first.
func CompileMessage(payer pubkey.Key, anchor Blockhash, instrs []Instruction) (*Message, error) {
	if len(instrs) == 0 {
		return nil, ErrNoInstructions
	}

	ordered, header := partitionMetas(collectMetas(payer, instrs))
	if len(ordered) > maxMessageAccounts {
		return nil, ErrTooManyAccounts
	}

	keys := make([]pubkey.Key, len(ordered))
	lookup := make(map[pubkey.Key]uint8, len(ordered))
	for i, m := range ordered {
		keys[i] = m.key
		lookup[m.key] = uint8(i)
	}

	compiled, err := compileInstructions(instrs, lookup)
	if err != nil {
		return nil, err
	}

	return &Message{
		Version:      VersionLegacy,
		Header:       header,
		AccountKeys:  keys,
		RecentAnchor: anchor,
		Instructions: compiled,
	}, nil
}

// SerializeSize returns the exact serialized length of the message.
func (m *Message) SerializeSize() int {
	size := 3 // header
	if m.Version == VersionV0 {
		size++ // version prefix
	}
	size += shortVecLenSize(len(m.AccountKeys)) + len(m.AccountKeys)*pubkey.KeySize
	size += BlockhashSize
	size += shortVecLenSize(len(m.Instructions))
	for _, ci := range m.Instructions {
		size += 1 // program id index
		size += shortVecLenSize(len(ci.AccountIndexes)) + len(ci.AccountIndexes)
		size += shortVecLenSize(len(ci.Data)) + len(ci.Data)
	}
	if m.Version == VersionV0 {
		size += shortVecLenSize(len(m.TableLookups))
		for _, lu := range m.TableLookups {
			size += pubkey.KeySize
			size += shortVecLenSize(len(lu.WritableIndexes)) + len(lu.WritableIndexes)
			size += shortVecLenSize(len(lu.ReadonlyIndexes)) + len(lu.ReadonlyIndexes)
		}
	}
	return size
}

// Serialize encodes the message in its wire form.  The output is also the
// exact payload covered by transaction signatures.
func (m *Message) Serialize() ([]byte, error) {
	buf := make([]byte, 0, m.SerializeSize())
	var err error

	if m.Version == VersionV0 {
		buf = append(buf, versionV0Prefix)
	}
	buf = append(buf,
		m.Header.NumRequiredSignatures,
		m.Header.NumReadonlySignedAccounts,
		m.Header.NumReadonlyUnsignedAccounts)

	if buf, err = appendShortVecLen(buf, len(m.AccountKeys)); err != nil {
		return nil, err
	}
	for i := range m.AccountKeys {
		buf = append(buf, m.AccountKeys[i][:]...)
	}

	buf = append(buf, m.RecentAnchor[:]...)

	if buf, err = appendShortVecLen(buf, len(m.Instructions)); err != nil {
		return nil, err
	}
	for _, ci := range m.Instructions {
		buf = append(buf, ci.ProgramIDIndex)
		if buf, err = appendShortVecLen(buf, len(ci.AccountIndexes)); err != nil {
			return nil, err
		}
		buf = append(buf, ci.AccountIndexes...)
		if buf, err = appendShortVecLen(buf, len(ci.Data)); err != nil {
			return nil, err
		}
		buf = append(buf, ci.Data...)
	}

	if m.Version == VersionV0 {
		if buf, err = appendShortVecLen(buf, len(m.TableLookups)); err != nil {
			return nil, err
		}
		for _, lu := range m.TableLookups {
			buf = append(buf, lu.Table[:]...)
			if buf, err = appendShortVecLen(buf, len(lu.WritableIndexes)); err != nil {
				return nil, err
			}
			buf = append(buf, lu.WritableIndexes...)
			if buf, err = appendShortVecLen(buf, len(lu.ReadonlyIndexes)); err != nil {
				return nil, err
			}
			buf = append(buf, lu.ReadonlyIndexes...)
		}
	}
	return buf, nil
}

// DeserializeMessage decodes either message encoding.  It is primarily used
// by tests and tooling that inspect previously composed transactions.
func DeserializeMessage(raw []byte) (*Message, error) {
	r := bytes.NewReader(raw)
	msg := &Message{}

	first, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if first&versionV0Prefix != 0 {
		if first != versionV0Prefix {
			return nil, fmt.Errorf("unsupported message version %d", first&^versionV0Prefix)
		}
		msg.Version = VersionV0
		if first, err = r.ReadByte(); err != nil {
			return nil, err
		}
	}
	msg.Header.NumRequiredSignatures = first
	if msg.Header.NumReadonlySignedAccounts, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if msg.Header.NumReadonlyUnsignedAccounts, err = r.ReadByte(); err != nil {
		return nil, err
	}

	numKeys, err := readShortVecLen(r)
	if err != nil {
		return nil, err
	}
	msg.AccountKeys = make([]pubkey.Key, numKeys)
	for i := 0; i < numKeys; i++ {
		if _, err := io.ReadFull(r, msg.AccountKeys[i][:]); err != nil {
			return nil, err
		}
	}

	if _, err := io.ReadFull(r, msg.RecentAnchor[:]); err != nil {
		return nil, err
	}

	numInstrs, err := readShortVecLen(r)
	if err != nil {
		return nil, err
	}
	// Empty variable sections decode to nil so a decoded message compares
	// equal to the compiled original.
	msg.Instructions = make([]CompiledInstruction, numInstrs)
	for i := 0; i < numInstrs; i++ {
		ci := &msg.Instructions[i]
		if ci.ProgramIDIndex, err = r.ReadByte(); err != nil {
			return nil, err
		}
		if ci.AccountIndexes, err = readByteVec(r); err != nil {
			return nil, err
		}
		if ci.Data, err = readByteVec(r); err != nil {
			return nil, err
		}
	}

	if msg.Version == VersionV0 {
		numLookups, err := readShortVecLen(r)
		if err != nil {
			return nil, err
		}
		if numLookups > 0 {
			msg.TableLookups = make([]TableLookup, numLookups)
		}
		for i := 0; i < numLookups; i++ {
			lu := &msg.TableLookups[i]
			if _, err := io.ReadFull(r, lu.Table[:]); err != nil {
				return nil, err
			}
			if lu.WritableIndexes, err = readByteVec(r); err != nil {
				return nil, err
			}
			if lu.ReadonlyIndexes, err = readByteVec(r); err != nil {
				return nil, err
			}
		}
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after message", r.Len())
	}
	return msg, nil
}
