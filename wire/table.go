package wire

import (
	"encoding/binary"
	"errors"

	"github.com/Se7en-Seas/boring-vault-go/pubkey"
)

// addressTableMetaSize is the fixed prefix of a lookup table account:
//
//	u32  discriminator (1)
//	u64  deactivation_slot
//	u64  last_extended_slot
//	u8   last_extended_slot_start_index
//	u8   has_authority (0|1)
//	[32] authority (all zero when has_authority=0)
//	[2]  padding
//
// The remaining bytes are the stored addresses, 32 bytes each.
const addressTableMetaSize = 56

// addressTableDiscriminator marks an initialized lookup table account.
const addressTableDiscriminator = 1

// maxTableAddresses is the protocol cap on addresses in one lookup table.
const maxTableAddresses = 256

// ErrInvalidAddressTable is returned when account data does not parse as an
// initialized address lookup table.
var ErrInvalidAddressTable = errors.New("invalid address lookup table")

// AddressTable is the parsed form of an on-chain address lookup table: the
// table's own address plus the addresses it stores, in slot order.
type AddressTable struct {
	Key       pubkey.Key
	Addresses []pubkey.Key
}

// ParseAddressTable parses raw lookup table account data fetched from the
// chain.  Deactivated tables still parse; callers that care about
// deactivation should avoid passing them in.
func ParseAddressTable(key pubkey.Key, data []byte) (*AddressTable, error) {
	if len(data) < addressTableMetaSize {
		return nil, ErrInvalidAddressTable
	}
	if binary.LittleEndian.Uint32(data[0:4]) != addressTableDiscriminator {
		return nil, ErrInvalidAddressTable
	}
	if (len(data)-addressTableMetaSize)%pubkey.KeySize != 0 {
		return nil, ErrInvalidAddressTable
	}
	n := (len(data) - addressTableMetaSize) / pubkey.KeySize
	if n > maxTableAddresses {
		return nil, ErrInvalidAddressTable
	}
	table := &AddressTable{
		Key:       key,
		Addresses: make([]pubkey.Key, 0, n),
	}
	off := addressTableMetaSize
	for i := 0; i < n; i++ {
		var addr pubkey.Key
		copy(addr[:], data[off:off+pubkey.KeySize])
		table.Addresses = append(table.Addresses, addr)
		off += pubkey.KeySize
	}
	return table, nil
}

// tableSlot locates one address within the provided table set.
type tableSlot struct {
	table int
	index uint8
}

// indexTables maps each table address to its first occurrence across the
// provided tables.
func indexTables(tables []AddressTable) map[pubkey.Key]tableSlot {
	slots := make(map[pubkey.Key]tableSlot)
	for ti, table := range tables {
		for ai, addr := range table.Addresses {
			if ai >= maxTableAddresses {
				break
			}
			if _, ok := slots[addr]; ok {
				continue
			}
			slots[addr] = tableSlot{table: ti, index: uint8(ai)}
		}
	}
	return slots
}

// CompileV0Message builds a versioned message, moving every account it can
// into the provided lookup tables.  Signers and program ids always stay
// inline; any non-signer account found in a table is referenced through it
// instead of being serialized.  Tables that end up unused are omitted from
// the message.
func CompileV0Message(payer pubkey.Key, anchor Blockhash, instrs []Instruction, tables []AddressTable) (*Message, error) {
	if len(instrs) == 0 {
		return nil, ErrNoInstructions
	}

	metas := collectMetas(payer, instrs)
	slots := indexTables(tables)

	programIDs := make(map[pubkey.Key]struct{}, len(instrs))
	for _, instr := range instrs {
		programIDs[instr.ProgramID] = struct{}{}
	}

	static := make([]compiledMeta, 0, len(metas))
	looked := make([]compiledMeta, 0, len(metas))
	for _, m := range metas {
		_, isProgram := programIDs[m.key]
		_, inTable := slots[m.key]
		if m.signer || isProgram || !inTable {
			static = append(static, m)
			continue
		}
		looked = append(looked, m)
	}

	ordered, header := partitionMetas(static)

	// Loaded addresses extend the key space after the static keys: first
	// every table's writable list, then every table's readonly list, both
	// in table order.
	type lookupBuild struct {
		writable []uint8
		readonly []uint8
		loadedW  []pubkey.Key
		loadedR  []pubkey.Key
	}
	builds := make([]lookupBuild, len(tables))
	for _, m := range looked {
		slot := slots[m.key]
		b := &builds[slot.table]
		if m.writable {
			b.writable = append(b.writable, slot.index)
			b.loadedW = append(b.loadedW, m.key)
		} else {
			b.readonly = append(b.readonly, slot.index)
			b.loadedR = append(b.loadedR, m.key)
		}
	}

	total := len(ordered) + len(looked)
	if total > maxMessageAccounts {
		return nil, ErrTooManyAccounts
	}

	keys := make([]pubkey.Key, len(ordered))
	lookup := make(map[pubkey.Key]uint8, total)
	for i, m := range ordered {
		keys[i] = m.key
		lookup[m.key] = uint8(i)
	}
	next := len(ordered)
	for _, b := range builds {
		for _, key := range b.loadedW {
			lookup[key] = uint8(next)
			next++
		}
	}
	for _, b := range builds {
		for _, key := range b.loadedR {
			lookup[key] = uint8(next)
			next++
		}
	}

	compiled, err := compileInstructions(instrs, lookup)
	if err != nil {
		return nil, err
	}

	var lookups []TableLookup
	for ti, b := range builds {
		if len(b.writable) == 0 && len(b.readonly) == 0 {
			continue
		}
		lookups = append(lookups, TableLookup{
			Table:           tables[ti].Key,
			WritableIndexes: b.writable,
			ReadonlyIndexes: b.readonly,
		})
	}

	return &Message{
		Version:      VersionV0,
		Header:       header,
		AccountKeys:  keys,
		RecentAnchor: anchor,
		Instructions: compiled,
		TableLookups: lookups,
	}, nil
}
