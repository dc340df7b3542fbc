package wire

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Se7en-Seas/boring-vault-go/pubkey"
)

// testKey builds a distinct key from a fill byte.  Wire compilation never
// inspects curve membership, so synthetic keys are fine here.
func testKey(b byte) pubkey.Key {
	var k pubkey.Key
	for i := range k {
		k[i] = b
	}
	return k
}

func testAnchor(b byte) Blockhash {
	var h Blockhash
	for i := range h {
		h[i] = b
	}
	return h
}

// TestCompileMessageOrdering checks the canonical account layout: payer
// first, then remaining writable signers, readonly signers, writable
// non-signers, readonly non-signers, with program ids trailing the readonly
// class.
func TestCompileMessageOrdering(t *testing.T) {
	payer := testKey(0x01)
	writableSigner := testKey(0x02)
	readonlySigner := testKey(0x03)
	writableAccount := testKey(0x04)
	readonlyAccount := testKey(0x05)
	program := testKey(0x09)

	msg, err := CompileMessage(payer, testAnchor(0xaa), []Instruction{{
		ProgramID: program,
		Accounts: []AccountMeta{
			{Key: readonlyAccount},
			{Key: writableSigner, Signer: true, Writable: true},
			{Key: readonlySigner, Signer: true},
			{Key: writableAccount, Writable: true},
		},
		Data: []byte{1, 2, 3},
	}})
	if err != nil {
		t.Fatalf("CompileMessage: %v", err)
	}

	wantKeys := []pubkey.Key{
		payer, writableSigner, readonlySigner,
		writableAccount, readonlyAccount, program,
	}
	if !reflect.DeepEqual(msg.AccountKeys, wantKeys) {
		t.Fatalf("account keys = %v, want %v", msg.AccountKeys, wantKeys)
	}

	wantHeader := MessageHeader{
		NumRequiredSignatures:       3,
		NumReadonlySignedAccounts:   1,
		NumReadonlyUnsignedAccounts: 2,
	}
	if msg.Header != wantHeader {
		t.Fatalf("header = %+v, want %+v", msg.Header, wantHeader)
	}

	wantInstr := CompiledInstruction{
		ProgramIDIndex: 5,
		AccountIndexes: []uint8{4, 1, 2, 3},
		Data:           []byte{1, 2, 3},
	}
	if len(msg.Instructions) != 1 || !reflect.DeepEqual(msg.Instructions[0], wantInstr) {
		t.Fatalf("instructions = %+v, want %+v", msg.Instructions, wantInstr)
	}
}

// TestCompileMessagePrivilegeMerge checks that duplicate references to one
// account union their privileges instead of duplicating the key.
func TestCompileMessagePrivilegeMerge(t *testing.T) {
	payer := testKey(0x01)
	shared := testKey(0x06)
	program := testKey(0x09)

	msg, err := CompileMessage(payer, testAnchor(0xaa), []Instruction{
		{
			ProgramID: program,
			Accounts: []AccountMeta{
				{Key: shared},
				{Key: payer}, // readonly reference must not demote the payer
			},
		},
		{
			ProgramID: program,
			Accounts:  []AccountMeta{{Key: shared, Writable: true}},
		},
	})
	if err != nil {
		t.Fatalf("CompileMessage: %v", err)
	}

	wantKeys := []pubkey.Key{payer, shared, program}
	if !reflect.DeepEqual(msg.AccountKeys, wantKeys) {
		t.Fatalf("account keys = %v, want %v", msg.AccountKeys, wantKeys)
	}
	if msg.Header.NumRequiredSignatures != 1 {
		t.Errorf("required signatures = %d, want 1", msg.Header.NumRequiredSignatures)
	}
	// shared merged to writable non-signer, so only the program is
	// readonly unsigned.
	if msg.Header.NumReadonlyUnsignedAccounts != 1 {
		t.Errorf("readonly unsigned = %d, want 1", msg.Header.NumReadonlyUnsignedAccounts)
	}
}

func TestCompileMessageEmpty(t *testing.T) {
	_, err := CompileMessage(testKey(0x01), Blockhash{}, nil)
	if !errors.Is(err, ErrNoInstructions) {
		t.Fatalf("error = %v, want %v", err, ErrNoInstructions)
	}
}

func TestMessageSerializeRoundTrip(t *testing.T) {
	payer := testKey(0x01)
	program := testKey(0x09)

	msg, err := CompileMessage(payer, testAnchor(0xbb), []Instruction{{
		ProgramID: program,
		Accounts: []AccountMeta{
			{Key: testKey(0x02), Signer: true, Writable: true},
			{Key: testKey(0x03), Writable: true},
		},
		Data: []byte{0xde, 0xad, 0xbe, 0xef},
	}})
	if err != nil {
		t.Fatalf("CompileMessage: %v", err)
	}

	raw, err := msg.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if len(raw) != msg.SerializeSize() {
		t.Fatalf("serialized %d bytes, SerializeSize reports %d",
			len(raw), msg.SerializeSize())
	}

	decoded, err := DeserializeMessage(raw)
	if err != nil {
		t.Fatalf("DeserializeMessage: %v", err)
	}
	if !reflect.DeepEqual(decoded, msg) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, msg)
	}
}

// TestCompileV0Message checks that table-resident non-signers move into
// lookups while signers, program ids, and unknown accounts stay inline.
func TestCompileV0Message(t *testing.T) {
	payer := testKey(0x01)
	writableAccount := testKey(0x04)
	readonlyAccount := testKey(0x05)
	inlineAccount := testKey(0x06) // absent from every table
	program := testKey(0x09)

	usedTable := AddressTable{
		Key: testKey(0x20),
		Addresses: []pubkey.Key{
			testKey(0x30), // unused filler
			writableAccount,
			readonlyAccount,
		},
	}
	unusedTable := AddressTable{
		Key:       testKey(0x21),
		Addresses: []pubkey.Key{testKey(0x31)},
	}

	msg, err := CompileV0Message(payer, testAnchor(0xcc), []Instruction{{
		ProgramID: program,
		Accounts: []AccountMeta{
			{Key: writableAccount, Writable: true},
			{Key: readonlyAccount},
			{Key: inlineAccount},
		},
	}}, []AddressTable{usedTable, unusedTable})
	if err != nil {
		t.Fatalf("CompileV0Message: %v", err)
	}

	if msg.Version != VersionV0 {
		t.Fatalf("version = %d, want %d", msg.Version, VersionV0)
	}
	wantStatic := []pubkey.Key{payer, inlineAccount, program}
	if !reflect.DeepEqual(msg.AccountKeys, wantStatic) {
		t.Fatalf("static keys = %v, want %v", msg.AccountKeys, wantStatic)
	}
	wantLookups := []TableLookup{{
		Table:           usedTable.Key,
		WritableIndexes: []uint8{1},
		ReadonlyIndexes: []uint8{2},
	}}
	if !reflect.DeepEqual(msg.TableLookups, wantLookups) {
		t.Fatalf("lookups = %+v, want %+v", msg.TableLookups, wantLookups)
	}

	// Combined key space: 3 static, then loaded writable, then loaded
	// readonly.
	wantIndexes := []uint8{3, 4, 1}
	if !reflect.DeepEqual(msg.Instructions[0].AccountIndexes, wantIndexes) {
		t.Fatalf("account indexes = %v, want %v",
			msg.Instructions[0].AccountIndexes, wantIndexes)
	}

	raw, err := msg.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if raw[0] != versionV0Prefix {
		t.Fatalf("first byte = %#x, want %#x", raw[0], versionV0Prefix)
	}
	if len(raw) != msg.SerializeSize() {
		t.Fatalf("serialized %d bytes, SerializeSize reports %d",
			len(raw), msg.SerializeSize())
	}
	decoded, err := DeserializeMessage(raw)
	if err != nil {
		t.Fatalf("DeserializeMessage: %v", err)
	}
	if !reflect.DeepEqual(decoded, msg) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, msg)
	}
}

// TestCompileV0SmallerThanLegacy is the point of the versioned encoding:
// with enough table-resident accounts the v0 form must serialize smaller
// than the legacy form of the same instruction set.
func TestCompileV0SmallerThanLegacy(t *testing.T) {
	payer := testKey(0x01)
	program := testKey(0x09)

	var accounts []AccountMeta
	var addrs []pubkey.Key
	for i := byte(0); i < 20; i++ {
		k := testKey(0x40 + i)
		accounts = append(accounts, AccountMeta{Key: k, Writable: i%2 == 0})
		addrs = append(addrs, k)
	}
	instrs := []Instruction{{ProgramID: program, Accounts: accounts}}
	table := AddressTable{Key: testKey(0x20), Addresses: addrs}

	legacy, err := CompileMessage(payer, testAnchor(0xdd), instrs)
	if err != nil {
		t.Fatalf("CompileMessage: %v", err)
	}
	v0, err := CompileV0Message(payer, testAnchor(0xdd), instrs, []AddressTable{table})
	if err != nil {
		t.Fatalf("CompileV0Message: %v", err)
	}
	if v0.SerializeSize() >= legacy.SerializeSize() {
		t.Fatalf("v0 size %d not smaller than legacy size %d",
			v0.SerializeSize(), legacy.SerializeSize())
	}
}

func TestParseAddressTable(t *testing.T) {
	valid := make([]byte, addressTableMetaSize+2*pubkey.KeySize)
	valid[0] = addressTableDiscriminator
	addr1 := testKey(0x51)
	addr2 := testKey(0x52)
	copy(valid[addressTableMetaSize:], addr1[:])
	copy(valid[addressTableMetaSize+pubkey.KeySize:], addr2[:])

	tableKey := testKey(0x20)
	table, err := ParseAddressTable(tableKey, valid)
	if err != nil {
		t.Fatalf("ParseAddressTable: %v", err)
	}
	if table.Key != tableKey {
		t.Errorf("table key = %s, want %s", table.Key, tableKey)
	}
	if !reflect.DeepEqual(table.Addresses, []pubkey.Key{addr1, addr2}) {
		t.Errorf("addresses = %v, want [%s %s]", table.Addresses, addr1, addr2)
	}

	// Meta only, zero addresses, still a valid table.
	empty := make([]byte, addressTableMetaSize)
	empty[0] = addressTableDiscriminator
	table, err = ParseAddressTable(tableKey, empty)
	if err != nil {
		t.Fatalf("ParseAddressTable(empty): %v", err)
	}
	if len(table.Addresses) != 0 {
		t.Errorf("empty table parsed %d addresses", len(table.Addresses))
	}

	invalid := []struct {
		name string
		data []byte
	}{
		{"short", valid[:addressTableMetaSize-1]},
		{"ragged tail", valid[:len(valid)-1]},
		{"wrong discriminator", func() []byte {
			d := append([]byte(nil), valid...)
			d[0] = 2
			return d
		}()},
	}
	for _, test := range invalid {
		if _, err := ParseAddressTable(tableKey, test.data); !errors.Is(err, ErrInvalidAddressTable) {
			t.Errorf("%s: error = %v, want %v", test.name, err, ErrInvalidAddressTable)
		}
	}
}
