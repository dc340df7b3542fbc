package prompt

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/Se7en-Seas/boring-vault-go/signer"
)

func TestDecodeSeed(t *testing.T) {
	seed := make([]byte, signer.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	encoded := hex.EncodeToString(seed)

	tests := []struct {
		name    string
		input   string
		want    []byte
		invalid bool
	}{
		{name: "plain", input: encoded, want: seed},
		{name: "upper case", input: strings.ToUpper(encoded), want: seed},
		{name: "surrounding space", input: "  " + encoded + "\n", want: seed},
		{name: "too short", input: encoded[:len(encoded)-2], invalid: true},
		{name: "too long", input: encoded + "ab", invalid: true},
		{name: "not hex", input: strings.Repeat("zz", signer.SeedSize), invalid: true},
		{name: "empty", input: "", invalid: true},
	}
	for _, test := range tests {
		got, err := decodeSeed(test.input)
		if test.invalid {
			if !errors.Is(err, ErrInvalidSeed) {
				t.Errorf("%s: got err %v, want ErrInvalidSeed", test.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", test.name, err)
			continue
		}
		if !bytes.Equal(got, test.want) {
			t.Errorf("%s: got %x, want %x", test.name, got, test.want)
		}
	}
}
