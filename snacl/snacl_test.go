package snacl

import (
	"bytes"
	"testing"
)

var (
	password = []byte("sikrit")
	message  = []byte("this is a secret message of sorts")
	key      *SecretKey
	params   []byte
	blob     []byte
)

func TestNewSecretKey(t *testing.T) {
	var err error
	key, err = NewSecretKey(&password, 16, 8, 1)
	if err != nil {
		t.Fatal(err)
	}
}

func TestMarshalSecretKey(t *testing.T) {
	params = key.Marshal()
	if len(params) != marshalledParamsSize {
		t.Fatalf("marshalled size = %d, want %d", len(params),
			marshalledParamsSize)
	}
}

func TestUnmarshalSecretKey(t *testing.T) {
	var sk SecretKey
	sk.Key = (*CryptoKey)(&[KeySize]byte{})
	if err := sk.Unmarshal(params); err != nil {
		t.Fatal(err)
	}
	if err := sk.DeriveKey(&password); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(sk.Key[:], key.Key[:]) {
		t.Fatal("rederived key does not match the original")
	}
}

func TestUnmarshalSecretKeyInvalid(t *testing.T) {
	var sk SecretKey
	sk.Key = (*CryptoKey)(&[KeySize]byte{})
	if err := sk.Unmarshal(params[:10]); err != ErrMalformed {
		t.Fatalf("Unmarshal error = %v, want %v", err, ErrMalformed)
	}
}

func TestDeriveKeyInvalidPassword(t *testing.T) {
	var sk SecretKey
	sk.Key = (*CryptoKey)(&[KeySize]byte{})
	if err := sk.Unmarshal(params); err != nil {
		t.Fatal(err)
	}
	bogus := []byte("bogus")
	if err := sk.DeriveKey(&bogus); err != ErrInvalidPassword {
		t.Fatalf("DeriveKey error = %v, want %v", err, ErrInvalidPassword)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	var err error
	blob, err = key.Encrypt(message)
	if err != nil {
		t.Fatal(err)
	}

	decrypted, err := key.Decrypt(blob)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decrypted, message) {
		t.Fatal("decrypted message does not match the original")
	}
}

func TestDecryptCorrupt(t *testing.T) {
	corrupt := append([]byte(nil), blob...)
	corrupt[len(corrupt)-1] ^= 0xff
	if _, err := key.Decrypt(corrupt); err != ErrDecryptFailed {
		t.Fatalf("Decrypt error = %v, want %v", err, ErrDecryptFailed)
	}
}

func TestDecryptShort(t *testing.T) {
	if _, err := key.Decrypt(make([]byte, NonceSize-1)); err != ErrMalformed {
		t.Fatalf("Decrypt error = %v, want %v", err, ErrMalformed)
	}
}

func TestCryptoKeyZero(t *testing.T) {
	ck, err := GenerateCryptoKey()
	if err != nil {
		t.Fatal(err)
	}
	ck.Zero()
	var zeroed CryptoKey
	if !bytes.Equal(ck[:], zeroed[:]) {
		t.Fatal("key was not zeroed")
	}
}
