package txmgr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/Se7en-Seas/boring-vault-go/wire"
)

// Naming
//
// The following variables are commonly used in this file and given
// reserved names:
//
//   tx: The database transaction being operated in
//   b:  The primary bucket being operated on
//   k:  A single bucket key
//   v:  A single bucket value
//   c:  A bucket cursor
//
// Functions use the naming scheme `Op[Raw]Type[Field]`, which performs the
// operation `Op` on the type `Type`, optionally dealing with raw keys and
// values if `Raw` is used.  Fetch and extract operations may only need to
// read some portion of a key or value, in which case `Field` describes the
// component being returned.  The following operations are used:
//
//   key:     return a db key for some data
//   value:   return a db value for some data
//   put:     insert or replace a value into a bucket
//   fetch:   read and return a value
//   exists:  return the raw (nil if not found) value for some data
//   delete:  remove a k/v pair

// Big endian is the preferred byte order, due to cursor scans over integer
// keys iterating in order.
var byteOrder = binary.BigEndian

// This package makes assumptions that the width of a pubkey.Key is always
// 32 bytes and a wire.Signature always 64 bytes.  If either is ever
// changed, index key offsets have to be rewritten.  Use compile-time
// assertions that the assumptions hold true.
var _ [32]byte = pubkey.Key{}
var _ [64]byte = wire.Signature{}

// Bucket names
var (
	bucketMeta        = []byte("meta")
	bucketSubmissions = []byte("submissions")
	bucketByUser      = []byte("byuser")
	bucketByVault     = []byte("byvault")
	bucketByTime      = []byte("bytime")
	bucketUserNonce   = []byte("usernonce")
)

// Root bucket keys
var (
	rootCreateDate = []byte("date")
	rootVersion    = []byte("vers")
)

// The root bucket's version k/v pair records the journal schema version as
// a uint32.
func fetchVersion(tx *bolt.Tx) (uint32, error) {
	v := tx.Bucket(bucketMeta).Get(rootVersion)
	if len(v) != 4 {
		str := fmt.Sprintf("version: short read (expected 4 bytes, "+
			"read %v)", len(v))
		return 0, storeError(ErrData, str, nil)
	}
	return byteOrder.Uint32(v), nil
}

func putVersion(tx *bolt.Tx, version uint32) error {
	v := make([]byte, 4)
	byteOrder.PutUint32(v, version)
	if err := tx.Bucket(bucketMeta).Put(rootVersion, v); err != nil {
		str := "failed to put version"
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func putCreateDate(tx *bolt.Tx, created time.Time) error {
	v := make([]byte, 8)
	byteOrder.PutUint64(v, uint64(created.Unix()))
	if err := tx.Bucket(bucketMeta).Put(rootCreateDate, v); err != nil {
		str := "failed to put creation date"
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

// Several data structures are given canonical serialization formats as
// either keys or values.
//
// Index keys pair a submission's time with its signature so that cursor
// scans iterate submissions in time order with the signature breaking
// ties:
//
//   [0:8]   Submit time, unix nanoseconds (8 bytes)
//   [8:72]  Signature (64 bytes)
//
// The byuser and byvault index keys prepend the 32-byte user and the
// 8-byte vault ID respectively.

func timeKey(at time.Time, sig wire.Signature) []byte {
	k := make([]byte, 8+wire.SignatureSize)
	byteOrder.PutUint64(k[0:8], uint64(at.UnixNano()))
	copy(k[8:], sig[:])
	return k
}

func keyByUser(user pubkey.Key, at time.Time, sig wire.Signature) []byte {
	k := make([]byte, pubkey.KeySize+8+wire.SignatureSize)
	copy(k[0:32], user[:])
	byteOrder.PutUint64(k[32:40], uint64(at.UnixNano()))
	copy(k[40:], sig[:])
	return k
}

func keyByVault(vaultID uint64, at time.Time, sig wire.Signature) []byte {
	k := make([]byte, 8+8+wire.SignatureSize)
	byteOrder.PutUint64(k[0:8], vaultID)
	byteOrder.PutUint64(k[8:16], uint64(at.UnixNano()))
	copy(k[16:], sig[:])
	return k
}

// extractTimeKeySig performs an unchecked slice of an index key's trailing
// signature bytes.
func extractTimeKeySig(k []byte) wire.Signature {
	var sig wire.Signature
	copy(sig[:], k[len(k)-wire.SignatureSize:])
	return sig
}

// The serialized submission value format is:
//
//   [0:8]    Vault ID (8 bytes)
//   [8:40]   User (32 bytes)
//   [40:41]  Nonce present flag (1 byte)
//   [41:49]  Nonce (8 bytes)
//   [49:57]  Submit time, unix nanoseconds (8 bytes)
//   [57:65]  Anchor slot (8 bytes)
//   [65:66]  Kind length (1 byte)
//   [66:]    Kind (variable)
//
// The submission key is the 64-byte transaction signature.

const submissionValueMinSize = 66

func valueSubmission(rec *Record) ([]byte, error) {
	if len(rec.Kind) > 0xff {
		str := fmt.Sprintf("submission kind too long (%d bytes)",
			len(rec.Kind))
		return nil, storeError(ErrData, str, nil)
	}
	v := make([]byte, submissionValueMinSize+len(rec.Kind))
	byteOrder.PutUint64(v[0:8], rec.VaultID)
	copy(v[8:40], rec.User[:])
	if rec.HasNonce {
		v[40] = 1
	}
	byteOrder.PutUint64(v[41:49], rec.Nonce)
	byteOrder.PutUint64(v[49:57], uint64(rec.SubmitTime.UnixNano()))
	byteOrder.PutUint64(v[57:65], rec.AnchorSlot)
	v[65] = byte(len(rec.Kind))
	copy(v[66:], rec.Kind)
	return v, nil
}

func readSubmission(k, v []byte, rec *Record) error {
	if len(k) != wire.SignatureSize {
		str := fmt.Sprintf("submission: short key (expected %d "+
			"bytes, read %v)", wire.SignatureSize, len(k))
		return storeError(ErrData, str, nil)
	}
	if len(v) < submissionValueMinSize {
		str := fmt.Sprintf("submission: short read (expected %d "+
			"bytes, read %v)", submissionValueMinSize, len(v))
		return storeError(ErrData, str, nil)
	}
	kindLen := int(v[65])
	if len(v) < submissionValueMinSize+kindLen {
		str := fmt.Sprintf("submission: short kind (expected %d "+
			"bytes, read %v)", kindLen, len(v)-submissionValueMinSize)
		return storeError(ErrData, str, nil)
	}
	copy(rec.Signature[:], k)
	rec.VaultID = byteOrder.Uint64(v[0:8])
	copy(rec.User[:], v[8:40])
	rec.HasNonce = v[40] != 0
	rec.Nonce = byteOrder.Uint64(v[41:49])
	rec.SubmitTime = time.Unix(0, int64(byteOrder.Uint64(v[49:57]))).UTC()
	rec.AnchorSlot = byteOrder.Uint64(v[57:65])
	rec.Kind = string(v[66 : 66+kindLen])
	return nil
}

func putSubmission(tx *bolt.Tx, rec *Record) error {
	v, err := valueSubmission(rec)
	if err != nil {
		return err
	}
	b := tx.Bucket(bucketSubmissions)
	if err := b.Put(rec.Signature[:], v); err != nil {
		str := "failed to put submission"
		return storeError(ErrDatabase, str, err)
	}
	indexes := [][2][]byte{
		{bucketByTime, timeKey(rec.SubmitTime, rec.Signature)},
		{bucketByUser, keyByUser(rec.User, rec.SubmitTime, rec.Signature)},
		{bucketByVault, keyByVault(rec.VaultID, rec.SubmitTime, rec.Signature)},
	}
	for _, index := range indexes {
		if err := tx.Bucket(index[0]).Put(index[1], nil); err != nil {
			str := "failed to put submission index"
			return storeError(ErrDatabase, str, err)
		}
	}
	return nil
}

func existsRawSubmission(tx *bolt.Tx, sig wire.Signature) []byte {
	return tx.Bucket(bucketSubmissions).Get(sig[:])
}

func fetchSubmission(tx *bolt.Tx, sig wire.Signature) (*Record, error) {
	v := existsRawSubmission(tx, sig)
	if v == nil {
		str := fmt.Sprintf("submission %s not found", sig)
		return nil, storeError(ErrNoExists, str, nil)
	}
	rec := new(Record)
	if err := readSubmission(sig[:], v, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func deleteSubmission(tx *bolt.Tx, rec *Record) error {
	b := tx.Bucket(bucketSubmissions)
	if err := b.Delete(rec.Signature[:]); err != nil {
		str := "failed to delete submission"
		return storeError(ErrDatabase, str, err)
	}
	indexes := [][2][]byte{
		{bucketByTime, timeKey(rec.SubmitTime, rec.Signature)},
		{bucketByUser, keyByUser(rec.User, rec.SubmitTime, rec.Signature)},
		{bucketByVault, keyByVault(rec.VaultID, rec.SubmitTime, rec.Signature)},
	}
	for _, index := range indexes {
		if err := tx.Bucket(index[0]).Delete(index[1]); err != nil {
			str := "failed to delete submission index"
			return storeError(ErrDatabase, str, err)
		}
	}
	return nil
}

// The usernonce bucket records, per user, the last withdraw request nonce
// created through this journal's process.  The value is the nonce
// serialized as a uint64.
func putUserNonce(tx *bolt.Tx, user pubkey.Key, nonce uint64) error {
	v := make([]byte, 8)
	byteOrder.PutUint64(v, nonce)
	if err := tx.Bucket(bucketUserNonce).Put(user[:], v); err != nil {
		str := "failed to put user nonce"
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func fetchUserNonce(tx *bolt.Tx, user pubkey.Key) (uint64, bool, error) {
	v := tx.Bucket(bucketUserNonce).Get(user[:])
	if v == nil {
		return 0, false, nil
	}
	if len(v) != 8 {
		str := fmt.Sprintf("user nonce: short read (expected 8 "+
			"bytes, read %v)", len(v))
		return 0, false, storeError(ErrData, str, nil)
	}
	return byteOrder.Uint64(v), true, nil
}

// prefixSuccessor returns the smallest key greater than every key with the
// passed prefix, or nil when no such key exists (an all 0xff prefix).
func prefixSuccessor(prefix []byte) []byte {
	next := append([]byte(nil), prefix...)
	for i := len(next) - 1; i >= 0; i-- {
		if next[i] != 0xff {
			next[i]++
			return next[:i+1]
		}
	}
	return nil
}

// reverseScanPrefix invokes f for each key with the passed prefix, newest
// first.  Iteration stops early when f returns false.
func reverseScanPrefix(b *bolt.Bucket, prefix []byte, f func(k []byte) bool) {
	c := b.Cursor()

	var k []byte
	if next := prefixSuccessor(prefix); next == nil {
		k, _ = c.Last()
	} else if k, _ = c.Seek(next); k == nil {
		k, _ = c.Last()
	} else {
		k, _ = c.Prev()
	}

	for ; k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Prev() {
		if !f(k) {
			return
		}
	}
}
