// Package txmgr implements a local journal of the transactions this
// process has composed and submitted.  The journal is bookkeeping only:
// request status is always derived from chain state and never read back
// from here.
package txmgr

import (
	"time"

	"github.com/lightningnetwork/lnd/clock"
	bolt "go.etcd.io/bbolt"

	"github.com/Se7en-Seas/boring-vault-go/pubkey"
	"github.com/Se7en-Seas/boring-vault-go/wire"
)

// openTimeout bounds how long opening the database file may block on
// another process holding its lock.
const openTimeout = 5 * time.Second

// Record describes one submitted transaction.
type Record struct {
	// Signature is the transaction's first signature, which doubles as
	// its network identifier.
	Signature wire.Signature

	// Kind names the action that produced the transaction, such as
	// "deposit" or "request-withdraw".
	Kind string

	// VaultID is the vault the action targeted.
	VaultID uint64

	// User is the acting key.  For withdraw actions this is the request
	// owner; for others the signing authority.
	User pubkey.Key

	// Nonce is the withdraw request nonce for actions that create or
	// consume one.  HasNonce reports whether it is meaningful.
	Nonce    uint64
	HasNonce bool

	// SubmitTime records when the transaction was handed to the network.
	SubmitTime time.Time

	// AnchorSlot is the slot of the recent anchor the transaction was
	// finalized against.
	AnchorSlot uint64
}

// Store is a bbolt-backed submission journal.
type Store struct {
	db  *bolt.DB
	clk clock.Clock
}

// Open opens or creates the journal at path.  A nil clk selects the real
// time source.
func Open(path string, clk clock.Clock) (*Store, error) {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		str := "failed to open journal database"
		return nil, storeError(ErrDatabase, str, err)
	}

	s := &Store{db: db, clk: clk}
	if err := db.Update(func(tx *bolt.Tx) error {
		return upgradeJournal(tx, clk.Now())
	}); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordSubmission journals a submitted transaction.  A zero SubmitTime
// is filled from the store's clock.  Recording the same signature twice
// replaces the earlier entry.
func (s *Store) RecordSubmission(rec *Record) error {
	stamped := *rec
	if stamped.SubmitTime.IsZero() {
		stamped.SubmitTime = s.clk.Now()
	}
	stamped.SubmitTime = stamped.SubmitTime.UTC()

	return s.db.Update(func(tx *bolt.Tx) error {
		// Replacing a submission must also replace its index entries,
		// which embed the original submit time.
		if v := existsRawSubmission(tx, stamped.Signature); v != nil {
			old := new(Record)
			err := readSubmission(stamped.Signature[:], v, old)
			if err != nil {
				return err
			}
			if err := deleteSubmission(tx, old); err != nil {
				return err
			}
		}
		if err := putSubmission(tx, &stamped); err != nil {
			return err
		}
		if stamped.HasNonce {
			return s.advanceUserNonce(tx, stamped.User, stamped.Nonce)
		}
		return nil
	})
}

// advanceUserNonce records nonce as the user's last locally created nonce
// unless a higher one is already stored.
func (s *Store) advanceUserNonce(tx *bolt.Tx, user pubkey.Key, nonce uint64) error {
	last, ok, err := fetchUserNonce(tx, user)
	if err != nil {
		return err
	}
	if ok && last >= nonce {
		return nil
	}
	return putUserNonce(tx, user, nonce)
}

// Submission returns the journaled record for the passed signature.  A
// missing record reports ErrNoExists.
func (s *Store) Submission(sig wire.Signature) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = fetchSubmission(tx, sig)
		return err
	})
	return rec, err
}

// Submissions returns up to limit journaled transactions, newest first.
// A non-positive limit returns everything.
func (s *Store) Submissions(limit int) ([]Record, error) {
	return s.scanIndex(bucketByTime, nil, limit)
}

// UserSubmissions returns up to limit journaled transactions for the
// passed user, newest first.
func (s *Store) UserSubmissions(user pubkey.Key, limit int) ([]Record, error) {
	return s.scanIndex(bucketByUser, user[:], limit)
}

// VaultSubmissions returns up to limit journaled transactions targeting
// the passed vault, newest first.
func (s *Store) VaultSubmissions(vaultID uint64, limit int) ([]Record, error) {
	prefix := make([]byte, 8)
	byteOrder.PutUint64(prefix, vaultID)
	return s.scanIndex(bucketByVault, prefix, limit)
}

func (s *Store) scanIndex(bucket, prefix []byte, limit int) ([]Record, error) {
	var recs []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		var scanErr error
		reverseScanPrefix(tx.Bucket(bucket), prefix, func(k []byte) bool {
			if limit > 0 && len(recs) >= limit {
				return false
			}
			rec, err := fetchSubmission(tx, extractTimeKeySig(k))
			if err != nil {
				scanErr = err
				return false
			}
			recs = append(recs, *rec)
			return true
		})
		return scanErr
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// LastCreatedNonce returns the last withdraw request nonce this process
// journaled for the passed user.  The second return reports whether any
// nonce has been journaled.
func (s *Store) LastCreatedNonce(user pubkey.Key) (uint64, bool, error) {
	var (
		nonce uint64
		ok    bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		nonce, ok, err = fetchUserNonce(tx, user)
		return err
	})
	return nonce, ok, err
}

// Prune removes journaled transactions submitted before the cutoff and
// returns how many were removed.  User nonce counters are retained.
func (s *Store) Prune(olderThan time.Time) (int, error) {
	cutoff := uint64(olderThan.UTC().UnixNano())

	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		// Collect before deleting so the cursor never walks a bucket
		// that is being mutated under it.
		var stale []*Record
		c := tx.Bucket(bucketByTime).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if byteOrder.Uint64(k[0:8]) >= cutoff {
				break
			}
			rec, err := fetchSubmission(tx, extractTimeKeySig(k))
			if err != nil {
				return err
			}
			stale = append(stale, rec)
		}
		for _, rec := range stale {
			if err := deleteSubmission(tx, rec); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
