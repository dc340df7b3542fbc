package txmgr

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// migration is a single schema upgrade step.  A nil apply only bumps the
// recorded version.
type migration struct {
	number uint32
	apply  func(tx *bolt.Tx) error
}

// versions is a list of the different journal schema versions.  The last
// entry reflects the latest schema.  A journal at a lower version has the
// later migrations applied in order to catch it up.
var versions = []migration{
	{number: 1, apply: nil},
}

// latestVersion returns the version number of the latest journal schema.
func latestVersion() uint32 {
	return versions[len(versions)-1].number
}

// upgradeJournal creates any missing buckets and applies pending schema
// migrations.  A fresh database is stamped with the latest version
// directly.
func upgradeJournal(tx *bolt.Tx, now time.Time) error {
	fresh := tx.Bucket(bucketMeta) == nil

	buckets := [][]byte{
		bucketMeta, bucketSubmissions, bucketByUser, bucketByVault,
		bucketByTime, bucketUserNonce,
	}
	for _, bucket := range buckets {
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			str := fmt.Sprintf("failed to create bucket %s", bucket)
			return storeError(ErrDatabase, str, err)
		}
	}

	if fresh {
		if err := putCreateDate(tx, now); err != nil {
			return err
		}
		return putVersion(tx, latestVersion())
	}

	current, err := fetchVersion(tx)
	if err != nil {
		return err
	}
	if current > latestVersion() {
		str := fmt.Sprintf("journal version %d is newer than the "+
			"latest understood version %d", current, latestVersion())
		return storeError(ErrData, str, nil)
	}

	for _, m := range versions {
		if m.number <= current {
			continue
		}
		if m.apply != nil {
			if err := m.apply(tx); err != nil {
				return err
			}
		}
		if err := putVersion(tx, m.number); err != nil {
			return err
		}
	}
	return nil
}
