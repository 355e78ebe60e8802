// Package store implements the Storage Store from spec.md §4.5: durable,
// transactional persistence of scan state, aggregate statistics,
// duplicate groups, and resume checkpoints.
//
// Grounded on the teacher's internal/cache.Cache, which already wraps
// go.etcd.io/bbolt with versioned binary keys and all-or-nothing
// transactions. That package covered exactly one bucket (a hash cache);
// this elevates the same embedded-KV-with-ACID-transactions approach to
// the four collections spec.md §4.5 names, plus an informational
// secondary index, all in one bbolt.DB/one database file.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ivoronin/attachmentscan/internal/scanmodel"
)

var (
	bucketScans       = []byte("scans")
	bucketStats       = []byte("scan_stats")
	bucketGroups      = []byte("duplicate_groups") // top-level bucket, nested per-scan sub-bucket
	bucketCheckpoints = []byte("checkpoints")
	bucketFPIndex     = []byte("fingerprint_index") // fingerprint -> []scanID, informational only
)

// Store is a single-writer, durable key/value store. BoltDB itself
// enforces the single-writer invariant (one Update transaction at a time,
// unlimited concurrent View transactions), so no additional locking is
// needed here.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt database at path and
// ensures all top-level buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketScans, bucketStats, bucketGroups, bucketCheckpoints, bucketFPIndex} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveScan upserts a scan record.
func (s *Store) SaveScan(scan scanmodel.Scan) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketScans), []byte(scan.ID), scan)
	})
}

// LoadScan returns the persisted scan, or nil if none exists.
func (s *Store) LoadScan(scanID string) (*scanmodel.Scan, error) {
	var scan scanmodel.Scan
	found, err := s.view(bucketScans, scanID, &scan)
	if err != nil || !found {
		return nil, err
	}
	return &scan, nil
}

// SaveStats upserts a scan's aggregate statistics.
func (s *Store) SaveStats(scanID string, stats scanmodel.ScanStatistics) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketStats), []byte(scanID), stats)
	})
}

// LoadStats returns the persisted statistics, or nil if none exist.
func (s *Store) LoadStats(scanID string) (*scanmodel.ScanStatistics, error) {
	var stats scanmodel.ScanStatistics
	found, err := s.view(bucketStats, scanID, &stats)
	if err != nil || !found {
		return nil, err
	}
	return &stats, nil
}

// SaveGroups batch-upserts duplicate groups for a scan, and maintains the
// informational fingerprint secondary index.
func (s *Store) SaveGroups(scanID string, groups map[string]*scanmodel.DuplicateGroup) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		scanBucket, err := tx.Bucket(bucketGroups).CreateBucketIfNotExists([]byte(scanID))
		if err != nil {
			return err
		}
		idx := tx.Bucket(bucketFPIndex)

		for fingerprint, g := range groups {
			if err := putJSON(scanBucket, []byte(fingerprint), g); err != nil {
				return err
			}
			if err := addToFingerprintIndex(idx, fingerprint, scanID); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadGroups returns every duplicate group persisted for scanID.
func (s *Store) LoadGroups(scanID string) (map[string]*scanmodel.DuplicateGroup, error) {
	groups := make(map[string]*scanmodel.DuplicateGroup)
	err := s.db.View(func(tx *bolt.Tx) error {
		scanBucket := tx.Bucket(bucketGroups).Bucket([]byte(scanID))
		if scanBucket == nil {
			return nil
		}
		return scanBucket.ForEach(func(k, v []byte) error {
			var g scanmodel.DuplicateGroup
			if err := json.Unmarshal(v, &g); err != nil {
				return fmt.Errorf("decode group %s: %w", k, err)
			}
			groups[string(k)] = &g
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// SaveCheckpoint upserts the resume checkpoint for a scan.
func (s *Store) SaveCheckpoint(scanID, lastIssueKey string, lastOffset int) error {
	cp := scanmodel.Checkpoint{
		ScanID:         scanID,
		LastOffset:     lastOffset,
		LastIssueKey:   lastIssueKey,
		CheckpointedAt: time.Now().UTC(),
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketCheckpoints), []byte(scanID), cp)
	})
}

// LoadCheckpoint returns the persisted checkpoint, or nil if none exists.
func (s *Store) LoadCheckpoint(scanID string) (*scanmodel.Checkpoint, error) {
	var cp scanmodel.Checkpoint
	found, err := s.view(bucketCheckpoints, scanID, &cp)
	if err != nil || !found {
		return nil, err
	}
	return &cp, nil
}

// SaveProgress writes scan state, stats, groups, and checkpoint in one
// transactional sweep, per spec.md §4.6's _save_progress. All four writes
// commit atomically or not at all, so a crash mid-checkpoint can never
// leave the four collections inconsistent with each other.
func (s *Store) SaveProgress(scan scanmodel.Scan, stats scanmodel.ScanStatistics, groups map[string]*scanmodel.DuplicateGroup, lastIssueKey string, lastOffset int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := putJSON(tx.Bucket(bucketScans), []byte(scan.ID), scan); err != nil {
			return err
		}
		if err := putJSON(tx.Bucket(bucketStats), []byte(scan.ID), stats); err != nil {
			return err
		}

		scanBucket, err := tx.Bucket(bucketGroups).CreateBucketIfNotExists([]byte(scan.ID))
		if err != nil {
			return err
		}
		idx := tx.Bucket(bucketFPIndex)
		for fingerprint, g := range groups {
			if err := putJSON(scanBucket, []byte(fingerprint), g); err != nil {
				return err
			}
			if err := addToFingerprintIndex(idx, fingerprint, scan.ID); err != nil {
				return err
			}
		}

		cp := scanmodel.Checkpoint{
			ScanID:         scan.ID,
			LastOffset:     lastOffset,
			LastIssueKey:   lastIssueKey,
			CheckpointedAt: time.Now().UTC(),
		}
		return putJSON(tx.Bucket(bucketCheckpoints), []byte(scan.ID), cp)
	})
}

// ListScans returns every persisted scan.
func (s *Store) ListScans() ([]scanmodel.Scan, error) {
	var scans []scanmodel.Scan
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScans).ForEach(func(k, v []byte) error {
			var scan scanmodel.Scan
			if err := json.Unmarshal(v, &scan); err != nil {
				return fmt.Errorf("decode scan %s: %w", k, err)
			}
			scans = append(scans, scan)
			return nil
		})
	})
	return scans, err
}

// FindIncompleteScans returns every persisted scan whose status is still
// "running" (i.e. it was interrupted or is genuinely in progress).
func (s *Store) FindIncompleteScans() ([]scanmodel.Scan, error) {
	all, err := s.ListScans()
	if err != nil {
		return nil, err
	}
	var incomplete []scanmodel.Scan
	for _, scan := range all {
		if scan.Status == scanmodel.StatusRunning {
			incomplete = append(incomplete, scan)
		}
	}
	return incomplete, nil
}

// ResetScan cascade-deletes every collection's record for scanID: scan,
// stats, groups, and checkpoint.
func (s *Store) ResetScan(scanID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketScans).Delete([]byte(scanID)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketStats).Delete([]byte(scanID)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketCheckpoints).Delete([]byte(scanID)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketGroups).DeleteBucket([]byte(scanID)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		return nil
	})
}

// CleanupOlderThan deletes every completed scan (and its stats, groups,
// checkpoint) whose completion timestamp is older than the given number
// of days.
func (s *Store) CleanupOlderThan(days int) error {
	cutoff := time.Now().AddDate(0, 0, -days)
	scans, err := s.ListScans()
	if err != nil {
		return err
	}
	for _, scan := range scans {
		if scan.Status == scanmodel.StatusCompleted && scan.CompletedAt != nil && scan.CompletedAt.Before(cutoff) {
			if err := s.ResetScan(scan.ID); err != nil {
				return fmt.Errorf("cleanup %s: %w", scan.ID, err)
			}
		}
	}
	return nil
}

func (s *Store) view(bucket []byte, key string, out any) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, out)
	})
	return found, err
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// addToFingerprintIndex appends scanID to the set of scans known to
// contain fingerprint, if not already present. This index is
// informational only (spec.md §4.5: "not on the hot path") and is never
// consulted by the orchestrator's classification logic.
func addToFingerprintIndex(idx *bolt.Bucket, fingerprint, scanID string) error {
	var scanIDs []string
	if v := idx.Get([]byte(fingerprint)); v != nil {
		if err := json.Unmarshal(v, &scanIDs); err != nil {
			return err
		}
	}
	for _, id := range scanIDs {
		if id == scanID {
			return nil
		}
	}
	scanIDs = append(scanIDs, scanID)
	return putJSON(idx, []byte(fingerprint), scanIDs)
}
