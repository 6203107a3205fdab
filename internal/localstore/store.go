// Package localstore persists the unified document and a handful of
// auxiliary records in a bbolt database. It is the "local storage"
// side of the sync engine: reads and writes are synchronous and the
// document is stored wholesale under a single key.
package localstore

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/alexjbarnes/lifeos/internal/document"
)

const (
	// storeDirPerm is the permission mode for the state directory.
	storeDirPerm = fs.FileMode(0o700)

	// storeFilePerm is the permission mode for the database file.
	storeFilePerm = fs.FileMode(0o600)

	// storeOpenTimeout is the maximum time to wait for the bolt lock.
	storeOpenTimeout = 5 * time.Second
)

var (
	appBucket           = []byte("app")
	notificationsBucket = []byte("notifications")
	legacyBucket        = []byte("legacy")
	legacyBackupBucket  = []byte("legacy_backup")

	documentKey        = []byte("document")
	lastSyncKey        = []byte("last_sync")
	syncedSnapshotKey  = []byte("synced_snapshot")
	migrationSkipKey   = []byte("migration_skip")
	neverShowAgainKey  = []byte("never_show_again")
	schemaVersionKey   = []byte("schema_version")
	dismissedKeyPrefix = "dismissed:"
)

// Store wraps a bbolt database for all local persistent state.
type Store struct {
	db *bolt.DB
}

// Open opens the store at the given path, creating it and its buckets
// if they do not exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, storeFilePerm, &bolt.Options{Timeout: storeOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{appBucket, notificationsBucket, legacyBucket, legacyBackupBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDocument returns the stored envelope, or nil when no document has
// been written yet. A stored value that fails to parse is returned as
// an error; callers treat that as absent data and fall back to
// defaults.
func (s *Store) GetDocument() (*document.Envelope, error) {
	var raw []byte

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(documentKey)
		if v != nil {
			raw = append([]byte(nil), v...)
		}

		return nil
	})

	if raw == nil {
		return nil, nil
	}

	env, err := document.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding stored document: %w", err)
	}

	return env, nil
}

// SetDocument persists the envelope wholesale.
func (s *Store) SetDocument(env *document.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(documentKey, data)
	})
}

// DeleteDocument removes the stored envelope. Used by the explicit
// reset-to-defaults action.
func (s *Store) DeleteDocument() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Delete(documentKey)
	})
}

// Metadata derives the local document's conflict-comparison metadata,
// or nil when no document is stored.
func (s *Store) Metadata() (*document.Metadata, error) {
	var meta *document.Metadata

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(documentKey)
		if v == nil {
			return nil
		}

		env, err := document.Decode(v)
		if err != nil {
			return fmt.Errorf("decoding stored document: %w", err)
		}

		meta = &document.Metadata{
			LastModified: env.LastModified,
			Size:         int64(len(v)),
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return meta, nil
}

// LastSyncTime returns the instant the last successful sync completed,
// or the zero time when never synced.
func (s *Store) LastSyncTime() time.Time {
	var t time.Time

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(lastSyncKey)
		if v != nil {
			_ = t.UnmarshalText(v)
		}

		return nil
	})

	return t
}

// SetLastSyncTime records the last successful sync instant.
func (s *Store) SetLastSyncTime(t time.Time) error {
	data, err := t.MarshalText()
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(lastSyncKey, data)
	})
}

// SyncedSnapshot returns the document as it was at the last successful
// sync, or nil. Used as the common ancestor for three-way note merges
// during conflict resolution.
func (s *Store) SyncedSnapshot() (*document.Envelope, error) {
	var raw []byte

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(syncedSnapshotKey)
		if v != nil {
			raw = append([]byte(nil), v...)
		}

		return nil
	})

	if raw == nil {
		return nil, nil
	}

	env, err := document.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding synced snapshot: %w", err)
	}

	return env, nil
}

// SetSyncedSnapshot stores a copy of the document at sync time.
func (s *Store) SetSyncedSnapshot(env *document.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encoding synced snapshot: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(syncedSnapshotKey, data)
	})
}

// SchemaVersion returns the stored schema version marker. Zero means
// no marker: either a fresh install or a legacy (v1) layout, which the
// migrator distinguishes by looking for legacy keys.
func (s *Store) SchemaVersion() int {
	var version int

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(schemaVersionKey)
		if v != nil {
			_ = json.Unmarshal(v, &version)
		}

		return nil
	})

	return version
}

// SetSchemaVersion records the schema version marker.
func (s *Store) SetSchemaVersion(version int) error {
	data, err := json.Marshal(version)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(schemaVersionKey, data)
	})
}

// MigrationSkippedAt returns when the user last deferred the legacy
// migration prompt, or the zero time.
func (s *Store) MigrationSkippedAt() time.Time {
	var t time.Time

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(migrationSkipKey)
		if v != nil {
			_ = t.UnmarshalText(v)
		}

		return nil
	})

	return t
}

// SetMigrationSkippedAt records a migration deferral.
func (s *Store) SetMigrationSkippedAt(t time.Time) error {
	data, err := t.MarshalText()
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(migrationSkipKey, data)
	})
}

// --- legacy (v1) layout ---

// LegacyKeys returns all keys present in the legacy bucket.
func (s *Store) LegacyKeys() ([]string, error) {
	var keys []string

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(legacyBucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})

	return keys, err
}

// GetLegacy returns the raw value stored under a legacy key, or nil.
func (s *Store) GetLegacy(key string) []byte {
	var raw []byte

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(legacyBucket).Get([]byte(key))
		if v != nil {
			raw = append([]byte(nil), v...)
		}

		return nil
	})

	return raw
}

// PutLegacy writes a legacy key. Only used by tests and by the import
// path that seeds a legacy layout; migration itself never writes here.
func (s *Store) PutLegacy(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(legacyBucket).Put([]byte(key), value)
	})
}

// SnapshotLegacy copies every legacy key verbatim into the backup
// bucket in a single transaction. Idempotent per migration attempt:
// the backup is replaced wholesale.
func (s *Store) SnapshotLegacy() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(legacyBackupBucket); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}

		backup, err := tx.CreateBucket(legacyBackupBucket)
		if err != nil {
			return err
		}

		return tx.Bucket(legacyBucket).ForEach(func(k, v []byte) error {
			return backup.Put(k, v)
		})
	})
}

// LegacyBackup returns the backed-up legacy data, keyed verbatim.
func (s *Store) LegacyBackup() (map[string][]byte, error) {
	result := make(map[string][]byte)

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(legacyBackupBucket)
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			result[string(k)] = append([]byte(nil), v...)
			return nil
		})
	})

	return result, err
}

// RestoreLegacyBackup copies the backup back into the legacy bucket
// verbatim and deletes the consolidated document, in one transaction.
func (s *Store) RestoreLegacyBackup() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		backup := tx.Bucket(legacyBackupBucket)
		if backup == nil {
			return fmt.Errorf("no legacy backup present")
		}

		legacy := tx.Bucket(legacyBucket)

		if err := backup.ForEach(func(k, v []byte) error {
			return legacy.Put(k, v)
		}); err != nil {
			return err
		}

		app := tx.Bucket(appBucket)

		if err := app.Delete(documentKey); err != nil {
			return err
		}

		return app.Delete(schemaVersionKey)
	})
}

// --- notification records ---

// DismissalExpiry names how long a dismissed notification stays hidden.
type DismissalExpiry string

const (
	ExpirySession DismissalExpiry = "session"
	ExpiryDay     DismissalExpiry = "day"
	ExpiryWeek    DismissalExpiry = "week"
	ExpiryNever   DismissalExpiry = "never"
)

// Dismissal records one dismissed notification.
type Dismissal struct {
	ID          string          `json:"id"`
	DismissedAt time.Time       `json:"dismissedAt"`
	Expiry      DismissalExpiry `json:"expiry"`
}

// SetDismissal persists a dismissed-notification record.
func (s *Store) SetDismissal(d Dismissal) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(notificationsBucket).Put([]byte(dismissedKeyPrefix+d.ID), data)
	})
}

// GetDismissal returns the dismissal record for an ID, or nil.
func (s *Store) GetDismissal(id string) (*Dismissal, error) {
	var d *Dismissal

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(notificationsBucket).Get([]byte(dismissedKeyPrefix + id))
		if v == nil {
			return nil
		}

		d = &Dismissal{}

		return json.Unmarshal(v, d)
	})

	return d, err
}

// DeleteDismissal removes a dismissal record.
func (s *Store) DeleteDismissal(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(notificationsBucket).Delete([]byte(dismissedKeyPrefix + id))
	})
}

// NeverShowAgain returns the never-show-again notification ID list.
func (s *Store) NeverShowAgain() ([]string, error) {
	var ids []string

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(notificationsBucket).Get(neverShowAgainKey)
		if v == nil {
			return nil
		}

		return json.Unmarshal(v, &ids)
	})

	return ids, err
}

// SetNeverShowAgain replaces the never-show-again list.
func (s *Store) SetNeverShowAgain(ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(notificationsBucket).Put(neverShowAgainKey, data)
	})
}
