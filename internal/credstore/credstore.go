// Package credstore persists the (wifi_settings, sta_ssid, sta_password)
// triple the way the appliance's NVS namespace does: three named blobs in a
// single namespace, written atomically and skipped when byte-identical to
// what's already stored. It is backed by go.etcd.io/bbolt, an embedded
// single-file KV store that stands in for the flash-backed NVS partition —
// the closest idiomatic Go analogue to "open -> read/write blobs -> commit
// -> close" under a process-wide mutex.
package credstore

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/ruuvigw/wifimgr/internal/wmtypes"
	"github.com/ruuvigw/wifimgr/internal/zaperr"
)

const (
	keySSID     = "ssid"
	keyPassword = "password"
	keySettings = "settings"
)

// Store is the CredStore component: it owns a single bbolt handle and a
// process-wide mutex serializing every load/save cycle.
type Store struct {
	mu  sync.Mutex
	db  *bbolt.DB
	ns  string
}

// Open opens (creating if necessary) the credential store at path, using
// ns as the bucket namespace (mirrors NVS's namespace concept).
func Open(path, ns string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, zaperr.New(zaperr.KindStorageError, "failed to open credential store", "path", path, "err", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(ns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, zaperr.New(zaperr.KindStorageError, "failed to create namespace bucket", "ns", ns, "err", err)
	}

	return &Store{db: db, ns: ns}, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Triple is the full persisted record.
type Triple struct {
	Settings wmtypes.WifiSettings
	Creds    wmtypes.StaCreds
}

// Load performs an atomic open->read->close cycle, returning the zero
// Triple (not an error) if nothing has been persisted yet.
func (s *Store) Load() (Triple, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t Triple
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(s.ns))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(keySSID)); v != nil {
			t.Creds.SSID = string(v)
		}
		if v := b.Get([]byte(keyPassword)); v != nil {
			t.Creds.Password = string(v)
		}
		if v := b.Get([]byte(keySettings)); v != nil {
			return json.Unmarshal(v, &t.Settings)
		}
		return nil
	})
	if err != nil {
		return Triple{}, zaperr.New(zaperr.KindStorageError, "failed to load credential store", "err", err)
	}
	return t, nil
}

// Save performs an atomic read-compare-write-commit cycle: each of the
// three blobs is only written if it differs from what's already stored.
func (s *Store) Save(t Triple) error {
	if err := t.Settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if err := t.Creds.Validate(); err != nil {
		return fmt.Errorf("invalid creds: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settingsBlob, err := json.Marshal(t.Settings)
	if err != nil {
		return zaperr.New(zaperr.KindStorageError, "failed to marshal settings", "err", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(s.ns))
		if b == nil {
			var err error
			b, err = tx.CreateBucketIfNotExists([]byte(s.ns))
			if err != nil {
				return err
			}
		}

		if err := putIfChanged(b, keySSID, []byte(t.Creds.SSID)); err != nil {
			return err
		}
		if err := putIfChanged(b, keyPassword, []byte(t.Creds.Password)); err != nil {
			return err
		}
		return putIfChanged(b, keySettings, settingsBlob)
	})
	if err != nil {
		return zaperr.New(zaperr.KindStorageError, "failed to commit credential store", "err", err)
	}
	return nil
}

// Clear removes all three blobs, e.g. on a factory-reset request.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(s.ns)); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(s.ns))
		return err
	})
	if err != nil {
		return zaperr.New(zaperr.KindStorageError, "failed to clear credential store", "err", err)
	}
	return nil
}

func putIfChanged(b *bbolt.Bucket, key string, value []byte) error {
	existing := b.Get([]byte(key))
	if existing != nil && string(existing) == string(value) {
		return nil
	}
	return b.Put([]byte(key), value)
}
