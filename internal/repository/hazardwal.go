// Package repository implements persistence for the core: a read-only
// facility-map loader backed by Postgres, and a bbolt-backed store of
// runtime-created hazard zones.
package repository

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
	"github.com/airwayfind/wayfinding-core/internal/models"
	"go.etcd.io/bbolt"
)

var (
	zonesBucket = []byte("hazard_zones")
	metaBucket  = []byte("meta")
)

const schemaVersionKey = "schema_version"
const currentSchemaVersion = "1"

// HazardWAL is a bbolt-backed store holding one record per runtime
// hazard zone, keyed by a hash of the zone ID. Append writes or
// overwrites a zone's record and Delete removes it, so no history of
// create and delete operations is kept. Commits fsync by default (bbolt's NoSync is left
// false), so a crash after CreateZone/DeleteZone returns nil never
// loses the write.
type HazardWAL struct {
	db *bbolt.DB
}

// OpenHazardWAL opens (creating if absent) the bbolt file at path and
// ensures its buckets and schema version exist.
func OpenHazardWAL(path string) (*HazardWAL, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bbolt.FreelistArrayType,
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err, "failed to open hazard WAL")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		zb, err := tx.CreateBucketIfNotExists(zonesBucket)
		if err != nil {
			return err
		}
		mb, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		_ = zb
		existing := mb.Get([]byte(schemaVersionKey))
		if existing == nil {
			return mb.Put([]byte(schemaVersionKey), []byte(currentSchemaVersion))
		}
		if string(existing) != currentSchemaVersion {
			return fmt.Errorf("hazard WAL schema version mismatch: have %s, want %s", existing, currentSchemaVersion)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, apierr.Wrap(apierr.CodeInternal, err, "failed to initialize hazard WAL schema")
	}

	return &HazardWAL{db: db}, nil
}

func zoneKey(id string) []byte {
	sum := sha256.Sum256([]byte(id))
	return []byte(hex.EncodeToString(sum[:]))
}

// Append persists zone, overwriting any prior record with the same ID.
func (w *HazardWAL) Append(zone models.HazardZone) error {
	payload, err := json.Marshal(zone)
	if err != nil {
		return apierr.Wrap(apierr.CodeInternal, err, "failed to marshal hazard zone")
	}
	return w.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(zonesBucket).Put(zoneKey(zone.ID), payload)
	})
}

// Delete removes the persisted record for zoneID, if present.
func (w *HazardWAL) Delete(zoneID string) error {
	return w.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(zonesBucket).Delete(zoneKey(zoneID))
	})
}

// ReplayAll returns every persisted hazard zone, used to reconstruct
// the runtime zone set on startup.
func (w *HazardWAL) ReplayAll() ([]models.HazardZone, error) {
	var zones []models.HazardZone
	err := w.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(zonesBucket).ForEach(func(k, v []byte) error {
			var z models.HazardZone
			if err := json.Unmarshal(v, &z); err != nil {
				return err
			}
			zones = append(zones, z)
			return nil
		})
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err, "failed to replay hazard WAL")
	}
	return zones, nil
}

// Close closes the underlying bbolt file.
func (w *HazardWAL) Close() error {
	return w.db.Close()
}
