package db

import (
	"fmt"

	"github.com/teyk0o/simsforge/internal/domain"
)

// RebuildFingerprintIndex replaces the fingerprint_profiles table's
// contents from the authoritative CacheIndex, used by the Cache at startup
// and after every GC.
func (d *DB) RebuildFingerprintIndex(index *domain.CacheIndex) error {
	tx, err := d.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM fingerprint_profiles"); err != nil {
		return fmt.Errorf("clearing fingerprint index: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO fingerprint_profiles (fingerprint, profile_id, remote_mod_id) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for fp, entry := range index.Entries {
		for profileID := range entry.UsedBy {
			if _, err := stmt.Exec(string(fp), string(profileID), entry.RemoteModID); err != nil {
				return fmt.Errorf("inserting fingerprint/profile row: %w", err)
			}
		}
	}

	return tx.Commit()
}

// ProfilesUsing returns every ProfileID recorded against fingerprint in the
// accelerator. Callers must treat the result as a cache of the CacheIndex's
// own `usedBy` set, not as authoritative.
func (d *DB) ProfilesUsing(fingerprint domain.Fingerprint) ([]domain.ProfileID, error) {
	rows, err := d.Query("SELECT profile_id FROM fingerprint_profiles WHERE fingerprint = ?", string(fingerprint))
	if err != nil {
		return nil, fmt.Errorf("querying fingerprint profiles: %w", err)
	}
	defer rows.Close()

	var out []domain.ProfileID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning profile id: %w", err)
		}
		out = append(out, domain.ProfileID(id))
	}
	return out, rows.Err()
}

// RecordEvent appends one row to the event log, an audit trail independent
// of the JSON indices. The Cache records each admission (new or reused)
// here; the Installer, Activator and Reset/GC record nothing.
func (d *DB) RecordEvent(kind string, fingerprint domain.Fingerprint, profileID domain.ProfileID, remoteModID int64, detail string) error {
	_, err := d.Exec(
		"INSERT INTO events (kind, fingerprint, profile_id, remote_mod_id, detail) VALUES (?, ?, ?, ?, ?)",
		kind, string(fingerprint), string(profileID), remoteModID, detail,
	)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}
