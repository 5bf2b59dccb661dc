package store

import (
	"axocore/internal/domain"
	"axocore/internal/errs"
)

// InsertStagedMK stores a message key derived ahead of delivery order, as
// unittests/stagedKeyStore.cpp in the source tree exercises: inserted rows
// carry a wall-clock timestamp so they can later be purged by age.
func (s *SQLStore) InsertStagedMK(key domain.StagedMessageKey) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO staged_mks(local_user, remote_user, remote_device, ns, mk, inserted_utc) VALUES (?, ?, ?, ?, ?, ?)`,
		string(key.LocalUser), string(key.RemoteUser), string(key.RemoteDevice), key.Ns, key.MessageKey, key.InsertedUTC,
	)
	if err != nil {
		return errs.Wrap(errs.SqlError, "insert staged mk", err)
	}
	return nil
}

func (s *SQLStore) LoadStagedMKs(id domain.ConversationID) ([]domain.StagedMessageKey, error) {
	rows, err := s.db.Query(
		`SELECT ns, mk, inserted_utc FROM staged_mks WHERE local_user=? AND remote_user=? AND remote_device=?`,
		string(id.LocalUser), string(id.RemoteUser), string(id.RemoteDevice),
	)
	if err != nil {
		return nil, errs.Wrap(errs.SqlError, "load staged mks", err)
	}
	defer rows.Close()
	var out []domain.StagedMessageKey
	for rows.Next() {
		var ns uint32
		var mk []byte
		var insertedUTC int64
		if err := rows.Scan(&ns, &mk, &insertedUTC); err != nil {
			return nil, errs.Wrap(errs.SqlError, "scan staged mk", err)
		}
		out = append(out, domain.StagedMessageKey{
			LocalUser: id.LocalUser, RemoteUser: id.RemoteUser, RemoteDevice: id.RemoteDevice,
			Ns: ns, MessageKey: mk, InsertedUTC: insertedUTC,
		})
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteStagedMK(id domain.ConversationID, ns uint32) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.Exec(
		`DELETE FROM staged_mks WHERE local_user=? AND remote_user=? AND remote_device=? AND ns=?`,
		string(id.LocalUser), string(id.RemoteUser), string(id.RemoteDevice), ns,
	)
	if err != nil {
		return errs.Wrap(errs.SqlError, "delete staged mk", err)
	}
	return nil
}

// DeleteStagedMKsOlderThan purges by absolute age (default >=3 days,
// caller-specified cutoff here).
func (s *SQLStore) DeleteStagedMKsOlderThan(cutoffUTC int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.Exec(`DELETE FROM staged_mks WHERE inserted_utc < ?`, cutoffUTC)
	if err != nil {
		return errs.Wrap(errs.SqlError, "purge staged mks", err)
	}
	return nil
}
