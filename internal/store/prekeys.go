package store

import (
	"database/sql"
	"errors"

	"axocore/internal/domain"
	"axocore/internal/errs"
)

func (s *SQLStore) StoreSignedPreKey(spk domain.SignedPreKeyPair) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return errs.Wrap(errs.SqlError, "begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE signed_prekeys SET is_current = 0`); err != nil {
		return errs.Wrap(errs.SqlError, "clear current signed pre-key", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO signed_prekeys(id, priv, pub, sig, is_current) VALUES (?, ?, ?, ?, 1)`,
		int64(spk.ID), spk.Priv.Slice(), spk.Pub.Slice(), spk.Signature,
	); err != nil {
		return errs.Wrap(errs.SqlError, "insert signed pre-key", err)
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.SqlError, "commit signed pre-key", err)
	}
	return nil
}

func (s *SQLStore) LoadSignedPreKey(id domain.SignedPreKeyID) (domain.SignedPreKeyPair, bool, error) {
	var priv, pub, sig []byte
	row := s.db.QueryRow(`SELECT priv, pub, sig FROM signed_prekeys WHERE id = ?`, int64(id))
	if err := row.Scan(&priv, &pub, &sig); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SignedPreKeyPair{}, false, nil
		}
		return domain.SignedPreKeyPair{}, false, errs.Wrap(errs.SqlError, "load signed pre-key", err)
	}
	spk := domain.SignedPreKeyPair{ID: id, Signature: sig}
	copy(spk.Priv[:], priv)
	copy(spk.Pub[:], pub)
	return spk, true, nil
}

func (s *SQLStore) CurrentSignedPreKeyID() (domain.SignedPreKeyID, bool, error) {
	var id int64
	row := s.db.QueryRow(`SELECT id FROM signed_prekeys WHERE is_current = 1`)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, errs.Wrap(errs.SqlError, "current signed pre-key", err)
	}
	return domain.SignedPreKeyID(id), true, nil
}

func (s *SQLStore) StoreOneTimePreKeys(pairs []domain.OneTimePreKeyPair) error {
	if len(pairs) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return errs.Wrap(errs.SqlError, "begin tx", err)
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`INSERT INTO prekeys(id, priv, pub) VALUES (?, ?, ?)`)
	if err != nil {
		return errs.Wrap(errs.SqlError, "prepare insert pre-key", err)
	}
	defer stmt.Close()
	for _, p := range pairs {
		if _, err := stmt.Exec(int64(p.ID), p.Priv.Slice(), p.Pub.Slice()); err != nil {
			return errs.Wrap(errs.SqlError, "insert pre-key", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.SqlError, "commit pre-keys", err)
	}
	return nil
}

// ConsumeOneTimePreKey looks up and deletes a one-time pre-key in a single
// transaction, so the pre-key is never "consumed twice" under concurrent
// receivers.
func (s *SQLStore) ConsumeOneTimePreKey(id domain.PreKeyID) (domain.OneTimePreKeyPair, bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return domain.OneTimePreKeyPair{}, false, errs.Wrap(errs.SqlError, "begin tx", err)
	}
	defer tx.Rollback()

	var priv, pub []byte
	row := tx.QueryRow(`SELECT priv, pub FROM prekeys WHERE id = ?`, int64(id))
	if err := row.Scan(&priv, &pub); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OneTimePreKeyPair{}, false, nil
		}
		return domain.OneTimePreKeyPair{}, false, errs.Wrap(errs.SqlError, "load pre-key", err)
	}
	if _, err := tx.Exec(`DELETE FROM prekeys WHERE id = ?`, int64(id)); err != nil {
		return domain.OneTimePreKeyPair{}, false, errs.Wrap(errs.SqlError, "delete pre-key", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.OneTimePreKeyPair{}, false, errs.Wrap(errs.SqlError, "commit consume pre-key", err)
	}
	pk := domain.OneTimePreKeyPair{ID: id}
	copy(pk.Priv[:], priv)
	copy(pk.Pub[:], pub)
	return pk, true, nil
}

func (s *SQLStore) ListOneTimePreKeyPublics() ([]domain.OneTimePreKeyPublic, error) {
	rows, err := s.db.Query(`SELECT id, pub FROM prekeys ORDER BY id`)
	if err != nil {
		return nil, errs.Wrap(errs.SqlError, "list pre-keys", err)
	}
	defer rows.Close()
	var out []domain.OneTimePreKeyPublic
	for rows.Next() {
		var id int64
		var pub []byte
		if err := rows.Scan(&id, &pub); err != nil {
			return nil, errs.Wrap(errs.SqlError, "scan pre-key", err)
		}
		pk := domain.OneTimePreKeyPublic{ID: domain.PreKeyID(id)}
		copy(pk.Pub[:], pub)
		out = append(out, pk)
	}
	return out, rows.Err()
}

func (s *SQLStore) OneTimePreKeyExists(id domain.PreKeyID) (bool, error) {
	var n int
	row := s.db.QueryRow(`SELECT COUNT(1) FROM prekeys WHERE id = ?`, int64(id))
	if err := row.Scan(&n); err != nil {
		return false, errs.Wrap(errs.SqlError, "check pre-key", err)
	}
	return n > 0, nil
}

func (s *SQLStore) GetPreKeyCount() (int, error) {
	var n int
	row := s.db.QueryRow(`SELECT COUNT(1) FROM prekeys`)
	if err := row.Scan(&n); err != nil {
		return 0, errs.Wrap(errs.SqlError, "count pre-keys", err)
	}
	return n, nil
}
