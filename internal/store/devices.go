package store

import (
	"database/sql"
	"errors"

	"axocore/internal/domain"
	"axocore/internal/errs"
)

func (s *SQLStore) CacheDeviceList(user domain.Username, devices []domain.DeviceID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return errs.Wrap(errs.SqlError, "begin tx", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM device_cache WHERE user_name=?`, string(user)); err != nil {
		return errs.Wrap(errs.SqlError, "clear device cache", err)
	}
	for _, d := range devices {
		if _, err := tx.Exec(`INSERT INTO device_cache(user_name, device_id) VALUES (?, ?)`, string(user), string(d)); err != nil {
			return errs.Wrap(errs.SqlError, "insert device cache", err)
		}
	}
	return errs.Wrap(errs.SqlError, "commit device cache", tx.Commit())
}

func (s *SQLStore) LoadCachedDeviceList(user domain.Username) ([]domain.DeviceID, bool, error) {
	rows, err := s.db.Query(`SELECT device_id FROM device_cache WHERE user_name=?`, string(user))
	if err != nil {
		return nil, false, errs.Wrap(errs.SqlError, "load device cache", err)
	}
	defer rows.Close()
	var out []domain.DeviceID
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, false, errs.Wrap(errs.SqlError, "scan device cache", err)
		}
		out = append(out, domain.DeviceID(d))
	}
	return out, len(out) > 0, rows.Err()
}

func (s *SQLStore) SaveAccountProfile(profile domain.AccountProfile) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO account_profiles(server_url, username, canary) VALUES (?, ?, ?)
		 ON CONFLICT(server_url, username) DO UPDATE SET canary=excluded.canary`,
		profile.ServerURL, string(profile.Username), profile.Canary,
	)
	return errs.Wrap(errs.SqlError, "save account profile", err)
}

func (s *SQLStore) LoadAccountProfile(serverURL string, username domain.Username) (domain.AccountProfile, bool, error) {
	var canary string
	row := s.db.QueryRow(`SELECT canary FROM account_profiles WHERE server_url=? AND username=?`, serverURL, string(username))
	if err := row.Scan(&canary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AccountProfile{}, false, nil
		}
		return domain.AccountProfile{}, false, errs.Wrap(errs.SqlError, "load account profile", err)
	}
	return domain.AccountProfile{ServerURL: serverURL, Username: username, Canary: canary}, true, nil
}
