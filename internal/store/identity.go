package store

import (
	"database/sql"
	"errors"

	"axocore/internal/domain"
	"axocore/internal/errs"
)

func (s *SQLStore) SaveIdentity(id domain.Identity) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO identity(id, user_name, xpub, xpriv, edpub, edpriv) VALUES (1, ?, ?, ?, ?, ?)`,
		string(id.UserName), id.XPub.Slice(), id.XPriv.Slice(), id.EdPub.Slice(), id.EdPriv.Slice(),
	)
	if err != nil {
		return errs.Wrap(errs.SqlError, "save identity", err)
	}
	return nil
}

func (s *SQLStore) LoadIdentity() (domain.Identity, bool, error) {
	var userName string
	var xpub, xpriv, edpub, edpriv []byte
	row := s.db.QueryRow(`SELECT user_name, xpub, xpriv, edpub, edpriv FROM identity WHERE id = 1`)
	if err := row.Scan(&userName, &xpub, &xpriv, &edpub, &edpriv); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Identity{}, false, nil
		}
		return domain.Identity{}, false, errs.Wrap(errs.SqlError, "load identity", err)
	}
	var id domain.Identity
	id.UserName = domain.Username(userName)
	copy(id.XPub[:], xpub)
	copy(id.XPriv[:], xpriv)
	copy(id.EdPub[:], edpub)
	copy(id.EdPriv[:], edpriv)
	return id, true, nil
}
