package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"axocore/internal/domain"
	"axocore/internal/errs"
)

// conversationBlob is the JSON shape persisted behind blobVersion, never
// marshalled with its own ID fields (those live in the row's primary key).
type conversationBlob struct {
	RootKey         []byte                `json:"root_key"`
	ChainKeySend    []byte                `json:"chain_key_send,omitempty"`
	ChainKeyRecv    []byte                `json:"chain_key_recv,omitempty"`
	DHRatchetSend   domain.X25519KeyPair  `json:"dh_ratchet_send"`
	DHRatchetRecv   domain.X25519Public   `json:"dh_ratchet_recv"`
	Ns              uint32                `json:"ns"`
	Nr              uint32                `json:"nr"`
	PNs             uint32                `json:"pns"`
	IdentityRemote  domain.X25519Public   `json:"identity_remote"`
	PendingEstablish *domain.EstablishmentBlock `json:"pending_establish,omitempty"`
	ZRTPVerifyState byte                  `json:"zrtp_verify_state"`
}

func encodeConversation(c domain.Conversation) ([]byte, error) {
	b := conversationBlob{
		RootKey: c.RootKey, ChainKeySend: c.ChainKeySend, ChainKeyRecv: c.ChainKeyRecv,
		DHRatchetSend: c.DHRatchetSend, DHRatchetRecv: c.DHRatchetRecv,
		Ns: c.Ns, Nr: c.Nr, PNs: c.PNs,
		IdentityRemote: c.IdentityRemote, PendingEstablish: c.PendingEstablish, ZRTPVerifyState: c.ZRTPVerifyState,
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return append([]byte{blobVersion}, payload...), nil
}

func decodeConversation(id domain.ConversationID, blob []byte) (domain.Conversation, error) {
	if len(blob) < 1 {
		return domain.Conversation{}, errs.New(errs.Internal, "store: empty conversation blob")
	}
	if blob[0] != blobVersion {
		return domain.Conversation{}, errs.New(errs.Internal, "store: unknown conversation blob version")
	}
	var b conversationBlob
	if err := json.Unmarshal(blob[1:], &b); err != nil {
		return domain.Conversation{}, errs.Wrap(errs.Internal, "decode conversation", err)
	}
	return domain.Conversation{
		ID: id, RootKey: b.RootKey, ChainKeySend: b.ChainKeySend, ChainKeyRecv: b.ChainKeyRecv,
		DHRatchetSend: b.DHRatchetSend, DHRatchetRecv: b.DHRatchetRecv,
		Ns: b.Ns, Nr: b.Nr, PNs: b.PNs,
		IdentityRemote: b.IdentityRemote, PendingEstablish: b.PendingEstablish, ZRTPVerifyState: b.ZRTPVerifyState,
	}, nil
}

func (s *SQLStore) HasConversation(id domain.ConversationID) (bool, error) {
	var n int
	row := s.db.QueryRow(
		`SELECT COUNT(1) FROM conversations WHERE local_user=? AND remote_user=? AND remote_device=?`,
		string(id.LocalUser), string(id.RemoteUser), string(id.RemoteDevice),
	)
	if err := row.Scan(&n); err != nil {
		return false, errs.Wrap(errs.SqlError, "has conversation", err)
	}
	return n > 0, nil
}

func (s *SQLStore) LoadConversation(id domain.ConversationID) (domain.Conversation, bool, error) {
	var blob []byte
	row := s.db.QueryRow(
		`SELECT blob FROM conversations WHERE local_user=? AND remote_user=? AND remote_device=?`,
		string(id.LocalUser), string(id.RemoteUser), string(id.RemoteDevice),
	)
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Conversation{}, false, nil
		}
		return domain.Conversation{}, false, errs.Wrap(errs.SqlError, "load conversation", err)
	}
	c, err := decodeConversation(id, blob)
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return c, true, nil
}

func (s *SQLStore) StoreConversation(c domain.Conversation) error {
	blob, err := encodeConversation(c)
	if err != nil {
		return errs.Wrap(errs.Internal, "encode conversation", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.db.Exec(
		`INSERT INTO conversations(local_user, remote_user, remote_device, blob) VALUES (?, ?, ?, ?)
		 ON CONFLICT(local_user, remote_user, remote_device) DO UPDATE SET blob=excluded.blob`,
		string(c.ID.LocalUser), string(c.ID.RemoteUser), string(c.ID.RemoteDevice), blob,
	)
	if err != nil {
		return errs.Wrap(errs.SqlError, "store conversation", err)
	}
	return nil
}

func (s *SQLStore) DeleteConversation(id domain.ConversationID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.Exec(
		`DELETE FROM conversations WHERE local_user=? AND remote_user=? AND remote_device=?`,
		string(id.LocalUser), string(id.RemoteUser), string(id.RemoteDevice),
	)
	if err != nil {
		return errs.Wrap(errs.SqlError, "delete conversation", err)
	}
	return nil
}

func (s *SQLStore) ListConversationsOf(localUser domain.Username) ([]domain.ConversationID, error) {
	rows, err := s.db.Query(`SELECT remote_user, remote_device FROM conversations WHERE local_user=?`, string(localUser))
	if err != nil {
		return nil, errs.Wrap(errs.SqlError, "list conversations", err)
	}
	defer rows.Close()
	var out []domain.ConversationID
	for rows.Next() {
		var ru, rd string
		if err := rows.Scan(&ru, &rd); err != nil {
			return nil, errs.Wrap(errs.SqlError, "scan conversation", err)
		}
		out = append(out, domain.ConversationID{LocalUser: localUser, RemoteUser: domain.Username(ru), RemoteDevice: domain.DeviceID(rd)})
	}
	return out, rows.Err()
}
