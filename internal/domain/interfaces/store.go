package interfaces

import (
	domaintypes "axocore/internal/domain/types"
)

// Store is the encrypted persistence contract the ratchet depends on
// A single process-wide instance is opened with a
// 32-byte page-encryption key and serializes its own writes; callers do not
// need additional locking for store-only work.
type Store interface {
	IsReady() bool

	// Identity
	SaveIdentity(id domaintypes.Identity) error
	LoadIdentity() (domaintypes.Identity, bool, error)

	// Conversations (ratchet session snapshots)
	HasConversation(id domaintypes.ConversationID) (bool, error)
	LoadConversation(id domaintypes.ConversationID) (domaintypes.Conversation, bool, error)
	StoreConversation(conv domaintypes.Conversation) error
	DeleteConversation(id domaintypes.ConversationID) error
	ListConversationsOf(localUser domaintypes.Username) ([]domaintypes.ConversationID, error)

	// Staged skipped-message keys
	InsertStagedMK(key domaintypes.StagedMessageKey) error
	LoadStagedMKs(id domaintypes.ConversationID) ([]domaintypes.StagedMessageKey, error)
	DeleteStagedMK(id domaintypes.ConversationID, ns uint32) error
	DeleteStagedMKsOlderThan(cutoffUTC int64) error

	// Pre-keys
	StoreSignedPreKey(spk domaintypes.SignedPreKeyPair) error
	LoadSignedPreKey(id domaintypes.SignedPreKeyID) (domaintypes.SignedPreKeyPair, bool, error)
	CurrentSignedPreKeyID() (domaintypes.SignedPreKeyID, bool, error)

	StoreOneTimePreKeys(pairs []domaintypes.OneTimePreKeyPair) error
	ConsumeOneTimePreKey(id domaintypes.PreKeyID) (domaintypes.OneTimePreKeyPair, bool, error)
	ListOneTimePreKeyPublics() ([]domaintypes.OneTimePreKeyPublic, error)
	OneTimePreKeyExists(id domaintypes.PreKeyID) (bool, error)
	GetPreKeyCount() (int, error)

	// Device directory cache (fed by the provisioning client)
	CacheDeviceList(user domaintypes.Username, devices []domaintypes.DeviceID) error
	LoadCachedDeviceList(user domaintypes.Username) ([]domaintypes.DeviceID, bool, error)

	// Account profile cache
	SaveAccountProfile(profile domaintypes.AccountProfile) error
	LoadAccountProfile(serverURL string, username domaintypes.Username) (domaintypes.AccountProfile, bool, error)

	ResetStore() error
	Close() error
}
