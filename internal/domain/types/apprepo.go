package types

import "time"

// ConversationRecord is the non-cryptographic, application-facing view of a
// conversation — display metadata the UI layer needs that has no bearing on
// ratchet state (which lives in the encrypted Conversation entity instead).
type ConversationRecord struct {
	ID         string `gorm:"primaryKey"`
	LocalUser  string `gorm:"index"`
	RemoteUser string `gorm:"index"`
	Title      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EventRecord is an application-level timeline entry (message sent/received,
// device added, identity change notice) kept for the local UI's history view.
type EventRecord struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	ConversationID string `gorm:"index"`
	Kind           string
	Body           string
	CreatedAt      time.Time
}

// ObjectRecord is opaque JSON application data addressed by key, scoped to a
// conversation (attachment metadata, read receipts, client-side preferences).
type ObjectRecord struct {
	ConversationID string `gorm:"primaryKey"`
	Key            string `gorm:"primaryKey"`
	ValueJSON      string
	UpdatedAt      time.Time
}
