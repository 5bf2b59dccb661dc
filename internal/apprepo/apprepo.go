// Package apprepo is the non-cryptographic application repository:
// conversation display metadata, timeline events, and
// opaque per-conversation objects, kept in a plain unencrypted SQLite file
// entirely separate from the ratchet store's SQLCipher database. Grounded on
// the pack's go-fdo-server use of gorm.io/gorm + gorm.io/driver/sqlite for
// its own non-cryptographic application tables.
package apprepo

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"axocore/internal/domain"
	"axocore/internal/errs"
)

// Repo is the GORM-backed application repository.
type Repo struct {
	db *gorm.DB
}

// Open opens (and migrates) the application database at path.
func Open(path string) (*Repo, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errs.Wrap(errs.SqlError, "apprepo: open", err)
	}
	if err := db.AutoMigrate(&domain.ConversationRecord{}, &domain.EventRecord{}, &domain.ObjectRecord{}); err != nil {
		return nil, errs.Wrap(errs.SqlError, "apprepo: migrate", err)
	}
	return &Repo{db: db}, nil
}

// Close releases the underlying database connection.
func (r *Repo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return errs.Wrap(errs.SqlError, "apprepo: close", err)
	}
	return sqlDB.Close()
}

// UpsertConversation creates or updates a conversation's display metadata.
func (r *Repo) UpsertConversation(rec domain.ConversationRecord) error {
	now := time.Now()
	rec.UpdatedAt = now
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if err := r.db.Save(&rec).Error; err != nil {
		return errs.Wrap(errs.SqlError, "apprepo: upsert conversation", err)
	}
	return nil
}

// GetConversation loads a conversation by id.
func (r *Repo) GetConversation(id string) (domain.ConversationRecord, error) {
	var rec domain.ConversationRecord
	err := r.db.First(&rec, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return domain.ConversationRecord{}, errs.New(errs.NotReady, "apprepo: conversation not found")
	}
	if err != nil {
		return domain.ConversationRecord{}, errs.Wrap(errs.SqlError, "apprepo: get conversation", err)
	}
	return rec, nil
}

// ListConversations returns every conversation belonging to localUser,
// most-recently-updated first.
func (r *Repo) ListConversations(localUser string) ([]domain.ConversationRecord, error) {
	var recs []domain.ConversationRecord
	err := r.db.Where("local_user = ?", localUser).Order("updated_at desc").Find(&recs).Error
	if err != nil {
		return nil, errs.Wrap(errs.SqlError, "apprepo: list conversations", err)
	}
	return recs, nil
}

// DeleteConversation removes a conversation and its events/objects.
func (r *Repo) DeleteConversation(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.EventRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.ObjectRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.ConversationRecord{}, "id = ?", id).Error
	})
}

// AppendEvent records a timeline entry for a conversation.
func (r *Repo) AppendEvent(conversationID, kind, body string) error {
	ev := domain.EventRecord{ConversationID: conversationID, Kind: kind, Body: body, CreatedAt: time.Now()}
	if err := r.db.Create(&ev).Error; err != nil {
		return errs.Wrap(errs.SqlError, "apprepo: append event", err)
	}
	return nil
}

// ListEvents returns a conversation's timeline, oldest first.
func (r *Repo) ListEvents(conversationID string) ([]domain.EventRecord, error) {
	var evs []domain.EventRecord
	err := r.db.Where("conversation_id = ?", conversationID).Order("created_at asc").Find(&evs).Error
	if err != nil {
		return nil, errs.Wrap(errs.SqlError, "apprepo: list events", err)
	}
	return evs, nil
}

// PutObject upserts an opaque JSON value under (conversationID, key).
func (r *Repo) PutObject(conversationID, key, valueJSON string) error {
	obj := domain.ObjectRecord{ConversationID: conversationID, Key: key, ValueJSON: valueJSON, UpdatedAt: time.Now()}
	err := r.db.Clauses(upsertObjectClause()).Create(&obj).Error
	if err != nil {
		return errs.Wrap(errs.SqlError, "apprepo: put object", err)
	}
	return nil
}

// GetObject loads the JSON value stored under (conversationID, key).
func (r *Repo) GetObject(conversationID, key string) (string, error) {
	var obj domain.ObjectRecord
	err := r.db.First(&obj, "conversation_id = ? AND key = ?", conversationID, key).Error
	if err == gorm.ErrRecordNotFound {
		return "", errs.New(errs.NotReady, "apprepo: object not found")
	}
	if err != nil {
		return "", errs.Wrap(errs.SqlError, "apprepo: get object", err)
	}
	return obj.ValueJSON, nil
}

func upsertObjectClause() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value_json", "updated_at"}),
	}
}
