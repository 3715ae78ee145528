package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_conv_created,priority:1;uniqueIndex:idx_messages_client_key,priority:1" json:"conversation_id"`
	SenderID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_messages_client_key,priority:2" json:"sender_id"`
	Content        string    `gorm:"type:text" json:"content"`

	// Attachment URLs in the order the client supplied them.
	Attachments []string `gorm:"serializer:json" json:"attachments"`

	// ReplyToID threads this message under another one in the same
	// conversation.
	ReplyToID *uuid.UUID `gorm:"type:uuid" json:"reply_to_id,omitempty"`

	// ClientKey is the client-supplied idempotency key, unique per
	// (conversation, sender) when set; a retried send with the same key
	// returns the already-persisted message instead of creating a
	// duplicate. Different senders may reuse the same key.
	ClientKey *string `gorm:"size:64;uniqueIndex:idx_messages_client_key,priority:3" json:"client_key,omitempty"`

	// Deleted messages stay in history (and in pagination accounting) but
	// have their content hidden on serialization.
	Deleted bool `gorm:"not null;default:false" json:"deleted"`

	Sender    User              `gorm:"foreignkey:SenderID" json:"sender"`
	Reactions []MessageReaction `json:"reactions,omitempty"`
	ReadBy    []MessageRead     `json:"read_by,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_messages_conv_created,priority:2" json:"created_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// MessageReaction records one user's reaction with one symbol. The
// composite key makes a repeated (user, symbol) pair on the same message
// a no-op rather than a duplicate.
type MessageReaction struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey" json:"message_id"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	Emoji     string    `gorm:"size:16;primaryKey" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageRead marks that a user has fetched a page containing the
// message. It is bookkeeping independent of ConversationParticipant's
// unread counter and nothing derives one from the other.
type MessageRead struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey" json:"message_id"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	ReadAt    time.Time `gorm:"autoCreateTime" json:"read_at"`
}
