package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// DirectKey is the sorted "<idA>:<idB>" pair for a direct
	// conversation. The unique index makes concurrent get-or-create calls
	// for the same pair collapse onto one row. Null for groups.
	DirectKey *string `gorm:"size:80;uniqueIndex" json:"-"`

	// Group fields are accepted by the schema but no in-scope operation
	// exercises them; direct conversations always have exactly two
	// participants.
	IsGroup      bool       `gorm:"not null;default:false" json:"is_group"`
	GroupName    *string    `gorm:"size:255" json:"group_name,omitempty"`
	GroupAdminID *uuid.UUID `gorm:"type:uuid" json:"group_admin_id,omitempty"`

	// Denormalized pointer to the newest message, kept current on every
	// send so conversation lists sort without touching the messages table.
	LastMessageID *uuid.UUID `gorm:"type:uuid" json:"last_message_id,omitempty"`
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at,omitempty"`
	LastMessage   *Message   `gorm:"foreignkey:LastMessageID" json:"last_message,omitempty"`

	Participants []ConversationParticipant `json:"participants,omitempty"`
	Messages     []Message                 `json:"-"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ConversationParticipant is the one canonical representation of a user's
// membership and unread state in a conversation. UnreadCount is only ever
// mutated with field-level SQL updates (atomic increment on send, reset to
// zero on read), never by rewriting the row from a stale struct.
type ConversationParticipant struct {
	ConversationID uuid.UUID  `gorm:"type:uuid;primaryKey" json:"conversation_id"`
	UserID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"user_id"`
	UnreadCount    int        `gorm:"not null;default:0" json:"unread_count"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	JoinedAt       time.Time  `gorm:"autoCreateTime" json:"joined_at"`

	User User `gorm:"foreignkey:UserID" json:"user,omitempty"`
}
