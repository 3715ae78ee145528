package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opsline/intranet_chat/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultMessagePageSize = 50
	MaxMessagePageSize     = 100
)

// ChatService owns every query and mutation over conversations and
// messages. It is constructed once in main and handed to the HTTP
// handlers and the websocket gateway by injection.
type ChatService struct {
	db *gorm.DB
}

func NewChatService(db *gorm.DB) *ChatService {
	return &ChatService{db: db}
}

// ConversationView is a conversation resolved for one caller: their own
// unread count, never another participant's, plus whether they muted the
// other party.
type ConversationView struct {
	models.Conversation
	UnreadCount int  `json:"unread_count"`
	Muted       bool `json:"muted"`
}

type SendMessageInput struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Content        string
	Attachments    []string
	ReplyToID      *uuid.UUID
	ClientKey      string
}

// directKey builds the order-independent pair key for a direct
// conversation.
func directKey(a, b uuid.UUID) string {
	if a.String() < b.String() {
		return a.String() + ":" + b.String()
	}
	return b.String() + ":" + a.String()
}

// GetOrCreateConversation returns the direct conversation between the two
// users, creating it with zeroed unread counters when it does not exist.
// The second return value reports whether a new conversation was created.
func (s *ChatService) GetOrCreateConversation(ctx context.Context, requesterID, recipientID uuid.UUID) (*models.Conversation, bool, error) {
	if recipientID == uuid.Nil {
		return nil, false, fmt.Errorf("%w: recipient is required", ErrInvalidArgument)
	}
	if recipientID == requesterID {
		return nil, false, fmt.Errorf("%w: cannot start a conversation with yourself", ErrInvalidArgument)
	}

	db := s.db.WithContext(ctx)
	key := directKey(requesterID, recipientID)

	var conversation models.Conversation
	err := db.Preload("Participants.User").Where("direct_key = ?", key).First(&conversation).Error
	if err == nil {
		return &conversation, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	var recipient models.User
	if err := db.First(&recipient, "id = ?", recipientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("%w: recipient does not exist", ErrNotFound)
		}
		return nil, false, err
	}

	conversation = models.Conversation{
		DirectKey: &key,
		IsGroup:   false,
		Participants: []models.ConversationParticipant{
			{UserID: requesterID, UnreadCount: 0},
			{UserID: recipientID, UnreadCount: 0},
		},
	}
	if err := db.Create(&conversation).Error; err != nil {
		// A concurrent call won the unique-key race; return its row.
		var existing models.Conversation
		if ferr := db.Preload("Participants.User").Where("direct_key = ?", key).First(&existing).Error; ferr == nil {
			return &existing, false, nil
		}
		return nil, false, err
	}

	if err := db.Preload("Participants.User").First(&conversation, "id = ?", conversation.ID).Error; err != nil {
		return nil, false, err
	}
	return &conversation, true, nil
}

// ListConversations returns the caller's conversations newest-activity
// first, each resolved to the caller's own unread count.
func (s *ChatService) ListConversations(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]ConversationView, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxMessagePageSize {
		pageSize = 20
	}

	db := s.db.WithContext(ctx)
	joined := db.Model(&models.Conversation{}).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ?", userID)

	var total int64
	if err := joined.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var conversations []models.Conversation
	err := db.Model(&models.Conversation{}).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ?", userID).
		Order("COALESCE(conversations.last_message_at, conversations.created_at) DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Preload("Participants.User").
		Preload("LastMessage.Sender").
		Find(&conversations).Error
	if err != nil {
		return nil, 0, err
	}

	muted, err := s.mutedSet(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	views := make([]ConversationView, 0, len(conversations))
	for i := range conversations {
		c := conversations[i]
		if c.LastMessage != nil {
			sanitizeMessage(c.LastMessage)
		}
		view := ConversationView{Conversation: c}
		for _, p := range c.Participants {
			if p.UserID == userID {
				view.UnreadCount = p.UnreadCount
			} else if muted[p.UserID] {
				view.Muted = true
			}
		}
		views = append(views, view)
	}
	return views, total, nil
}

// SendMessage persists one message and performs the denormalized
// bookkeeping in a single transaction: field-level atomic increments of
// every other participant's unread counter plus the last-message pointer.
// A repeated ClientKey returns the already-persisted message so dropped
// acknowledgments are safe to retry.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (*models.Message, error) {
	if in.Content == "" && len(in.Attachments) == 0 {
		return nil, fmt.Errorf("%w: message has no content or attachments", ErrInvalidArgument)
	}

	db := s.db.WithContext(ctx)

	var conversation models.Conversation
	if err := db.First(&conversation, "id = ?", in.ConversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: conversation does not exist", ErrNotFound)
		}
		return nil, err
	}

	isMember, err := s.IsParticipant(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, fmt.Errorf("%w: sender is not a participant", ErrForbidden)
	}

	if in.ClientKey != "" {
		var existing models.Message
		err := db.Preload("Sender").
			Where("conversation_id = ? AND sender_id = ? AND client_key = ?", in.ConversationID, in.SenderID, in.ClientKey).
			First(&existing).Error
		if err == nil {
			sanitizeMessage(&existing)
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if in.ReplyToID != nil {
		var n int64
		err := db.Model(&models.Message{}).
			Where("id = ? AND conversation_id = ?", *in.ReplyToID, in.ConversationID).
			Count(&n).Error
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: reply target is not in this conversation", ErrInvalidArgument)
		}
	}

	message := models.Message{
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		Attachments:    in.Attachments,
		ReplyToID:      in.ReplyToID,
	}
	if in.ClientKey != "" {
		key := in.ClientKey
		message.ClientKey = &key
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id <> ?", in.ConversationID, in.SenderID).
			UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", in.ConversationID).
			Updates(map[string]interface{}{
				"last_message_id": message.ID,
				"last_message_at": message.CreatedAt,
			}).Error
	})
	if err != nil {
		if in.ClientKey != "" {
			// The unique client-key index may have rejected a concurrent
			// retry of the same send.
			var existing models.Message
			ferr := db.Preload("Sender").
				Where("conversation_id = ? AND sender_id = ? AND client_key = ?", in.ConversationID, in.SenderID, in.ClientKey).
				First(&existing).Error
			if ferr == nil {
				sanitizeMessage(&existing)
				return &existing, nil
			}
		}
		return nil, err
	}

	if err := db.Preload("Sender").First(&message, "id = ?", message.ID).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// GetMessages returns one page of history, newest first, strictly older
// than the cursor message when a cursor is supplied. Opening history
// resets the caller's unread counter and stamps their read marker.
func (s *ChatService) GetMessages(ctx context.Context, conversationID, requesterID uuid.UUID, cursor *uuid.UUID, limit int) ([]models.Message, *uuid.UUID, error) {
	if limit <= 0 {
		limit = DefaultMessagePageSize
	}
	if limit > MaxMessagePageSize {
		limit = MaxMessagePageSize
	}

	db := s.db.WithContext(ctx)

	var conversation models.Conversation
	if err := db.First(&conversation, "id = ?", conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: conversation does not exist", ErrNotFound)
		}
		return nil, nil, err
	}

	isMember, err := s.IsParticipant(ctx, conversationID, requesterID)
	if err != nil {
		return nil, nil, err
	}
	if !isMember {
		return nil, nil, fmt.Errorf("%w: requester is not a participant", ErrForbidden)
	}

	query := db.Preload("Sender").Preload("Reactions").
		Where("conversation_id = ?", conversationID)

	if cursor != nil {
		var boundary models.Message
		err := db.Where("id = ? AND conversation_id = ?", *cursor, conversationID).First(&boundary).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, fmt.Errorf("%w: cursor does not identify a message in this conversation", ErrInvalidArgument)
			}
			return nil, nil, err
		}
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			boundary.CreatedAt, boundary.CreatedAt, boundary.ID,
		)
	}

	var messages []models.Message
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, nil, err
	}

	now := time.Now()
	if err := db.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, requesterID).
		UpdateColumns(map[string]interface{}{"unread_count": 0, "last_read_at": now}).Error; err != nil {
		return nil, nil, err
	}

	var reads []models.MessageRead
	for i := range messages {
		sanitizeMessage(&messages[i])
		if messages[i].SenderID != requesterID {
			reads = append(reads, models.MessageRead{MessageID: messages[i].ID, UserID: requesterID, ReadAt: now})
		}
	}
	if len(reads) > 0 {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&reads).Error; err != nil {
			return nil, nil, err
		}
	}

	var nextCursor *uuid.UUID
	if len(messages) == limit {
		oldest := messages[len(messages)-1].ID
		nextCursor = &oldest
	}
	return messages, nextCursor, nil
}

// ToggleMute flips targetUserID's membership in the caller's mute list
// and reports the resulting state.
func (s *ChatService) ToggleMute(ctx context.Context, userID, targetUserID uuid.UUID) (bool, error) {
	if targetUserID == uuid.Nil {
		return false, fmt.Errorf("%w: target user is required", ErrInvalidArgument)
	}

	muted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND muted_user_id = ?", userID, targetUserID).Delete(&models.UserMute{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		muted = true
		return tx.Create(&models.UserMute{UserID: userID, MutedUserID: targetUserID}).Error
	})
	if err != nil {
		return false, err
	}
	return muted, nil
}

// ListChatUsers returns the active directory entries the caller can start
// a conversation with.
func (s *ChatService) ListChatUsers(ctx context.Context, callerID uuid.UUID) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("id <> ? AND is_active = ?", callerID, true).
		Order("username ASC").
		Find(&users).Error
	return users, err
}

// IsParticipant reports whether the user belongs to the conversation. The
// gateway uses it as the authorization gate for conversation-room joins.
func (s *ChatService) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&n).Error
	return n > 0, err
}

// ParticipantIDs returns every member of the conversation. The gateway
// fans conversation-level notices out to each member's personal room.
func (s *ChatService) ParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// AddReaction records one (user, symbol) reaction on a message. Repeating
// the same pair is a no-op; one user may react with several distinct
// symbols.
func (s *ChatService) AddReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*models.MessageReaction, error) {
	if emoji == "" || len(emoji) > 16 {
		return nil, fmt.Errorf("%w: reaction symbol is required", ErrInvalidArgument)
	}

	message, err := s.authorizeMessageAccess(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}

	reaction := models.MessageReaction{MessageID: message.ID, UserID: userID, Emoji: emoji}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&reaction).Error
	if err != nil {
		return nil, err
	}
	return &reaction, nil
}

// RemoveReaction deletes the caller's reaction with the given symbol.
// Removing a reaction that is not there is not an error.
func (s *ChatService) RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) error {
	if _, err := s.authorizeMessageAccess(ctx, messageID, userID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&models.MessageReaction{}).Error
}

// DeleteMessage soft-deletes a message. Only the sender may delete; the
// row is retained so ordering and pagination accounting are unchanged.
func (s *ChatService) DeleteMessage(ctx context.Context, messageID, requesterID uuid.UUID) error {
	var message models.Message
	if err := s.db.WithContext(ctx).First(&message, "id = ?", messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: message does not exist", ErrNotFound)
		}
		return err
	}
	if message.SenderID != requesterID {
		return fmt.Errorf("%w: only the sender can delete a message", ErrForbidden)
	}
	return s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", messageID).
		UpdateColumn("deleted", true).Error
}

func (s *ChatService) authorizeMessageAccess(ctx context.Context, messageID, userID uuid.UUID) (*models.Message, error) {
	var message models.Message
	if err := s.db.WithContext(ctx).First(&message, "id = ?", messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: message does not exist", ErrNotFound)
		}
		return nil, err
	}
	isMember, err := s.IsParticipant(ctx, message.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)
	}
	return &message, nil
}

func (s *ChatService) mutedSet(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	var mutes []models.UserMute
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&mutes).Error; err != nil {
		return nil, err
	}
	set := make(map[uuid.UUID]bool, len(mutes))
	for _, m := range mutes {
		set[m.MutedUserID] = true
	}
	return set, nil
}

// sanitizeMessage hides the content of soft-deleted messages while
// keeping the row visible for ordering.
func sanitizeMessage(m *models.Message) {
	if m.Deleted {
		m.Content = ""
		m.Attachments = nil
	}
}
