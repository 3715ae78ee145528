package websocket

import "github.com/opsline/intranet_chat/models"

// Client-to-server event names.
const (
	EventAuth              = "auth"
	EventJoin              = "join"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventTyping            = "typing"
	EventStopTyping        = "stop_typing"
)

// Server-to-client event names.
const (
	EventReady               = "ready"
	EventMessageReceived     = "message_received"
	EventConversationUpdated = "conversation_updated"
	EventError               = "error"
)

// AuthFrame is the first frame a client must send after the upgrade.
type AuthFrame struct {
	Event string `json:"event"`
	Token string `json:"token"`
}

// ClientFrame is the envelope for every post-auth client event.
type ClientFrame struct {
	Event          string   `json:"event"`
	UserID         string   `json:"user_id,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Content        string   `json:"content,omitempty"`
	Attachments    []string `json:"attachments,omitempty"`
	ReplyTo        string   `json:"reply_to,omitempty"`
	ClientMsgID    string   `json:"client_msg_id,omitempty"`
	DisplayName    string   `json:"display_name,omitempty"`
}

// ServerEvent is the envelope for every server push.
type ServerEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ErrorData is the payload of a scoped error event. Post-auth failures
// never tear the connection down.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TypingData is broadcast to the other members of a conversation room.
type TypingData struct {
	ConversationID string `json:"conversation_id"`
	DisplayName    string `json:"display_name,omitempty"`
}

// MessageData carries a fully persisted message, sender resolved.
type MessageData struct {
	ConversationID string          `json:"conversation_id"`
	Message        *models.Message `json:"message"`
}
