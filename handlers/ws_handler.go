package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"

	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	config "github.com/opsline/intranet_chat/configs"
	"github.com/opsline/intranet_chat/services"
	"github.com/opsline/intranet_chat/websocket"
)

// ServeWs runs one gateway connection: first-frame auth, automatic
// personal-room join, then the event loop. A connection that fails auth
// is closed before it ever reaches the hub or the presence registry.
func (h *MessagingHandler) ServeWs(c *websocketcontrib.Conn) {
	var authMsg websocket.AuthFrame
	if err := c.ReadJSON(&authMsg); err != nil || authMsg.Event != websocket.EventAuth {
		log.Printf("WebSocket auth failed: invalid or missing auth frame: %v", err)
		_ = c.WriteJSON(websocket.ServerEvent{Event: websocket.EventError, Data: websocket.ErrorData{Code: "unauthenticated", Message: "Invalid or missing auth frame"}})
		c.Close()
		return
	}

	claims, err := parseToken(authMsg.Token)
	if err != nil {
		log.Printf("WebSocket auth failed: invalid token: %v", err)
		_ = c.WriteJSON(websocket.ServerEvent{Event: websocket.EventError, Data: websocket.ErrorData{Code: "unauthenticated", Message: "Invalid token"}})
		c.Close()
		return
	}

	rawID, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(rawID)
	if err != nil {
		log.Printf("WebSocket auth failed: invalid user_id claim %q: %v", rawID, err)
		_ = c.WriteJSON(websocket.ServerEvent{Event: websocket.EventError, Data: websocket.ErrorData{Code: "unauthenticated", Message: "Invalid user ID"}})
		c.Close()
		return
	}

	ctx := context.Background()
	client := websocket.NewClient(userID, c)
	if err := h.hub.Register(ctx, client); err != nil {
		_ = c.WriteJSON(websocket.ServerEvent{Event: websocket.EventError, Data: websocket.ErrorData{Code: "internal", Message: "Failed to register connection"}})
		c.Close()
		return
	}
	h.hub.JoinRoom(client, websocket.UserRoom(userID))
	defer func() {
		h.hub.Unregister(ctx, client)
		c.Close()
	}()

	_ = client.SendEvent(websocket.EventReady, fiber.Map{"user_id": userID})

	for {
		var frame websocket.ClientFrame
		if err := c.ReadJSON(&frame); err != nil {
			if websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseAbnormalClosure) {
				log.Printf("WebSocket closed for connection %s: %v", client.ID, err)
			} else {
				log.Printf("WebSocket read error for connection %s: %v", client.ID, err)
			}
			break
		}
		h.dispatchFrame(ctx, client, frame)
	}
}

func (h *MessagingHandler) dispatchFrame(ctx context.Context, client *websocket.Client, frame websocket.ClientFrame) {
	switch frame.Event {
	case websocket.EventJoin:
		// The personal room was joined at auth time; a client-supplied id
		// is only checked against the authenticated identity, never
		// trusted.
		if frame.UserID != "" && frame.UserID != client.UserID.String() {
			client.SendError("forbidden", "Cannot join another user's room")
			return
		}
		h.hub.JoinRoom(client, websocket.UserRoom(client.UserID))

	case websocket.EventJoinConversation:
		conversationID, err := uuid.Parse(frame.ConversationID)
		if err != nil {
			client.SendError("invalid_argument", "Invalid conversation ID")
			return
		}
		// Membership gate: room access is an authorization decision, not
		// an optimization.
		isMember, err := h.chat.IsParticipant(ctx, conversationID, client.UserID)
		if err != nil {
			client.SendError("internal", "Failed to check membership")
			return
		}
		if !isMember {
			client.SendError("forbidden", "Not a participant of this conversation")
			return
		}
		h.hub.JoinRoom(client, websocket.ConversationRoom(conversationID))

	case websocket.EventLeaveConversation:
		conversationID, err := uuid.Parse(frame.ConversationID)
		if err != nil {
			client.SendError("invalid_argument", "Invalid conversation ID")
			return
		}
		h.hub.LeaveRoom(client, websocket.ConversationRoom(conversationID))

	case websocket.EventSendMessage:
		h.handleSendMessage(ctx, client, frame)

	case websocket.EventTyping, websocket.EventStopTyping:
		conversationID, err := uuid.Parse(frame.ConversationID)
		if err != nil {
			client.SendError("invalid_argument", "Invalid conversation ID")
			return
		}
		room := websocket.ConversationRoom(conversationID)
		if !h.hub.InRoom(client, room) {
			client.SendError("forbidden", "Join the conversation room before typing")
			return
		}
		exclude := client.UserID
		h.hub.BroadcastToRoom(room, frame.Event, websocket.TypingData{
			ConversationID: frame.ConversationID,
			DisplayName:    frame.DisplayName,
		}, &exclude)

	default:
		client.SendError("invalid_argument", fmt.Sprintf("Unknown event %q", frame.Event))
	}
}

// handleSendMessage persists via the chat service and only then fans the
// message out: no delivery without durable persistence. Store errors go
// back to the origin connection alone.
func (h *MessagingHandler) handleSendMessage(ctx context.Context, client *websocket.Client, frame websocket.ClientFrame) {
	conversationID, err := uuid.Parse(frame.ConversationID)
	if err != nil {
		client.SendError("invalid_argument", "Invalid conversation ID")
		return
	}

	input := services.SendMessageInput{
		ConversationID: conversationID,
		// Sender comes from the authenticated connection, never the frame.
		SenderID:    client.UserID,
		Content:     frame.Content,
		Attachments: frame.Attachments,
		ClientKey:   frame.ClientMsgID,
	}
	if frame.ReplyTo != "" {
		replyTo, err := uuid.Parse(frame.ReplyTo)
		if err != nil {
			client.SendError("invalid_argument", "Invalid reply target")
			return
		}
		input.ReplyToID = &replyTo
	}

	message, err := h.chat.SendMessage(ctx, input)
	if err != nil {
		client.SendError(errorCode(err), err.Error())
		return
	}

	data := websocket.MessageData{ConversationID: frame.ConversationID, Message: message}
	h.hub.BroadcastToRoom(websocket.ConversationRoom(conversationID), websocket.EventMessageReceived, data, nil)

	// Badge pushes go to personal rooms so participants hear about new
	// messages without the conversation open.
	participantIDs, err := h.chat.ParticipantIDs(ctx, conversationID)
	if err != nil {
		log.Printf("Failed to load participants for conversation %s: %v", conversationID, err)
		return
	}
	for _, participantID := range participantIDs {
		h.hub.BroadcastToRoom(websocket.UserRoom(participantID), websocket.EventConversationUpdated, data, nil)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, services.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, services.ErrForbidden):
		return "forbidden"
	case errors.Is(err, services.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

func parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.Config("JWT_SECRET")), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
