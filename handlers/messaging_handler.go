package handlers

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/opsline/intranet_chat/middleware"
	"github.com/opsline/intranet_chat/presence"
	"github.com/opsline/intranet_chat/services"
	"github.com/opsline/intranet_chat/websocket"
)

var validate = validator.New()

// MessagingHandler is the request/response surface over the chat service.
// Dependencies arrive by injection from main.
type MessagingHandler struct {
	chat     *services.ChatService
	hub      *websocket.Hub
	registry presence.Registry
}

func NewMessagingHandler(chat *services.ChatService, hub *websocket.Hub, registry presence.Registry) *MessagingHandler {
	return &MessagingHandler{chat: chat, hub: hub, registry: registry}
}

func respondError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrInvalidArgument):
		code = fiber.StatusBadRequest
	case errors.Is(err, services.ErrUnauthenticated):
		code = fiber.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		code = fiber.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		code = fiber.StatusNotFound
	}
	return c.Status(code).JSON(fiber.Map{"status": "error", "message": err.Error()})
}

// GetChatUsers lists the directory entries the caller can message,
// annotated with live status from the presence registry.
func (h *MessagingHandler) GetChatUsers(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"status": "error", "message": "Invalid identity"})
	}

	users, err := h.chat.ListChatUsers(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}

	onlineIDs, err := h.registry.ListOnlineUserIDs(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	online := make(map[uuid.UUID]bool, len(onlineIDs))
	for _, id := range onlineIDs {
		online[id] = true
	}

	items := make([]fiber.Map, 0, len(users))
	for _, u := range users {
		items = append(items, fiber.Map{
			"id":       u.ID,
			"username": u.Username,
			"image":    u.Image,
			"online":   online[u.ID],
		})
	}
	return c.JSON(fiber.Map{"items": items})
}

// GetUserConversations returns the caller's conversations, newest
// activity first, in the standard paginated envelope.
func (h *MessagingHandler) GetUserConversations(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"status": "error", "message": "Invalid identity"})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	views, total, err := h.chat.ListConversations(c.UserContext(), userID, page, pageSize)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"items":     views,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"has_more":  int64(page)*int64(pageSize) < total,
	})
}

// CreateOrGetConversation finds or creates the direct conversation
// between the caller and the recipient.
func (h *MessagingHandler) CreateOrGetConversation(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"status": "error", "message": "Invalid identity"})
	}

	type Request struct {
		RecipientID string `json:"recipient_id" validate:"required,uuid"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": err.Error()})
	}
	recipientID, _ := uuid.Parse(req.RecipientID)

	conversation, created, err := h.chat.GetOrCreateConversation(c.UserContext(), userID, recipientID)
	if err != nil {
		return respondError(c, err)
	}
	if created {
		return c.Status(fiber.StatusCreated).JSON(conversation)
	}
	return c.JSON(conversation)
}

// GetConversationMessages returns one cursor page of history, newest
// first, and resets the caller's unread counter as a side effect.
func (h *MessagingHandler) GetConversationMessages(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"status": "error", "message": "Invalid identity"})
	}

	conversationID, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Invalid conversation ID"})
	}

	var cursor *uuid.UUID
	if raw := c.Query("cursor"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Invalid cursor"})
		}
		cursor = &id
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	messages, nextCursor, err := h.chat.GetMessages(c.UserContext(), conversationID, userID, cursor, limit)
	if err != nil {
		return respondError(c, err)
	}

	var next interface{}
	if nextCursor != nil {
		next = nextCursor.String()
	}
	return c.JSON(fiber.Map{"messages": messages, "next_cursor": next})
}

// ToggleMute flips the target user in the caller's mute list.
func (h *MessagingHandler) ToggleMute(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"status": "error", "message": "Invalid identity"})
	}

	targetID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Invalid user ID"})
	}

	muted, err := h.chat.ToggleMute(c.UserContext(), userID, targetID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"muted": muted})
}

// AddReaction records the caller's reaction on a message.
func (h *MessagingHandler) AddReaction(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"status": "error", "message": "Invalid identity"})
	}

	messageID, err := uuid.Parse(c.Params("messageId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Invalid message ID"})
	}

	type Request struct {
		Emoji string `json:"emoji" validate:"required,max=16"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": err.Error()})
	}

	reaction, err := h.chat.AddReaction(c.UserContext(), messageID, userID, req.Emoji)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(reaction)
}

// RemoveReaction deletes the caller's reaction with the given symbol.
func (h *MessagingHandler) RemoveReaction(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"status": "error", "message": "Invalid identity"})
	}

	messageID, err := uuid.Parse(c.Params("messageId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Invalid message ID"})
	}

	if err := h.chat.RemoveReaction(c.UserContext(), messageID, userID, c.Params("emoji")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteMessage soft-deletes the caller's own message.
func (h *MessagingHandler) DeleteMessage(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"status": "error", "message": "Invalid identity"})
	}

	messageID, err := uuid.Parse(c.Params("messageId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Invalid message ID"})
	}

	if err := h.chat.DeleteMessage(c.UserContext(), messageID, userID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
