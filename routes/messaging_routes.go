package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/opsline/intranet_chat/handlers"
	"github.com/opsline/intranet_chat/middleware"
)

func MessagingRoutes(app *fiber.App, h *handlers.MessagingHandler) {
	api := app.Group("/api/v1")

	chat := api.Group("/chat", middleware.Protected())
	chat.Get("/users", h.GetChatUsers)
	chat.Post("/users/:userId/mute", h.ToggleMute)

	conversations := api.Group("/conversations", middleware.Protected())
	conversations.Get("", h.GetUserConversations)
	conversations.Post("", h.CreateOrGetConversation)
	conversations.Get("/:conversationId/messages", h.GetConversationMessages)

	messages := api.Group("/messages", middleware.Protected())
	messages.Post("/:messageId/reactions", h.AddReaction)
	messages.Delete("/:messageId/reactions/:emoji", h.RemoveReaction)
	messages.Delete("/:messageId", h.DeleteMessage)

	api.Get("/uploads/signature", middleware.Protected(), handlers.GenerateUploadSignature)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	api.Get("/ws", websocket.New(h.ServeWs))
}
