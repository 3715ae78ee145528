package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"

	config "github.com/opsline/intranet_chat/configs"
	"github.com/opsline/intranet_chat/database"
	"github.com/opsline/intranet_chat/handlers"
	"github.com/opsline/intranet_chat/jobs"
	"github.com/opsline/intranet_chat/presence"
	"github.com/opsline/intranet_chat/routes"
	"github.com/opsline/intranet_chat/services"
	"github.com/opsline/intranet_chat/websocket"
)

func main() {
	db, err := database.Connect()
	if err != nil {
		log.Fatalf("🔥 %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("🔥 %v", err)
	}
	database.SeedDemoUsers(db)

	registry, err := buildPresenceRegistry()
	if err != nil {
		log.Fatalf("🔥 Failed to build presence registry: %v", err)
	}
	defer registry.Close()

	chat := services.NewChatService(db)
	hub := websocket.NewHub(registry)
	messaging := handlers.NewMessagingHandler(chat, hub, registry)

	c := cron.New()
	c.AddFunc("* * * * *", jobs.SweepConnections(hub))
	c.AddFunc("30 3 * * *", jobs.ReconcileUnreadCounts(db))
	go c.Start()

	app := fiber.New(fiber.Config{
		Prefork:       false,
		AppName:       "Portal Chat",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.MessagingRoutes(app, messaging)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	port := config.ConfigDefault("PORT", "8080")
	log.Printf("✅ Server is running on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}

// buildPresenceRegistry picks the presence backend. The default in-memory
// registry is rebuilt from zero on restart; pointing PRESENCE_BACKEND at
// redis lets several gateway processes share one online view.
func buildPresenceRegistry() (presence.Registry, error) {
	if config.Config("PRESENCE_BACKEND") != "redis" {
		return presence.NewMemoryRegistry(), nil
	}
	return presence.NewRedisRegistry(presence.RedisConfig{
		Address:  config.ConfigDefault("REDIS_ADDR", "localhost:6379"),
		Password: config.Config("REDIS_PASSWORD"),
	})
}
