package database

import (
	"fmt"
	"log"

	config "github.com/opsline/intranet_chat/configs"
	"github.com/opsline/intranet_chat/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Connect opens the portal database. The handle is returned rather than
// stored in a package global so every consumer receives it by injection.
func Connect() (*gorm.DB, error) {
	dsn := config.Config("DATABASE_URL")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		DisableNestedTransaction:                 true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	fmt.Println("✅ Database connected successfully")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.UserMute{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
		&models.MessageReaction{},
		&models.MessageRead{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	fmt.Println("✅ Database migration successful")
	return nil
}

// SeedDemoUsers inserts a handful of directory entries for local
// development. The real user directory is owned by the portal's profile
// module; this only fills the gap when the service runs standalone.
func SeedDemoUsers(db *gorm.DB) {
	if config.Config("SEED_DEMO_USERS") != "true" {
		return
	}

	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		log.Printf("Failed to check for existing users: %v", err)
		return
	}
	if count > 0 {
		log.Println("Users already present, skipping demo seed.")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Failed to hash demo password: %v", err)
		return
	}

	demo := []models.User{
		{Username: "alice", Email: "alice@portal.local", Password: string(hashed)},
		{Username: "bob", Email: "bob@portal.local", Password: string(hashed)},
		{Username: "carol", Email: "carol@portal.local", Password: string(hashed)},
	}
	if err := db.Create(&demo).Error; err != nil {
		log.Printf("Failed to seed demo users: %v", err)
		return
	}
	log.Println("✅ Demo users seeded successfully")
}
