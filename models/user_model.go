package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the slice of the portal's user directory the messaging core
// needs for display: a stable id plus username/image. Credentials are
// owned by the auth subsystem and never serialized.
type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Username string    `gorm:"size:255;not null;unique" json:"username"`
	Email    string    `gorm:"size:255;not null;unique" json:"-"`
	Password string    `gorm:"not null" json:"-"`
	Image    *string   `gorm:"size:512" json:"image"`
	IsActive bool      `gorm:"default:true" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// UserMute is one entry in a user's personal mute list.
type UserMute struct {
	UserID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	MutedUserID uuid.UUID `gorm:"type:uuid;primaryKey" json:"muted_user_id"`
	CreatedAt   time.Time `json:"created_at"`
}
