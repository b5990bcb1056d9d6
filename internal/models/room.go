package models

import "time"

type Room struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomKey   string    `gorm:"size:64;uniqueIndex;not null" json:"room_key"`
	Status    string    `gorm:"size:20;not null;default:'active'" json:"status"`
	WebsiteID uint      `gorm:"not null;index" json:"website_id"`
	Website   Website   `gorm:"foreignKey:WebsiteID;constraint:OnDelete:CASCADE" json:"-"`
	UserAgent string    `gorm:"size:512" json:"user_agent,omitempty"`
	ClientIP  string    `gorm:"size:64" json:"client_ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	RoomStatusActive     = "active"
	RoomStatusOffline    = "offline"
	RoomStatusDisconnect = "disconnect"
)
