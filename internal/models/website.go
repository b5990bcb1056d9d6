package models

import "time"

type Website struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SiteKey       string    `gorm:"size:64;uniqueIndex;not null" json:"site_key"`
	Status        string    `gorm:"size:20;not null;default:'inited'" json:"status"`
	Domain        string    `gorm:"size:255" json:"domain,omitempty"`
	Title         string    `gorm:"size:255" json:"title,omitempty"`
	WelcomeSlogan string    `gorm:"size:255" json:"welcome_slogan,omitempty"`
	Position      string    `gorm:"size:20" json:"position,omitempty"`
	OperatorID    uint      `gorm:"not null;index" json:"operator_id"`
	Operator      Operator  `gorm:"foreignKey:OperatorID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const (
	WebsiteStatusInited    = "inited"
	WebsiteStatusConfirmed = "confirmed"
)
