package models

import "time"

// OperatorID is nil when the sender is an anonymous visitor.
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RoomID     uint      `gorm:"not null;index" json:"room_id"`
	Room       Room      `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"-"`
	OperatorID *uint     `gorm:"index" json:"operator_id,omitempty"`
	SenderName string    `gorm:"size:100" json:"sender_name,omitempty"`
	Content    string    `gorm:"type:text" json:"content"`
	StrFiles   string    `gorm:"type:text" json:"str_files,omitempty"`
	Status     string    `gorm:"size:20;not null;default:'sended';index" json:"status"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

const (
	MessageStatusSended = "sended"
	MessageStatusReaded = "readed"
	MessageStatusRecall = "recall"
	MessageStatusDelete = "delete"
)
