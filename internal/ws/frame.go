package ws

import (
	"time"

	"github.com/AdairStone/rchat/internal/models"
)

const frameTimeLayout = "2006-01-02 15:04:05"

// ChatFrame is the text frame delivered to room members. User is true when
// the sender is the visitor side of the conversation.
type ChatFrame struct {
	Text     string `json:"text"`
	Time     string `json:"time"`
	User     bool   `json:"user"`
	UserName string `json:"user_name,omitempty"`
	StrFiles string `json:"str_files,omitempty"`
	Notify   string `json:"notify"`
	RoomID   string `json:"room_id,omitempty"`
}

// NewChatFrame builds the fan-out echo for a persisted message.
func NewChatFrame(msg *models.Message, roomKey string) ChatFrame {
	return ChatFrame{
		Text:     msg.Content,
		Time:     time.Now().Format(frameTimeLayout),
		User:     msg.OperatorID == nil,
		UserName: msg.SenderName,
		StrFiles: msg.StrFiles,
		RoomID:   roomKey,
	}
}

// NewServiceFrame builds the synthetic system message announcing that an
// operator joined the room.
func NewServiceFrame(notice, operatorName, roomKey string) ChatFrame {
	return ChatFrame{
		Time:     time.Now().Format(frameTimeLayout),
		User:     false,
		UserName: operatorName,
		Notify:   notice,
		RoomID:   roomKey,
	}
}

// inboundMessage is the JSON payload a peer sends for a chat message. All
// server-assigned fields (id, room, sender, status, timestamps) are stamped
// by the session; anything else the client supplies is ignored.
type inboundMessage struct {
	Content  string `json:"content"`
	StrFiles string `json:"str_files"`
}
