package services

import (
	"context"

	"github.com/AdairStone/rchat/internal/counter"
)

// Notify is the aggregate unread frame pushed to the operator console.
type Notify struct {
	ToServer bool          `json:"to_server"`
	Message  NotifyMessage `json:"message"`
}

type NotifyMessage struct {
	TotalUnread   int64            `json:"total_unread"`
	NewMessage    bool             `json:"new_message"`
	MessageCounts map[string]int64 `json:"message_counts"`
}

// NotifyService assembles unread-state snapshots for a site by combining
// the counter store with the room list from persistence. Pure read.
type NotifyService struct {
	chat   *ChatService
	unread *counter.Unread
}

func NewNotifyService(chat *ChatService, unread *counter.Unread) *NotifyService {
	return &NotifyService{chat: chat, unread: unread}
}

// Snapshot returns the site's total unread count plus per-room latest counts
// for every recently-active room, keyed by room key.
func (s *NotifyService) Snapshot(ctx context.Context, siteKey string) (*Notify, error) {
	totalUnread, err := s.unread.TotalUnread(ctx, siteKey)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	if site, err := s.chat.WebsiteBySiteKey(siteKey); err == nil {
		rooms, err := s.chat.ActiveRooms(site.ID)
		if err != nil {
			return nil, err
		}
		for _, room := range rooms {
			latest, _, err := s.unread.RoomCounts(ctx, siteKey, room.RoomKey)
			if err != nil {
				return nil, err
			}
			counts[room.RoomKey] = latest
		}
	}

	return &Notify{
		ToServer: true,
		Message: NotifyMessage{
			TotalUnread:   totalUnread,
			NewMessage:    true,
			MessageCounts: counts,
		},
	}, nil
}
