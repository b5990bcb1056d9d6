package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/AdairStone/rchat/internal/counter"
	"github.com/AdairStone/rchat/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const keySize = 15

type ChatService struct {
	db     *gorm.DB
	unread *counter.Unread
}

func NewChatService(db *gorm.DB, unread *counter.Unread) *ChatService {
	return &ChatService{db: db, unread: unread}
}

// OpenRoom resolves or creates the conversation for (siteKey, roomKey) on
// behalf of a visitor. An existing room with the same key is reactivated
// rather than duplicated; a missing roomKey gets a generated one. Client
// metadata is recorded on the room either way.
func (s *ChatService) OpenRoom(siteKey, roomKey, userAgent, clientIP string) (*models.Room, error) {
	var site models.Website
	if err := s.db.Where("site_key = ? AND status = ?", siteKey, models.WebsiteStatusConfirmed).
		First(&site).Error; err != nil {
		return nil, errors.New("site not found or not confirmed")
	}

	if roomKey == "" {
		roomKey = s.generateUniqueRoomKey()
	}

	var room models.Room
	err := s.db.Where("website_id = ? AND room_key = ?", site.ID, roomKey).First(&room).Error
	if err == nil {
		room.Status = models.RoomStatusActive
		room.UserAgent = userAgent
		room.ClientIP = clientIP
		if err := s.db.Save(&room).Error; err != nil {
			return nil, fmt.Errorf("failed to resume room: %w", err)
		}
		return &room, nil
	}

	room = models.Room{
		RoomKey:   roomKey,
		Status:    models.RoomStatusActive,
		WebsiteID: site.ID,
		UserAgent: userAgent,
		ClientIP:  clientIP,
	}
	if err := s.db.Create(&room).Error; err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return &room, nil
}

func (s *ChatService) RoomByKey(roomKey string) (*models.Room, error) {
	var room models.Room
	if err := s.db.Where("room_key = ?", roomKey).First(&room).Error; err != nil {
		return nil, errors.New("room not found")
	}
	return &room, nil
}

// MarkRoomOffline records that the room's visitor dropped the connection.
func (s *ChatService) MarkRoomOffline(room *models.Room) error {
	room.Status = models.RoomStatusOffline
	return s.db.Save(room).Error
}

// DisconnectRoom terminates the room: a disconnected room is never resumed.
func (s *ChatService) DisconnectRoom(room *models.Room) error {
	room.Status = models.RoomStatusDisconnect
	return s.db.Save(room).Error
}

// JoinRoom runs the operator's room-join bookkeeping: all pending messages
// become readed and the room's latest-count counter is folded back out of
// the site's total unread count.
func (s *ChatService) JoinRoom(ctx context.Context, room *models.Room) error {
	if err := s.db.Model(&models.Message{}).
		Where("room_id = ? AND status = ?", room.ID, models.MessageStatusSended).
		Update("status", models.MessageStatusReaded).Error; err != nil {
		return err
	}

	var site models.Website
	if err := s.db.First(&site, room.WebsiteID).Error; err != nil {
		return errors.New("site not found for room")
	}
	if err := s.unread.ResetLatest(ctx, site.SiteKey, room.RoomKey); err != nil {
		log.Printf("chat: reset latest count for site %s room %s: %v", site.SiteKey, room.RoomKey, err)
		return err
	}
	return nil
}

func (s *ChatService) SaveMessage(msg *models.Message) error {
	return s.db.Create(msg).Error
}

func (s *ChatService) WebsiteBySiteKey(siteKey string) (*models.Website, error) {
	var site models.Website
	if err := s.db.Where("site_key = ?", siteKey).First(&site).Error; err != nil {
		return nil, errors.New("site not found")
	}
	return &site, nil
}

// WebsiteForOperator returns the operator's website config, creating one
// with a fresh site key on first use.
func (s *ChatService) WebsiteForOperator(operatorID uint) (*models.Website, error) {
	var site models.Website
	err := s.db.Where("operator_id = ?", operatorID).First(&site).Error
	if err == nil {
		return &site, nil
	}

	site = models.Website{
		SiteKey:    s.generateUniqueSiteKey(),
		Status:     models.WebsiteStatusInited,
		OperatorID: operatorID,
	}
	if err := s.db.Create(&site).Error; err != nil {
		return nil, fmt.Errorf("failed to create website: %w", err)
	}
	return &site, nil
}

func (s *ChatService) SaveSite(operatorID, websiteID uint, title, slogan, position string) (*models.Website, error) {
	var site models.Website
	if err := s.db.Where("id = ? AND operator_id = ?", websiteID, operatorID).First(&site).Error; err != nil {
		return nil, errors.New("website not found")
	}
	site.Title = title
	site.WelcomeSlogan = slogan
	site.Position = position
	if err := s.db.Save(&site).Error; err != nil {
		return nil, err
	}
	return &site, nil
}

// ConfirmSite flips the site to confirmed when the visitor bootstrap script
// is first loaded from the customer's page.
func (s *ChatService) ConfirmSite(siteKey string) (bool, error) {
	var site models.Website
	if err := s.db.Where("site_key = ?", siteKey).First(&site).Error; err != nil {
		return false, nil
	}
	site.Status = models.WebsiteStatusConfirmed
	if err := s.db.Save(&site).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (s *ChatService) ListRooms(websiteID uint, page, pageSize int) ([]models.Room, int64, error) {
	var total int64
	s.db.Model(&models.Room{}).Where("website_id = ?", websiteID).Count(&total)

	var rooms []models.Room
	if err := s.db.Where("website_id = ?", websiteID).
		Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&rooms).Error; err != nil {
		return nil, 0, err
	}
	return rooms, total, nil
}

func (s *ChatService) ListMessages(roomID uint, page, pageSize int, before time.Time) ([]models.Message, error) {
	var messages []models.Message
	if err := s.db.Where("room_id = ? AND created_at <= ?", roomID, before).
		Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// ActiveRooms lists the site's active rooms touched within the trailing
// 24-hour window, the set the unread snapshot is computed over.
func (s *ChatService) ActiveRooms(websiteID uint) ([]models.Room, error) {
	var rooms []models.Room
	since := time.Now().Add(-24 * time.Hour)
	if err := s.db.Where("website_id = ? AND status = ? AND updated_at > ?",
		websiteID, models.RoomStatusActive, since).
		Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

func (s *ChatService) generateUniqueRoomKey() string {
	for {
		key := randomKey()
		var count int64
		s.db.Model(&models.Room{}).Where("room_key = ?", key).Count(&count)
		if count == 0 {
			return key
		}
		log.Printf("chat: room key %s duplicated, retrying", key)
	}
}

func (s *ChatService) generateUniqueSiteKey() string {
	for {
		key := randomKey()
		var count int64
		s.db.Model(&models.Website{}).Where("site_key = ?", key).Count(&count)
		if count == 0 {
			return key
		}
		log.Printf("chat: site key %s duplicated, retrying", key)
	}
}

func randomKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:keySize]
}
