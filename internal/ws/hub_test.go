package ws

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AdairStone/rchat/internal/counter"
	"github.com/AdairStone/rchat/internal/models"
	"github.com/AdairStone/rchat/internal/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeRecipient struct {
	mu     sync.Mutex
	frames []string
}

func (f *fakeRecipient) Deliver(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, string(data))
}

func (f *fakeRecipient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeRecipient) contains(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, frame := range f.frames {
		if strings.Contains(frame, substr) {
			return true
		}
	}
	return false
}

type hubFixture struct {
	hub    *Hub
	db     *gorm.DB
	chat   *services.ChatService
	unread *counter.Unread
}

func setupHub(t *testing.T) *hubFixture {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Operator{},
		&models.Website{},
		&models.Room{},
		&models.Message{},
	))

	srv := miniredis.RunT(t)
	client := counter.NewClient(srv.Addr(), "")
	t.Cleanup(func() { client.Close() })

	unread := counter.NewUnread(client)
	chat := services.NewChatService(db, unread)
	notify := services.NewNotifyService(chat, unread)

	return &hubFixture{
		hub:    NewHub(chat, notify, unread),
		db:     db,
		chat:   chat,
		unread: unread,
	}
}

// seedRoom creates a confirmed site and an active room under it.
func (f *hubFixture) seedRoom(t *testing.T, siteKey, roomKey string) *models.Room {
	var site models.Website
	if err := f.db.Where("site_key = ?", siteKey).First(&site).Error; err != nil {
		operator := models.Operator{Username: "op-" + siteKey, PasswordHash: "x", DisplayName: "Op"}
		require.NoError(t, f.db.Create(&operator).Error)
		site = models.Website{SiteKey: siteKey, Status: models.WebsiteStatusConfirmed, OperatorID: operator.ID}
		require.NoError(t, f.db.Create(&site).Error)
	}
	room, err := f.chat.OpenRoom(siteKey, roomKey, "test-agent", "127.0.0.1")
	require.NoError(t, err)
	return room
}

func (f *hubFixture) state() (sessions, rooms, bindings int) {
	f.hub.mu.Lock()
	defer f.hub.mu.Unlock()
	return len(f.hub.sessions), len(f.hub.rooms), len(f.hub.operators)
}

func TestRegisterUnregisterRestoresState(t *testing.T) {
	f := setupHub(t)
	room := f.seedRoom(t, "s1", "r1")

	rcpt := &fakeRecipient{}
	id := f.hub.Register("s1", "r1", false, rcpt)
	require.NotZero(t, id)

	sessions, rooms, bindings := f.state()
	require.Equal(t, 1, sessions)
	require.Equal(t, 1, rooms)
	require.Equal(t, 0, bindings)

	f.hub.Unregister(id, "s1", "r1", false, room)

	sessions, rooms, bindings = f.state()
	require.Equal(t, 0, sessions)
	require.Equal(t, 0, rooms)
	require.Equal(t, 0, bindings)
}

func TestOperatorRegisterUnregisterClearsBinding(t *testing.T) {
	f := setupHub(t)
	f.seedRoom(t, "s1", "r1")

	rcpt := &fakeRecipient{}
	id := f.hub.Register("s1", "r1", true, rcpt)

	_, _, bindings := f.state()
	require.Equal(t, 1, bindings)

	f.hub.Unregister(id, "s1", "r1", true, nil)

	sessions, rooms, bindings := f.state()
	require.Equal(t, 0, sessions)
	require.Equal(t, 0, rooms)
	require.Equal(t, 0, bindings)
}

func TestStaleUnregisterKeepsNewerBinding(t *testing.T) {
	f := setupHub(t)
	f.seedRoom(t, "s1", "r1")

	old := f.hub.Register("s1", "r1", true, &fakeRecipient{})
	fresh := f.hub.Register("s1", "r1", true, &fakeRecipient{})

	// The stale connection unregisters after the reconnect already
	// installed a newer binding; the newer binding must survive.
	f.hub.Unregister(old, "s1", "r1", true, nil)

	f.hub.mu.Lock()
	b, ok := f.hub.operators["s1"]
	f.hub.mu.Unlock()
	require.True(t, ok)
	require.Equal(t, fresh, b.connID)
}

func TestConnectionIDsAreNeverReused(t *testing.T) {
	f := setupHub(t)
	f.seedRoom(t, "s1", "r1")

	seen := make(map[int64]bool)
	for i := 0; i < 50; i++ {
		id := f.hub.Register("s1", "r1", false, &fakeRecipient{})
		require.False(t, seen[id])
		seen[id] = true
		f.hub.Unregister(id, "s1", "r1", false, nil)
	}
}

func TestSwitchRoomBroadcastScope(t *testing.T) {
	f := setupHub(t)
	f.seedRoom(t, "s1", "r1")
	f.seedRoom(t, "s1", "r2")

	visitorR1 := &fakeRecipient{}
	visitorR2 := &fakeRecipient{}
	operator := &fakeRecipient{}

	f.hub.Register("s1", "r1", false, visitorR1)
	f.hub.Register("s1", "r2", false, visitorR2)
	opID := f.hub.Register("s1", "r1", true, operator)

	f.hub.SwitchRoom(opID, "s1", "r2", true, "Op")

	require.True(t, visitorR2.contains("at your service"),
		"member of the new room receives the service notice")
	require.False(t, visitorR1.contains("at your service"),
		"member of the prior room receives nothing")

	// Async tail: the operator gets an unread snapshot.
	require.Eventually(t, func() bool {
		return operator.contains(`"to_server":true`)
	}, 2*time.Second, 10*time.Millisecond)

	f.hub.mu.Lock()
	b := f.hub.operators["s1"]
	f.hub.mu.Unlock()
	require.Equal(t, "r2", b.roomKey)
}

func TestVisitorSwitchDoesNotAnnounce(t *testing.T) {
	f := setupHub(t)
	f.seedRoom(t, "s1", "r1")
	f.seedRoom(t, "s1", "r2")

	other := &fakeRecipient{}
	f.hub.Register("s1", "r2", false, other)
	id := f.hub.Register("s1", "r1", false, &fakeRecipient{})

	f.hub.SwitchRoom(id, "s1", "r2", false, "")

	time.Sleep(100 * time.Millisecond)
	require.False(t, other.contains("at your service"))
}

func TestRouteMessageLiveRelay(t *testing.T) {
	f := setupHub(t)
	room := f.seedRoom(t, "s1", "r1")

	operator := &fakeRecipient{}
	visitor := &fakeRecipient{}
	f.hub.Register("s1", "r1", true, operator)
	visitorID := f.hub.Register("s1", "r1", false, visitor)

	msg := &models.Message{RoomID: room.ID, Content: "hi", Status: models.MessageStatusSended}
	f.hub.RouteMessage(visitorID, "s1", "r1", msg)

	require.Eventually(t, func() bool {
		return operator.contains(`"text":"hi"`)
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, 0, visitor.count(), "no echo back to the sender")

	var persisted int64
	f.db.Model(&models.Message{}).Where("room_id = ?", room.ID).Count(&persisted)
	require.EqualValues(t, 1, persisted)

	totalUnread, err := f.unread.TotalUnread(context.Background(), "s1")
	require.NoError(t, err)
	require.EqualValues(t, 0, totalUnread, "live delivery never touches counters")
}

func TestRouteMessageOfflineNotification(t *testing.T) {
	f := setupHub(t)
	room := f.seedRoom(t, "s1", "r1")

	visitor := &fakeRecipient{}
	visitorID := f.hub.Register("s1", "r1", false, visitor)

	msg := &models.Message{RoomID: room.ID, Content: "hi", Status: models.MessageStatusSended}
	f.hub.RouteMessage(visitorID, "s1", "r1", msg)

	ctx := context.Background()
	require.Eventually(t, func() bool {
		total, err := f.unread.TotalUnread(ctx, "s1")
		return err == nil && total == 1
	}, 2*time.Second, 10*time.Millisecond)

	latest, total, err := f.unread.RoomCounts(ctx, "s1", "r1")
	require.NoError(t, err)
	require.EqualValues(t, 1, latest)
	require.EqualValues(t, 1, total)

	require.Equal(t, 0, visitor.count(), "no chat frame delivered anywhere")
}

func TestOperatorJoinResetsUnread(t *testing.T) {
	f := setupHub(t)
	room := f.seedRoom(t, "s1", "r1")

	visitor := &fakeRecipient{}
	visitorID := f.hub.Register("s1", "r1", false, visitor)

	ctx := context.Background()
	msg := &models.Message{RoomID: room.ID, Content: "hi", Status: models.MessageStatusSended}
	f.hub.RouteMessage(visitorID, "s1", "r1", msg)
	require.Eventually(t, func() bool {
		total, err := f.unread.TotalUnread(ctx, "s1")
		return err == nil && total == 1
	}, 2*time.Second, 10*time.Millisecond)

	operator := &fakeRecipient{}
	opID := f.hub.Register("s1", "lobby", true, operator)
	f.hub.SwitchRoom(opID, "s1", "r1", true, "Op")

	require.Eventually(t, func() bool {
		latest, _, err := f.unread.RoomCounts(ctx, "s1", "r1")
		if err != nil || latest != 0 {
			return false
		}
		total, err := f.unread.TotalUnread(ctx, "s1")
		return err == nil && total == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return operator.contains(`"to_server":true`)
	}, 2*time.Second, 10*time.Millisecond)

	var pending int64
	f.db.Model(&models.Message{}).
		Where("room_id = ? AND status = ?", room.ID, models.MessageStatusSended).
		Count(&pending)
	require.EqualValues(t, 0, pending, "pending messages become readed on join")
}

func TestUnregisterMarksRoomOffline(t *testing.T) {
	f := setupHub(t)
	room := f.seedRoom(t, "s1", "r1")

	id := f.hub.Register("s1", "r1", false, &fakeRecipient{})
	f.hub.Unregister(id, "s1", "r1", false, room)

	require.Eventually(t, func() bool {
		updated, err := f.chat.RoomByKey("r1")
		return err == nil && updated.Status == models.RoomStatusOffline
	}, 2*time.Second, 10*time.Millisecond)

	f.hub.mu.Lock()
	_, present := f.hub.siteRooms["s1"]["r1"]
	f.hub.mu.Unlock()
	require.False(t, present)
}

func TestRouteMessagePersistFailureSkipsCountersAndDelivery(t *testing.T) {
	f := setupHub(t)
	room := f.seedRoom(t, "s1", "r1")

	visitor := &fakeRecipient{}
	operator := &fakeRecipient{}
	f.hub.Register("s1", "lobby", true, operator)
	visitorID := f.hub.Register("s1", "r1", false, visitor)

	// Force every insert to fail.
	require.NoError(t, f.db.Migrator().DropTable(&models.Message{}))

	msg := &models.Message{RoomID: room.ID, Content: "hi", Status: models.MessageStatusSended}
	f.hub.RouteMessage(visitorID, "s1", "r1", msg)

	time.Sleep(200 * time.Millisecond)

	total, err := f.unread.TotalUnread(context.Background(), "s1")
	require.NoError(t, err)
	require.EqualValues(t, 0, total)
	require.Equal(t, 0, visitor.count())
	require.Equal(t, 0, operator.count())
}

func TestRoomsSnapshot(t *testing.T) {
	f := setupHub(t)
	f.seedRoom(t, "s1", "r1")
	f.seedRoom(t, "s1", "r2")

	f.hub.Register("s1", "r1", false, &fakeRecipient{})
	f.hub.Register("s1", "r2", false, &fakeRecipient{})

	require.ElementsMatch(t, []string{"r1", "r2"}, f.hub.Rooms())
}
