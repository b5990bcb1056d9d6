package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/AdairStone/rchat/internal/counter"
	"github.com/AdairStone/rchat/internal/models"
	"github.com/AdairStone/rchat/internal/services"
)

// Recipient is the outbound side of a connection as the hub sees it. The hub
// never holds sessions directly, only delivery handles looked up by id.
type Recipient interface {
	Deliver(data []byte)
}

// binding records which room a site's single logged-in operator connection
// currently watches.
type binding struct {
	roomKey string
	connID  int64
}

// Hub is the serialized authority over routing state: the connection
// registry, room membership, and the one-operator-per-site binding. All
// decisions happen under the mutex; persistence and counter-store I/O run
// in spawned goroutines so they never block the decision path.
type Hub struct {
	mu        sync.Mutex
	nextID    int64
	sessions  map[int64]Recipient
	rooms     map[string]map[int64]bool
	siteRooms map[string]map[string]bool
	operators map[string]binding

	chat   *services.ChatService
	notify *services.NotifyService
	unread *counter.Unread
}

func NewHub(chat *services.ChatService, notify *services.NotifyService, unread *counter.Unread) *Hub {
	return &Hub{
		sessions:  make(map[int64]Recipient),
		rooms:     make(map[string]map[int64]bool),
		siteRooms: make(map[string]map[string]bool),
		operators: make(map[string]binding),

		chat:   chat,
		notify: notify,
		unread: unread,
	}
}

// Register adds a connection to the hub and returns its fresh id. Ids are
// process-unique and never reused. An operator registration installs or
// overwrites the site's operator binding.
func (h *Hub) Register(siteKey, roomKey string, operator bool, rcpt Recipient) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.sessions[id] = rcpt
	if h.rooms[roomKey] == nil {
		h.rooms[roomKey] = make(map[int64]bool)
	}
	h.rooms[roomKey][id] = true
	if h.siteRooms[siteKey] == nil {
		h.siteRooms[siteKey] = make(map[string]bool)
	}
	h.siteRooms[siteKey][roomKey] = true

	if operator {
		h.operators[siteKey] = binding{roomKey: roomKey, connID: id}
	}
	log.Printf("hub: conn %d joined room %s on site %s (operator=%v)", id, roomKey, siteKey, operator)
	return id
}

// Unregister removes the connection from every room. An operator unregister
// clears the site's binding only if it still points at this connection, so a
// stale disconnect never tears down a newer operator registration. A visitor
// unregister shrinks the site room set, best-effort persists it to the
// counter store, and marks the room offline.
func (h *Hub) Unregister(id int64, siteKey, roomKey string, operator bool, room *models.Room) {
	h.mu.Lock()
	delete(h.sessions, id)
	for key, members := range h.rooms {
		if members[id] {
			delete(members, id)
			if len(members) == 0 {
				delete(h.rooms, key)
			}
		}
	}

	var remaining []string
	if operator {
		if b, ok := h.operators[siteKey]; ok && b.connID == id {
			delete(h.operators, siteKey)
		}
	} else {
		if set, ok := h.siteRooms[siteKey]; ok {
			delete(set, roomKey)
			for key := range set {
				remaining = append(remaining, key)
			}
		}
	}
	h.mu.Unlock()
	log.Printf("hub: conn %d left room %s on site %s", id, roomKey, siteKey)

	if operator {
		return
	}
	go func() {
		ctx := context.Background()
		if err := h.unread.SetSiteRooms(ctx, siteKey, remaining); err != nil {
			log.Printf("hub: update site %s rooms: %v", siteKey, err)
		}
		if room != nil && room.ID != 0 {
			if err := h.chat.MarkRoomOffline(room); err != nil {
				log.Printf("hub: mark room %s offline: %v", roomKey, err)
			}
		}
	}()
}

// SwitchRoom moves a connection into newRoomKey, dropping every prior
// membership. An operator switch repoints the site's binding, announces the
// operator to the room's other members, and asynchronously runs the
// room-join bookkeeping plus an unread snapshot push back to the operator.
func (h *Hub) SwitchRoom(id int64, siteKey, newRoomKey string, operator bool, operatorName string) {
	h.mu.Lock()
	for key, members := range h.rooms {
		if members[id] {
			delete(members, id)
			if len(members) == 0 {
				delete(h.rooms, key)
			}
		}
	}
	if h.rooms[newRoomKey] == nil {
		h.rooms[newRoomKey] = make(map[int64]bool)
	}
	h.rooms[newRoomKey][id] = true

	if operator {
		if b, ok := h.operators[siteKey]; ok {
			b.roomKey = newRoomKey
			h.operators[siteKey] = b
		}
	}
	h.mu.Unlock()

	if operator {
		frame := NewServiceFrame(fmt.Sprintf("%s is now at your service", operatorName), operatorName, newRoomKey)
		if data, err := json.Marshal(frame); err == nil {
			h.broadcast(newRoomKey, data, id)
		} else {
			log.Printf("hub: marshal service frame: %v", err)
		}
	}

	go func() {
		ctx := context.Background()
		room, err := h.chat.RoomByKey(newRoomKey)
		if err != nil {
			log.Printf("hub: switch to unknown room %s: %v", newRoomKey, err)
			return
		}
		if err := h.chat.JoinRoom(ctx, room); err != nil {
			log.Printf("hub: join room %s: %v", newRoomKey, err)
		}
		snapshot, err := h.notify.Snapshot(ctx, siteKey)
		if err != nil {
			log.Printf("hub: unread snapshot for site %s: %v", siteKey, err)
			return
		}
		h.deliverToOperator(siteKey, snapshot)
	}()
}

// RouteMessage decides, at call time, whether the site's operator is live in
// the message's room, then persists and acts on that decision: live fan-out
// to the room, or counter increment plus an aggregate notification to the
// operator's bound connection. A failed persist suppresses both paths.
func (h *Hub) RouteMessage(id int64, siteKey, roomKey string, msg *models.Message) {
	h.mu.Lock()
	b, bound := h.operators[siteKey]
	live := bound && b.roomKey == roomKey
	h.mu.Unlock()

	go func() {
		ctx := context.Background()
		if err := h.chat.SaveMessage(msg); err != nil {
			log.Printf("hub: save message for room %s: %v", roomKey, err)
			return
		}

		if live {
			frame := NewChatFrame(msg, roomKey)
			data, err := json.Marshal(frame)
			if err != nil {
				log.Printf("hub: marshal chat frame: %v", err)
				return
			}
			h.broadcast(roomKey, data, id)
			return
		}

		if err := h.unread.IncreaseLatest(ctx, siteKey, roomKey, 1); err != nil {
			log.Printf("hub: increase unread for site %s room %s: %v", siteKey, roomKey, err)
		}
		if msg.OperatorID != nil {
			return
		}
		snapshot, err := h.notify.Snapshot(ctx, siteKey)
		if err != nil {
			log.Printf("hub: unread snapshot for site %s: %v", siteKey, err)
			return
		}
		h.deliverToOperator(siteKey, snapshot)
	}()
}

// Rooms returns a snapshot of the room keys with live members. Diagnostic.
func (h *Hub) Rooms() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms := make([]string, 0, len(h.rooms))
	for key := range h.rooms {
		rooms = append(rooms, key)
	}
	return rooms
}

// broadcast delivers data to every member of the room except skip.
func (h *Hub) broadcast(roomKey string, data []byte, skip int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id := range h.rooms[roomKey] {
		if id == skip {
			continue
		}
		if rcpt, ok := h.sessions[id]; ok {
			rcpt.Deliver(data)
		}
	}
}

func (h *Hub) deliverToOperator(siteKey string, snapshot *services.Notify) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("hub: marshal notify: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.operators[siteKey]; ok {
		if rcpt, ok := h.sessions[b.connID]; ok {
			rcpt.Deliver(data)
		}
	}
}
