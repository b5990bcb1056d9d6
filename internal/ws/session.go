package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/AdairStone/rchat/internal/models"

	"github.com/gorilla/websocket"
)

const (
	// How often heartbeat pings are sent.
	heartbeatInterval = 5 * time.Second
	// How long before lack of a client pong causes a timeout.
	clientTimeout = 20 * time.Second

	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
	sendBufferSize = 256
)

// Session owns one websocket connection: heartbeat, inbound frame parsing,
// outbound delivery, and the translation between wire commands and hub
// calls. It never touches hub state directly.
type Session struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	id       int64
	siteKey  string
	roomKey  string
	room     *models.Room
	operator *models.Operator
	name     string

	mu     sync.Mutex
	closed bool
}

// NewSession wraps an upgraded connection. operator is nil for visitors.
func NewSession(hub *Hub, conn *websocket.Conn, siteKey string, room *models.Room, operator *models.Operator) *Session {
	s := &Session{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		siteKey:  siteKey,
		roomKey:  room.RoomKey,
		room:     room,
		operator: operator,
	}
	if operator != nil {
		s.name = operator.DisplayName
	}
	return s
}

// Run registers with the hub and pumps frames until the connection dies.
// It blocks until the read side exits, then unregisters and closes.
func (s *Session) Run() {
	s.id = s.hub.Register(s.siteKey, s.roomKey, s.operator != nil, s)

	go s.writePump()
	s.readPump()

	s.hub.Unregister(s.id, s.siteKey, s.roomKey, s.operator != nil, s.room)
	s.Close()
}

// Deliver queues a frame for the client. A full buffer closes the session;
// a slow consumer must not stall the hub.
func (s *Session) Deliver(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.send <- data:
	default:
		log.Printf("ws: conn %d send buffer full, closing", s.id)
		s.closeLocked()
	}
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
	s.conn.Close()
}

func (s *Session) readPump() {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(clientTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(clientTimeout))
	})

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: conn %d read error: %v", s.id, err)
			}
			return
		}
		if mt != websocket.TextMessage {
			log.Printf("ws: conn %d sent unexpected frame type %d, closing", s.id, mt)
			return
		}

		text := strings.TrimSpace(string(data))
		if strings.HasPrefix(text, "/") {
			s.handleCommand(text)
			continue
		}
		s.handleMessage(text)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) handleCommand(text string) {
	parts := strings.SplitN(text, " ", 2)
	switch parts[0] {
	case "/list":
		for _, room := range s.hub.Rooms() {
			s.Deliver([]byte(room))
		}
	case "/join":
		if len(parts) != 2 || parts[1] == "" {
			s.Deliver([]byte("!!! room name is required"))
			return
		}
		s.roomKey = parts[1]
		if room, err := s.hub.chat.RoomByKey(parts[1]); err == nil {
			s.room = room
		} else {
			log.Printf("ws: conn %d joined unknown room %s", s.id, parts[1])
		}
		s.hub.SwitchRoom(s.id, s.siteKey, s.roomKey, s.operator != nil, s.name)
		s.Deliver([]byte("joined"))
	case "/name":
		if len(parts) != 2 || parts[1] == "" {
			s.Deliver([]byte("!!! name is required"))
			return
		}
		s.name = parts[1]
	default:
		s.Deliver([]byte(fmt.Sprintf("!!! unknown command: %q", text)))
	}
}

// handleMessage parses a JSON chat payload, stamps the server-assigned
// fields, and hands the message to the hub for routing.
func (s *Session) handleMessage(text string) {
	var inbound inboundMessage
	if err := json.Unmarshal([]byte(text), &inbound); err != nil {
		s.Deliver([]byte(fmt.Sprintf("error! %v", err)))
		return
	}

	now := time.Now()
	msg := &models.Message{
		RoomID:     s.room.ID,
		SenderName: s.name,
		Content:    inbound.Content,
		StrFiles:   inbound.StrFiles,
		Status:     models.MessageStatusSended,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if s.operator != nil {
		msg.OperatorID = &s.operator.ID
	}

	s.hub.RouteMessage(s.id, s.siteKey, s.roomKey, msg)
}
