package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/AdairStone/rchat/internal/models"
	"github.com/AdairStone/rchat/internal/services"
	"github.com/AdairStone/rchat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	RoleOperator = "0"
	RoleVisitor  = "1"
)

type RelayHandler struct {
	hub         *ws.Hub
	chatService *services.ChatService
	authService *services.AuthService
}

func NewRelayHandler(hub *ws.Hub, chatService *services.ChatService, authService *services.AuthService) *RelayHandler {
	return &RelayHandler{hub: hub, chatService: chatService, authService: authService}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleChat godoc
// @Summary      WebSocket endpoint for the chat relay
// @Description  Upgrades the connection and attaches it to the relay hub
// @Tags         websocket
// @Param        site_key query string true  "Site key"
// @Param        role     query string true  "0 = operator, 1 = visitor"
// @Param        room_key query string false "Room key (required for operators)"
// @Router       /ws/chat [get]
func (h *RelayHandler) HandleChat(c *gin.Context) {
	siteKey := c.Query("site_key")
	role := c.Query("role")
	if siteKey == "" || role == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "site_key and role required"})
		return
	}
	roomKey := c.Query("room_key")

	var room *models.Room
	var operator *models.Operator

	switch role {
	case RoleOperator:
		op, err := h.authService.ResolveOperator(bearerToken(c))
		if err != nil {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "invalid or expired credential"})
			return
		}
		if roomKey == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "room_key required for operator"})
			return
		}
		operator = op
		room, err = h.chatService.RoomByKey(roomKey)
		if err != nil {
			// The operator console may watch a room that has no persisted
			// row yet; proceed with a placeholder instead of failing.
			log.Printf("relay: operator joining unknown room %s: %v", roomKey, err)
			room = &models.Room{RoomKey: roomKey}
		}
	case RoleVisitor:
		opened, err := h.chatService.OpenRoom(siteKey, roomKey, c.GetHeader("User-Agent"), c.ClientIP())
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		room = opened
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid role"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("relay: websocket upgrade error: %v", err)
		return
	}

	session := ws.NewSession(h.hub, conn, siteKey, room, operator)
	session.Run()
}

// bearerToken pulls the operator credential from the Authorization header or
// the access_token query parameter (browser websocket clients cannot set
// headers).
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return c.Query("access_token")
}
