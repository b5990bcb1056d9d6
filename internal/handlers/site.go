package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/AdairStone/rchat/internal/services"

	"github.com/gin-gonic/gin"
)

type SiteHandler struct {
	chatService *services.ChatService
	scriptHome  string
}

func NewSiteHandler(chatService *services.ChatService, scriptHome string) *SiteHandler {
	return &SiteHandler{chatService: chatService, scriptHome: scriptHome}
}

type SiteConfigRequest struct {
	WebsiteID     uint   `json:"website_id"`
	Title         string `json:"title" binding:"max=255"`
	WelcomeSlogan string `json:"welcome_slogan" binding:"max=255"`
	Position      string `json:"position" binding:"max=20"`
}

// ConfigSite godoc
// @Summary      Fetch or create the caller's website config
// @Tags         site
// @Security     BearerAuth
// @Router       /api/v1/service/config-site [post]
func (h *SiteHandler) ConfigSite(c *gin.Context) {
	operatorID := c.GetUint("operator_id")

	site, err := h.chatService.WebsiteForOperator(operatorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"site": site, "script_home": h.scriptHome})
}

// SaveSite godoc
// @Summary      Update the caller's website config
// @Tags         site
// @Security     BearerAuth
// @Router       /api/v1/service/save-site [put]
func (h *SiteHandler) SaveSite(c *gin.Context) {
	operatorID := c.GetUint("operator_id")

	var req SiteConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	site, err := h.chatService.SaveSite(operatorID, req.WebsiteID, req.Title, req.WelcomeSlogan, req.Position)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"site": site, "script_home": h.scriptHome})
}

// ListRooms godoc
// @Summary      List the caller's chat rooms, newest first
// @Tags         site
// @Security     BearerAuth
// @Router       /api/v1/service/list-rooms [get]
func (h *SiteHandler) ListRooms(c *gin.Context) {
	operatorID := c.GetUint("operator_id")

	site, err := h.chatService.WebsiteForOperator(operatorID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}

	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 10)

	rooms, total, err := h.chatService.ListRooms(site.ID, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rooms, "total": total})
}

// ListMessages godoc
// @Summary      Page through a room's messages before a timestamp cursor
// @Tags         site
// @Security     BearerAuth
// @Router       /api/v1/service/list-chatmessage [get]
func (h *SiteHandler) ListMessages(c *gin.Context) {
	operatorID := c.GetUint("operator_id")

	site, err := h.chatService.WebsiteForOperator(operatorID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}

	roomKey := c.Query("room_key")
	if roomKey == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "room_key required"})
		return
	}
	room, err := h.chatService.RoomByKey(roomKey)
	if err != nil || room.WebsiteID != site.ID {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}

	before := time.Now()
	if ts := c.Query("before"); ts != "" {
		if sec, err := strconv.ParseInt(ts, 10, 64); err == nil {
			before = time.Unix(sec, 0)
		}
	}

	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 10)

	messages, err := h.chatService.ListMessages(room.ID, page, pageSize, before)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": messages})
}

// LoadScript godoc
// @Summary      Serve the visitor bootstrap script and confirm the site
// @Tags         site
// @Router       /load/load.js [get]
func (h *SiteHandler) LoadScript(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "key required"})
		return
	}

	ok, err := h.chatService.ConfirmSite(key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "site not found"})
		return
	}

	c.File("./static/load.js")
}

func queryInt(c *gin.Context, key string, fallback int) int {
	val, err := strconv.Atoi(c.Query(key))
	if err != nil || val <= 0 {
		return fallback
	}
	return val
}
