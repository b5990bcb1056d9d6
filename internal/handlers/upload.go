package handlers

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AdairStone/rchat/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type UploadHandler struct {
	db        *gorm.DB
	uploadDir string
}

func NewUploadHandler(db *gorm.DB, uploadDir string) *UploadHandler {
	return &UploadHandler{db: db, uploadDir: uploadDir}
}

// Upload godoc
// @Summary      Store a chat attachment and return its URL
// @Tags         file
// @Accept       multipart/form-data
// @Param        file formData file true "Attachment"
// @Router       /api/v1/file/upload [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no file provided"})
		return
	}

	if file.Size > 20<<20 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file too large (max 20MB)"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	imageExts := map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

	mediaType := "file"
	if imageExts[ext] {
		mediaType = "image"
	}

	filename := fmt.Sprintf("%d_%d%s", time.Now().UnixNano(), rand.Intn(100000), ext)
	dst := filepath.Join(h.uploadDir, filename)

	os.MkdirAll(h.uploadDir, 0755)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to save file"})
		return
	}

	media := models.Media{
		FileName:  file.Filename,
		URL:       "/uploads/" + filename,
		MediaType: mediaType,
		Size:      file.Size,
	}
	if err := h.db.Create(&media).Error; err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to record upload"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": media.URL, "name": media.FileName, "type": mediaType})
}
