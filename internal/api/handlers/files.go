package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/shotserver/internal/api/middleware"
	"github.com/adamscao/shotserver/internal/api/response"
	"github.com/adamscao/shotserver/internal/apperr"
	"github.com/adamscao/shotserver/internal/filestore"
	"github.com/adamscao/shotserver/internal/metrics"
	"github.com/adamscao/shotserver/internal/models"
	"github.com/adamscao/shotserver/internal/service"
)

// multipartOverhead is allowed on top of the upload limit for form framing
const multipartOverhead = 1 << 20

// FileHandler serves the per-user screenshot store
type FileHandler struct {
	store   *filestore.Store
	audit   *service.Auditor
	metrics *metrics.Metrics
}

// NewFileHandler creates a new file handler
func NewFileHandler(store *filestore.Store, audit *service.Auditor, m *metrics.Metrics) *FileHandler {
	return &FileHandler{
		store:   store,
		audit:   audit,
		metrics: m,
	}
}

// CreateFolderRequest represents a folder creation request
type CreateFolderRequest struct {
	Name string `json:"name" binding:"required"`
}

// MoveRequest represents a move or copy of one screenshot
type MoveRequest struct {
	SourceFolder string `json:"source_folder" binding:"required"`
	TargetFolder string `json:"target_folder" binding:"required"`
	Filename     string `json:"filename" binding:"required"`
	Operation    string `json:"operation"`
}

// Upload stores a screenshot from a multipart form
// POST /upload (multipart: file, folder)
func (h *FileHandler) Upload(c *gin.Context) {
	user := middleware.CurrentUser(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.store.MaxUploadSize()+multipartOverhead)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, apperr.Validation("File too large (max %d bytes)", h.store.MaxUploadSize()))
			return
		}
		response.Error(c, apperr.Validation("No file provided"))
		return
	}
	defer file.Close()

	stored, err := h.store.For(user.ID).Store(c.PostForm("folder"), file)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.metrics.Uploaded(header.Size)
	h.record(c, models.ActionUpload, fmt.Sprintf("folder=%s filename=%s", stored.Folder, stored.Filename))

	response.RespondSuccess(c, stored)
}

// Image serves one screenshot to its owner or an administrator
// GET /image/user_<id>/<folder>/<filename>
func (h *FileHandler) Image(c *gin.Context) {
	user := middleware.CurrentUser(c)

	parts := strings.Split(strings.TrimPrefix(c.Param("filepath"), "/"), "/")
	if len(parts) != 3 || !strings.HasPrefix(parts[0], "user_") {
		response.Error(c, apperr.NotFound("Image not found"))
		return
	}
	ownerID, err := strconv.ParseInt(strings.TrimPrefix(parts[0], "user_"), 10, 64)
	if err != nil {
		response.Error(c, apperr.NotFound("Image not found"))
		return
	}
	if ownerID != user.ID && !user.IsAdmin {
		response.Error(c, apperr.Forbidden("Access denied"))
		return
	}

	f, fi, err := h.store.For(ownerID).Open(parts[1], parts[2])
	if err != nil {
		response.Error(c, err)
		return
	}
	defer f.Close()

	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Cache-Control", "private, max-age=3600")
	http.ServeContent(c.Writer, c.Request, fi.Name(), fi.ModTime(), f)
}

// ListFolders lists the virtual "all" folder and every real folder
// GET /folders
func (h *FileHandler) ListFolders(c *gin.Context) {
	folders, err := h.sandbox(c).ListFolders()
	if err != nil {
		response.Error(c, err)
		return
	}

	response.RespondSuccess(c, gin.H{
		"folders":        folders,
		"default_folder": h.store.DefaultFolder(),
	})
}

// GetFolder returns one folder with its screenshots
// GET /folder/:name
func (h *FileHandler) GetFolder(c *gin.Context) {
	folder, err := h.sandbox(c).Folder(c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.RespondSuccess(c, folder)
}

// CreateFolder creates an empty folder
// POST /folder
func (h *FileHandler) CreateFolder(c *gin.Context) {
	var req CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperr.Validation("Folder name is required"))
		return
	}

	folder, err := h.sandbox(c).CreateFolder(req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.record(c, models.ActionCreateFolder, "folder="+folder.Name)

	response.RespondSuccess(c, gin.H{
		"status": "success",
		"folder": folder,
	})
}

// DeleteFolder removes a folder and its screenshots
// DELETE /folder/:name
func (h *FileHandler) DeleteFolder(c *gin.Context) {
	name := c.Param("name")
	if err := h.sandbox(c).DeleteFolder(name); err != nil {
		response.Error(c, err)
		return
	}

	h.record(c, models.ActionDeleteFolder, "folder="+name)

	response.RespondSuccess(c, gin.H{
		"status":  "success",
		"message": fmt.Sprintf("Folder %s deleted", name),
	})
}

// StarFolder stars a folder
// POST /folder/:name/star
func (h *FileHandler) StarFolder(c *gin.Context) {
	name := c.Param("name")
	if err := h.sandbox(c).Star(name); err != nil {
		response.Error(c, err)
		return
	}

	h.record(c, models.ActionStarFolder, "folder="+name)

	response.RespondSuccess(c, gin.H{"status": "success", "is_starred": true})
}

// UnstarFolder unstars a folder
// POST /folder/:name/unstar
func (h *FileHandler) UnstarFolder(c *gin.Context) {
	name := c.Param("name")
	if err := h.sandbox(c).Unstar(name); err != nil {
		response.Error(c, err)
		return
	}

	h.record(c, models.ActionUnstarFolder, "folder="+name)

	response.RespondSuccess(c, gin.H{"status": "success", "is_starred": false})
}

// MoveScreenshot moves or copies a screenshot between folders
// POST /move_screenshot
func (h *FileHandler) MoveScreenshot(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperr.Validation("source_folder, target_folder and filename are required"))
		return
	}
	if req.Operation == "" {
		req.Operation = filestore.OpMove
	}

	shot, err := h.sandbox(c).MoveOrCopy(req.SourceFolder, req.TargetFolder, req.Filename, req.Operation)
	if err != nil {
		response.Error(c, err)
		return
	}

	action := models.ActionMoveScreenshot
	if req.Operation == filestore.OpCopy {
		action = models.ActionCopyScreenshot
	}
	h.record(c, action, fmt.Sprintf("from=%s/%s to=%s/%s", req.SourceFolder, req.Filename, shot.Folder, shot.Name))

	response.RespondSuccess(c, gin.H{
		"status":     "success",
		"screenshot": shot,
	})
}

// DeleteScreenshot removes one screenshot
// DELETE /delete/:folder/:filename
func (h *FileHandler) DeleteScreenshot(c *gin.Context) {
	filename := c.Param("filename")
	folder, err := h.sandbox(c).DeleteScreenshot(c.Param("folder"), filename)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.record(c, models.ActionDeleteScreenshot, fmt.Sprintf("folder=%s filename=%s", folder, filename))

	response.RespondSuccess(c, gin.H{
		"status":  "success",
		"message": fmt.Sprintf("Deleted %s", filename),
	})
}

func (h *FileHandler) sandbox(c *gin.Context) *filestore.Sandbox {
	return h.store.For(middleware.CurrentUser(c).ID)
}

func (h *FileHandler) record(c *gin.Context, action, details string) {
	user := middleware.CurrentUser(c)
	h.audit.Record(c.Request.Context(), service.UserRef(user.ID), action, response.GetClientIP(c), details)
}
