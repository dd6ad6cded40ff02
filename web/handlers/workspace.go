package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"csv-agent/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type WorkspaceHandler struct {
	workspaceRoot string
	logger        *zap.Logger
}

func NewWorkspaceHandler(workspaceRoot string, logger *zap.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{
		workspaceRoot: workspaceRoot,
		logger:        logger,
	}
}

// ServeFile serves workspace files only to the session that owns them
func (h *WorkspaceHandler) ServeFile(c *gin.Context) {
	sessionID := c.Param("sessionID")
	if !utils.IsValidSessionID(sessionID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	if current := c.GetString(ContextSessionID); current != sessionID {
		h.logger.Warn("Unauthorized workspace access attempt",
			zap.String("session_id", sessionID),
			zap.String("requesting_session_id", current))
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	// Get the file path from the URL (everything after /workspaces/:sessionID/)
	filename := strings.TrimPrefix(c.Param("filepath"), "/")
	if filename == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Directory listing not allowed"})
		return
	}

	filename = filepath.Clean(filename)
	if strings.Contains(filename, "..") || filepath.IsAbs(filename) {
		h.logger.Warn("Path traversal attempt detected",
			zap.String("session_id", sessionID),
			zap.String("filename", filename))
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid file path"})
		return
	}

	workspaceDir := filepath.Join(h.workspaceRoot, sessionID)
	filePath := filepath.Join(workspaceDir, filename)

	absWorkspace, err := filepath.Abs(workspaceDir)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "Internal server error", h.logger)
		return
	}
	absFile, err := filepath.Abs(filePath)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "Internal server error", h.logger)
		return
	}
	if !strings.HasPrefix(absFile, absWorkspace+string(filepath.Separator)) {
		h.logger.Warn("Path traversal attempt - file outside workspace",
			zap.String("session_id", sessionID),
			zap.String("requested_file", absFile))
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		} else {
			respondWithError(c, http.StatusInternalServerError, err, "Internal server error", h.logger,
				zap.String("file_path", filePath))
		}
		return
	}
	if fileInfo.IsDir() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Directory access not allowed"})
		return
	}

	c.File(filePath)
}
