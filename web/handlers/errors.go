package handlers

import (
	"bytes"
	"net/http"

	"csv-agent/web/middleware"
	"csv-agent/web/templates/components"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Context keys set by the server middleware
const (
	ContextSessionID = middleware.ContextSessionID
	ContextSession   = middleware.ContextSession
	ContextLogger    = "logger"
)

// respondWithError logs the technical error and returns a user-friendly message
func respondWithError(c *gin.Context, statusCode int, technicalError error, userMessage string, logger *zap.Logger, fields ...zap.Field) {
	if logger != nil {
		fields = append(fields, zap.Error(technicalError))
		logger.Error("Request failed", fields...)
	}

	c.JSON(statusCode, gin.H{"error": userMessage})
}

// respondWithClientError returns a client error (no logging needed for validation errors)
func respondWithClientError(c *gin.Context, statusCode int, userMessage string) {
	c.JSON(statusCode, gin.H{"error": userMessage})
}

// respondWithAlert returns an HTML alert fragment for the sidebar.
func respondWithAlert(c *gin.Context, statusCode int, kind components.AlertKind, message string) {
	renderHTML(c, statusCode, components.Alert(kind, message))
}

// renderHTML renders into a buffer first so a failing component never
// leaves a half written page.
func renderHTML(c *gin.Context, statusCode int, component templ.Component) {
	var buf bytes.Buffer
	if err := component.Render(c.Request.Context(), &buf); err != nil {
		logger, _ := c.Get(ContextLogger)
		zapLogger, _ := logger.(*zap.Logger)
		respondWithError(c, http.StatusInternalServerError, err, "Could not render page", zapLogger)
		return
	}
	c.Data(statusCode, "text/html; charset=utf-8", buf.Bytes())
}
