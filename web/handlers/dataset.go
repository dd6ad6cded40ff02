package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"csv-agent/config"
	apperrors "csv-agent/errors"
	"csv-agent/web/services"
	"csv-agent/web/templates/components"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	MsgUploadMissing = "Please upload a file."
	MsgSetupComplete = "Setup complete. Start the conversation!"
	MsgUnknownModel  = "Please select one of the listed models."
	MsgExecutorDown  = "The analysis engine is not available right now. Please try again later."
	MsgLoadFailed    = "The CSV file could not be read. Check that it is ';' separated and has a timestamp column."
)

type DatasetHandler struct {
	cfg            *config.Config
	datasetService *services.DatasetService
	logger         *zap.Logger
}

func NewDatasetHandler(cfg *config.Config, datasetService *services.DatasetService, logger *zap.Logger) *DatasetHandler {
	return &DatasetHandler{
		cfg:            cfg,
		datasetService: datasetService,
		logger:         logger,
	}
}

// Upload handles "Start analysis" and answers with sidebar HTML.
func (h *DatasetHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		respondWithAlert(c, http.StatusBadRequest, components.AlertWarning, MsgUploadMissing)
		return
	}
	model := c.PostForm("model")
	if model == "" {
		model = h.cfg.DefaultModel
	}

	sess := currentSession(c)
	info, err := h.datasetService.Setup(c.Request.Context(), sess, file, model)
	if err != nil {
		switch {
		case apperrors.IsInvalidInput(err):
			respondWithAlert(c, http.StatusBadRequest, components.AlertError, userMessage(err))
		case errors.Is(err, apperrors.ErrUnknownModel):
			respondWithAlert(c, http.StatusBadRequest, components.AlertError, MsgUnknownModel)
		case apperrors.IsServiceUnavailable(err):
			h.logger.Error("No python executor available", zap.String("session_id", sess.ID), zap.Error(err))
			respondWithAlert(c, http.StatusServiceUnavailable, components.AlertError, MsgExecutorDown)
		case errors.Is(err, apperrors.ErrPythonExecution):
			h.logger.Warn("Dataset could not be loaded", zap.String("session_id", sess.ID), zap.Error(err))
			respondWithAlert(c, http.StatusUnprocessableEntity, components.AlertError, MsgLoadFailed)
		default:
			h.logger.Error("Dataset setup failed", zap.String("session_id", sess.ID), zap.Error(err))
			respondWithAlert(c, http.StatusInternalServerError, components.AlertError, "Setup failed. Please try again.")
		}
		return
	}

	var buf bytes.Buffer
	ctx := c.Request.Context()
	if err := components.DatasetInfo(info).Render(ctx, &buf); err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "Could not render page", h.logger)
		return
	}
	if err := components.Alert(components.AlertSuccess, MsgSetupComplete).Render(ctx, &buf); err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "Could not render page", h.logger)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// userMessage strips the sentinel suffix from validation errors.
func userMessage(err error) string {
	return strings.TrimSuffix(err.Error(), ": "+apperrors.ErrInvalidInput.Error())
}
