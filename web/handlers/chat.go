package handlers

import (
	"net/http"
	"strings"

	"csv-agent/config"
	apperrors "csv-agent/errors"
	"csv-agent/session"
	"csv-agent/web/services"
	"csv-agent/web/templates/components"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ErrMsgUploadFirst = "Please upload a CSV file and press \"Start analysis\" first."

type ChatHandler struct {
	cfg           *config.Config
	chatService   *services.ChatService
	streamService *services.StreamService
	logger        *zap.Logger
}

type ChatRequest struct {
	Message string `json:"message" form:"message"`
}

func NewChatHandler(cfg *config.Config, chatService *services.ChatService, streamService *services.StreamService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		cfg:           cfg,
		chatService:   chatService,
		streamService: streamService,
		logger:        logger,
	}
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(ContextSession).(*session.Session)
}

// Index renders the whole page with the replayed transcript.
func (h *ChatHandler) Index(c *gin.Context) {
	sess := currentSession(c)

	model := h.cfg.DefaultModel
	if a := sess.Agent(); a != nil {
		model = a.Model()
	}
	renderHTML(c, http.StatusOK, components.ChatPage(components.PageData{
		Messages:     sess.Log.Messages(),
		Models:       h.cfg.AvailableModels,
		CurrentModel: model,
		Dataset:      sess.Dataset(),
		MaxUploadMB:  h.cfg.MaxUploadMB,
	}))
}

// SendMessage accepts a question and returns the user bubble plus the live
// container whose stream the client opens next.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBind(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid request")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		respondWithClientError(c, http.StatusBadRequest, "Message cannot be empty")
		return
	}

	sess := currentSession(c)
	if sess.Agent() == nil {
		respondWithClientError(c, http.StatusConflict, ErrMsgUploadFirst)
		return
	}

	id := sess.AddPending(message)
	h.logger.Info("Question received",
		zap.String("session_id", sess.ID),
		zap.String("message_id", id),
		zap.Int("length", len(message)))

	renderHTML(c, http.StatusOK, components.UserMessage(message, id))
}

// StreamResponse answers a pending question over server-sent events.
func (h *ChatHandler) StreamResponse(c *gin.Context) {
	messageID := c.Query("message_id")
	if messageID == "" {
		respondWithClientError(c, http.StatusBadRequest, "message_id is required")
		return
	}
	sess := currentSession(c)
	question, ok := sess.TakePending(messageID)
	if !ok {
		respondWithClientError(c, http.StatusNotFound, "Message not found")
		return
	}

	ctx := c.Request.Context()
	h.streamService.PrepareSSE(c.Writer)
	c.Status(http.StatusOK)
	emit := h.streamService.Emitter(ctx, c.Writer)

	if _, err := h.chatService.Ask(ctx, sess, question, emit); err != nil {
		switch {
		case apperrors.IsNoAgent(err):
			_ = emit(services.StreamData{Type: services.EventError, Content: ErrMsgUploadFirst})
		case ctx.Err() != nil:
			h.logger.Info("Client disconnected during stream", zap.String("session_id", sess.ID))
			return
		default:
			h.logger.Warn("Question failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	_ = emit(services.StreamData{Type: services.EventEnd})
}

// Reset clears the transcript and the agent's memory.
func (h *ChatHandler) Reset(c *gin.Context) {
	sess := currentSession(c)
	sess.Reset()
	h.logger.Info("Conversation reset", zap.String("session_id", sess.ID))
	c.Redirect(http.StatusSeeOther, "/")
}
