package services

import (
	"context"
	"strings"

	"csv-agent/agent"
	"csv-agent/chat"
	apperrors "csv-agent/errors"
	"csv-agent/session"
	"csv-agent/web/render"

	"go.uber.org/zap"
)

const ErrMsgAgentFailed = "The analysis could not be completed. Please try again."

type ChatService struct {
	logger *zap.Logger
}

func NewChatService(logger *zap.Logger) *ChatService {
	return &ChatService{
		logger: logger,
	}
}

// Ask answers question with the session's agent. Every step of the run goes
// through the dispatcher; the concatenated final output is appended as the
// assistant's text and returned.
func (cs *ChatService) Ask(ctx context.Context, sess *session.Session, question string, emit Emitter) (string, error) {
	a := sess.Agent()
	if a == nil {
		return "", apperrors.ErrNoAgent
	}
	sess.Touch()

	sess.Log.Add(chat.RoleUser, chat.TextSegment(question))

	dispatcher := NewDispatcher(ctx, sess.ID, sess.Log, emit, cs.logger)
	parser := agent.NewStreamParser(dispatcher.Callbacks())

	var answer strings.Builder
	var runErr error
	for step := range a.Stream(ctx, question) {
		if step.Err != nil {
			runErr = step.Err
			continue
		}
		parser.ProcessStep(step)
		answer.WriteString(step.Output)
	}

	if runErr != nil {
		cs.logger.Error("Agent run failed",
			zap.String("session_id", sess.ID),
			zap.Error(runErr))
		dispatcher.send(StreamData{Type: EventError, Content: ErrMsgAgentFailed})
		if answer.Len() == 0 {
			return "", runErr
		}
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	aiAnswer := answer.String()
	seg := chat.TextSegment(aiAnswer)
	sess.Log.Add(chat.RoleAssistant, seg)
	html, err := render.Segment(ctx, seg)
	if err != nil {
		return aiAnswer, err
	}
	dispatcher.send(StreamData{Type: EventAnswer, Content: html})

	cs.logger.Info("Question answered",
		zap.String("session_id", sess.ID),
		zap.String("model", a.Model()),
		zap.Int("answer_length", len(aiAnswer)))
	return aiAnswer, nil
}
