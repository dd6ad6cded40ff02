package agent

import (
	"csv-agent/config"

	"go.uber.org/zap"
)

const (
	iterationLimitMessage    = "Agent stopped due to iteration limit."
	consecutiveErrorsMessage = "Agent stopped after repeated code errors. Please rephrase the question or check the column names."
)

// ConversationLoop manages the agent's turn loop, error tracking, and breaking conditions.
type ConversationLoop struct {
	cfg               *config.Config
	consecutiveErrors int
	logger            *zap.Logger
}

// NewConversationLoop creates a new conversation loop instance.
func NewConversationLoop(cfg *config.Config, logger *zap.Logger) *ConversationLoop {
	return &ConversationLoop{
		cfg:               cfg,
		consecutiveErrors: 0,
		logger:            logger,
	}
}

// ShouldContinue checks if the loop should continue based on turn count and consecutive errors.
// Returns (shouldContinue, reason). If shouldContinue is false, reason is the
// answer shown to the user.
func (c *ConversationLoop) ShouldContinue(turn int) (bool, string) {
	if c.cfg.ConsecutiveErrors > 0 && c.consecutiveErrors >= c.cfg.ConsecutiveErrors {
		c.logger.Warn("Agent produced consecutive errors, breaking loop to request user feedback",
			zap.Int("consecutive_errors", c.consecutiveErrors))
		return false, consecutiveErrorsMessage
	}

	if turn >= c.cfg.MaxTurns {
		c.logger.Info("Reached maximum turns limit",
			zap.Int("max_turns", c.cfg.MaxTurns))
		return false, iterationLimitMessage
	}

	return true, ""
}

// RecordError increments the consecutive error counter and logs it.
func (c *ConversationLoop) RecordError() {
	c.consecutiveErrors++
	c.logger.Debug("Recorded execution error",
		zap.Int("consecutive_errors", c.consecutiveErrors))
}

// RecordSuccess resets the consecutive error counter.
func (c *ConversationLoop) RecordSuccess() {
	if c.consecutiveErrors > 0 {
		c.logger.Debug("Resetting consecutive error count after successful execution")
		c.consecutiveErrors = 0
	}
}

// GetConsecutiveErrors returns the current consecutive error count.
func (c *ConversationLoop) GetConsecutiveErrors() int {
	return c.consecutiveErrors
}
