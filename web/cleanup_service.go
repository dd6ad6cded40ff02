package web

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"csv-agent/config"
	"csv-agent/session"
	"csv-agent/utils"

	"go.uber.org/zap"
)

// SessionCleaner forgets the executor state of a session.
type SessionCleaner interface {
	CleanupSession(sessionID string)
}

// CleanupService handles session and workspace cleanup operations
type CleanupService struct {
	workspaceRoot string
	cleaner       SessionCleaner
	logger        *zap.Logger
}

// NewCleanupService creates a new cleanup service instance
func NewCleanupService(workspaceRoot string, cleaner SessionCleaner, logger *zap.Logger) *CleanupService {
	return &CleanupService{
		workspaceRoot: workspaceRoot,
		cleaner:       cleaner,
		logger:        logger,
	}
}

// ReleaseSession drops the executor binding and the workspace directory of
// a session that left the store. It is the store's eviction hook.
func (cs *CleanupService) ReleaseSession(sess *session.Session) {
	if !utils.IsValidSessionID(sess.ID) {
		return
	}

	// Cleanup Python executor session binding
	if cs.cleaner != nil {
		cs.cleaner.CleanupSession(sess.ID)
	}

	workspaceDir := filepath.Join(cs.workspaceRoot, sess.ID)
	if err := os.RemoveAll(workspaceDir); err != nil {
		cs.logger.Warn("Failed to delete workspace directory",
			zap.Error(err),
			zap.String("path", workspaceDir),
			zap.String("session_id", sess.ID))
		return
	}
	cs.logger.Debug("Workspace directory deleted",
		zap.String("path", workspaceDir),
		zap.String("session_id", sess.ID))
}

// CleanupIdleSessions removes sessions idle for longer than maxAge.
// Returns the number of sessions removed.
func (cs *CleanupService) CleanupIdleSessions(ctx context.Context, store *session.Store, maxAge time.Duration) int {
	cutoffTime := time.Now().Add(-maxAge)

	cs.logger.Debug("Starting idle session cleanup",
		zap.Time("cutoff_time", cutoffTime),
		zap.Duration("max_age", maxAge))

	idle := store.IdleSince(cutoffTime)
	if len(idle) == 0 {
		cs.logger.Debug("No idle sessions found")
		return 0
	}

	removed := 0
	for _, sessionID := range idle {
		if ctx.Err() != nil {
			break
		}
		// Removal runs ReleaseSession through the eviction hook
		if store.Remove(sessionID) {
			removed++
		}
	}

	cs.logger.Info("Idle session cleanup completed",
		zap.Int("sessions_removed", removed),
		zap.Int("sessions_remaining", store.Len()))
	return removed
}

// StartWorkspaceCleanup runs CleanupIdleSessions on the configured
// interval until ctx is cancelled.
func StartWorkspaceCleanup(ctx context.Context, cfg *config.Config, cs *CleanupService, store *session.Store, logger *zap.Logger) {
	if !cfg.CleanupEnabled || cfg.CleanupInterval <= 0 || cfg.SessionRetentionAge <= 0 {
		logger.Info("Session cleanup disabled")
		return
	}

	logger.Info("Session cleanup scheduled",
		zap.Duration("interval", cfg.CleanupInterval),
		zap.Duration("retention", cfg.SessionRetentionAge))

	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cs.CleanupIdleSessions(ctx, store, cfg.SessionRetentionAge)
		case <-ctx.Done():
			return
		}
	}
}
