package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"csv-agent/agent"
	"csv-agent/config"
	apperrors "csv-agent/errors"
	"csv-agent/session"
	"csv-agent/tools"
	"csv-agent/utils"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// DatasetLoader reads a saved CSV into a session's Python interpreter.
type DatasetLoader interface {
	LoadDataset(ctx context.Context, sessionID, filename string) (*tools.DatasetInfo, error)
}

// AgentFactory builds the agent for a loaded dataset.
type AgentFactory interface {
	Create(sessionID string, dataset *tools.DatasetInfo, model string) (*agent.Agent, error)
}

// DatasetService handles "Start analysis": save the upload, load it and
// build the session's agent.
type DatasetService struct {
	cfg     *config.Config
	loader  DatasetLoader
	factory AgentFactory
	logger  *zap.Logger
}

func NewDatasetService(cfg *config.Config, loader DatasetLoader, factory AgentFactory, logger *zap.Logger) *DatasetService {
	return &DatasetService{
		cfg:     cfg,
		loader:  loader,
		factory: factory,
		logger:  logger,
	}
}

// ValidateFile checks type and size and returns the sanitized filename.
func (ds *DatasetService) ValidateFile(file *multipart.FileHeader) (string, error) {
	if !utils.IsCSVFile(file.Filename) {
		return "", apperrors.WrapError(apperrors.ErrInvalidInput, "invalid file type, please upload a CSV file")
	}
	if limit := ds.cfg.MaxUploadMB * 1024 * 1024; limit > 0 && file.Size > limit {
		return "", apperrors.WrapErrorf(apperrors.ErrInvalidInput, "file too large, maximum size is %s", humanize.IBytes(uint64(limit)))
	}
	return utils.SanitizeFilename(file.Filename), nil
}

// WorkspaceDir is where a session's uploads and figures live.
func (ds *DatasetService) WorkspaceDir(sessionID string) string {
	return filepath.Join(ds.cfg.WorkspaceDir, sessionID)
}

// SaveFile saves the uploaded file to the workspace directory.
func (ds *DatasetService) SaveFile(file *multipart.FileHeader, sessionID, filename string) error {
	workspaceDir := ds.WorkspaceDir(sessionID)
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return fmt.Errorf("could not create workspace: %w", err)
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	out, err := os.Create(filepath.Join(workspaceDir, filename))
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}

	if !utils.VerifyFileExists(workspaceDir, filename) {
		return fmt.Errorf("file verification failed after upload")
	}
	return nil
}

// Setup saves file, loads it as `df` and installs a new agent on the
// session. The transcript is kept; the agent's memory starts empty.
func (ds *DatasetService) Setup(ctx context.Context, sess *session.Session, file *multipart.FileHeader, model string) (*tools.DatasetInfo, error) {
	if !ds.cfg.IsAllowedModel(model) {
		return nil, apperrors.WrapErrorf(apperrors.ErrUnknownModel, "model %q", model)
	}
	filename, err := ds.ValidateFile(file)
	if err != nil {
		return nil, err
	}
	if err := ds.SaveFile(file, sess.ID, filename); err != nil {
		ds.logger.Error("Failed to save uploaded file",
			zap.Error(err),
			zap.String("filename", filename),
			zap.String("session_id", sess.ID))
		return nil, err
	}

	info, err := ds.loader.LoadDataset(ctx, sess.ID, filename)
	if err != nil {
		return nil, err
	}

	a, err := ds.factory.Create(sess.ID, info, model)
	if err != nil {
		return nil, err
	}
	sess.SetAgent(a)
	sess.Touch()

	ds.logger.Info("Dataset ready",
		zap.String("session_id", sess.ID),
		zap.String("filename", filename),
		zap.Int("rows", info.Rows),
		zap.Int("columns", len(info.Columns)),
		zap.String("model", model))
	return info, nil
}
