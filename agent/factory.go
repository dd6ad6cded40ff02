package agent

import (
	"csv-agent/config"
	apperrors "csv-agent/errors"
	"csv-agent/prompts"
	"csv-agent/tools"

	"go.uber.org/zap"
)

// Factory builds per-session agents sharing one model client and executor.
type Factory struct {
	cfg    *config.Config
	llm    ChatCompleter
	runner QueryRunner
	logger *zap.Logger
}

func NewFactory(cfg *config.Config, llm ChatCompleter, runner QueryRunner, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		llm:    llm,
		runner: runner,
		logger: logger,
	}
}

// Create wires the DataFrame loaded in sessionID, a model from the allowed
// list and the analyst instructions into a ready agent.
func (f *Factory) Create(sessionID string, dataset *tools.DatasetInfo, model string) (*Agent, error) {
	if !f.cfg.IsAllowedModel(model) {
		return nil, apperrors.WrapErrorf(apperrors.ErrUnknownModel, "model %q", model)
	}
	if dataset == nil {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, "no dataset loaded")
	}

	systemPrompt := prompts.AnalystSystem(prompts.AnalystParams{
		AnswerLanguage:  f.cfg.AnswerLanguage,
		TimestampColumn: f.cfg.TimestampColumn,
		Columns:         dataset.ColumnNames(),
		Head:            dataset.Head,
	})
	memory := NewMemoryManager(f.cfg.HistoryTurns)

	f.logger.Info("Agent created",
		zap.String("session_id", sessionID),
		zap.String("model", model),
		zap.String("dataset", dataset.Filename),
		zap.Int("rows", dataset.Rows))

	return &Agent{
		cfg:                  f.cfg,
		llm:                  f.llm,
		logger:               f.logger,
		sessionID:            sessionID,
		model:                model,
		dataset:              dataset,
		memoryManager:        memory,
		executionCoordinator: NewExecutionCoordinator(f.runner, f.logger),
		queryBuilder:         NewQueryBuilder(systemPrompt, memory),
	}, nil
}
