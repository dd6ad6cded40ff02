package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"csv-agent/tools"
	"csv-agent/utils"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// QueryRunner executes pandas queries in a session.
type QueryRunner interface {
	Run(ctx context.Context, sessionID, query string) (*tools.ExecutionResult, error)
}

// ExecutionCoordinator turns the model's tool calls into executed observations.
type ExecutionCoordinator struct {
	runner QueryRunner
	logger *zap.Logger
}

// NewExecutionCoordinator creates a new execution coordinator instance.
func NewExecutionCoordinator(runner QueryRunner, logger *zap.Logger) *ExecutionCoordinator {
	return &ExecutionCoordinator{
		runner: runner,
		logger: logger,
	}
}

// ToToolCall converts an OpenAI tool call into the agent's event form.
// Arguments that are not a JSON object are passed through as the query, the
// way single-input tools accept a bare string.
func ToToolCall(tc openai.ToolCall, log string) ToolCall {
	input := map[string]any{}
	args := strings.TrimSpace(tc.Function.Arguments)
	if args != "" {
		if err := json.Unmarshal([]byte(args), &input); err != nil {
			input = map[string]any{"query": args}
		}
	}
	return ToolCall{
		ID:    tc.ID,
		Tool:  tc.Function.Name,
		Input: input,
		Log:   log,
	}
}

// Execute runs one tool call. Python exceptions become observation text;
// only executor transport failures are returned as errors.
func (e *ExecutionCoordinator) Execute(ctx context.Context, sessionID string, call ToolCall) (Observation, error) {
	obs := Observation{Call: call}

	if call.Tool != tools.ToolName {
		obs.Text = fmt.Sprintf("%s is not a valid tool, try one of [%s].", call.Tool, tools.ToolName)
		return obs, nil
	}
	query := call.Query()
	if strings.TrimSpace(query) == "" {
		obs.Text = "ValueError: missing required argument 'query'"
		return obs, nil
	}

	result, err := e.runner.Run(ctx, sessionID, query)
	if err != nil {
		return obs, err
	}

	obs.Text = result.Output
	obs.Table = result.Table
	// Figures are only surfaced for code that asked to show them
	if strings.Contains(query, "plt.show") {
		obs.Figure = result.Figure
	}

	if result.HasError() {
		e.logger.Warn("Python execution resulted in error",
			zap.String("session_id", sessionID),
			zap.String("error_preview", utils.Truncate(obs.Text, 200)))
	}
	return obs, nil
}

// DetectError checks if the execution result contains error indicators.
func (e *ExecutionCoordinator) DetectError(result string) bool {
	return strings.Contains(result, "Error")
}
