package agent

import (
	"csv-agent/tools"

	"github.com/sashabaranov/go-openai"
)

// QueryBuilder assembles the message list sent to the model for one run.
type QueryBuilder struct {
	systemPrompt string
	memory       *MemoryManager
}

// NewQueryBuilder creates a new query builder instance.
func NewQueryBuilder(systemPrompt string, memory *MemoryManager) *QueryBuilder {
	return &QueryBuilder{
		systemPrompt: systemPrompt,
		memory:       memory,
	}
}

// BuildMessages returns system prompt, remembered turns and the new question.
func (qb *QueryBuilder) BuildMessages(input string) []openai.ChatCompletionMessage {
	msgs := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: qb.systemPrompt,
	}}
	msgs = append(msgs, qb.memory.Messages()...)
	return append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: input,
	})
}

// ToolDefinitions describes the pandas REPL to the model.
func ToolDefinitions() []openai.Tool {
	return []openai.Tool{{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        tools.ToolName,
			Description: tools.ToolDescription,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "code snippet to run",
					},
				},
				"required": []string{"query"},
			},
		},
	}}
}

// ToolMessage wraps an observation as the tool reply for the model.
func ToolMessage(obs Observation) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		Content:    obs.Text,
		Name:       obs.Call.Tool,
		ToolCallID: obs.Call.ID,
	}
}
