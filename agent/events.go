package agent

import "csv-agent/frame"

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Tool  string
	Input map[string]any
	// Log is the model's text that accompanied the call, if any.
	Log string
}

// Query returns the "query" argument of the call, or "" when absent.
func (c ToolCall) Query() string {
	q, _ := c.Input["query"].(string)
	return q
}

// Observation is the result of executing one ToolCall.
type Observation struct {
	Call   ToolCall
	Text   string
	Table  *frame.Table
	Figure string
}

// Step is one event of an agent run. Exactly one field is set.
type Step struct {
	Actions      []ToolCall
	Observations []Observation
	Output       string
	Err          error
}
