package agent

import (
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func openaiCall(args string) openai.ToolCall {
	return openai.ToolCall{ID: "c", Function: openai.FunctionCall{Name: "python_repl_ast", Arguments: args}}
}

func TestStreamParserOrder(t *testing.T) {
	var got []string
	parser := NewStreamParser(Callbacks{
		Tool:        func(c ToolCall) { got = append(got, "tool:"+c.Query()) },
		Observation: func(o Observation) { got = append(got, "obs:"+o.Text) },
		Result:      func(s string) { got = append(got, "result:"+s) },
	})

	parser.ProcessStep(Step{Actions: []ToolCall{
		{Tool: "python_repl_ast", Input: map[string]any{"query": "a"}},
		{Tool: "python_repl_ast", Input: map[string]any{"query": "b"}},
	}})
	parser.ProcessStep(Step{Observations: []Observation{{Text: "1"}, {Text: "2"}}})
	parser.ProcessStep(Step{Output: "done"})
	parser.ProcessStep(Step{})

	assert.Equal(t, []string{"tool:a", "tool:b", "obs:1", "obs:2", "result:done"}, got)
}

func TestStreamParserNilCallbacks(t *testing.T) {
	parser := NewStreamParser(Callbacks{})
	assert.NotPanics(t, func() {
		parser.ProcessStep(Step{
			Actions:      []ToolCall{{Tool: "x"}},
			Observations: []Observation{{Text: "y"}},
			Output:       "z",
		})
	})
}

func TestToToolCall(t *testing.T) {
	tests := []struct {
		name string
		args string
		want string
	}{
		{name: "json_object", args: `{"query": "df.shape"}`, want: "df.shape"},
		{name: "bare_string", args: "df.columns", want: "df.columns"},
		{name: "empty", args: "", want: ""},
		{name: "missing_query", args: `{"code": "x"}`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := ToToolCall(openaiCall(tt.args), "")
			assert.Equal(t, tt.want, call.Query())
		})
	}
}
