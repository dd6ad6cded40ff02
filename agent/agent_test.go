package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"csv-agent/config"
	apperrors "csv-agent/errors"
	"csv-agent/frame"
	"csv-agent/llmclient"
	"csv-agent/tools"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type scriptedLLM struct {
	mu       sync.Mutex
	replies  []openai.ChatCompletionMessage
	err      error
	requests []llmclient.Request
}

func (s *scriptedLLM) Complete(ctx context.Context, req llmclient.Request) (openai.ChatCompletionMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return openai.ChatCompletionMessage{}, s.err
	}
	if len(s.replies) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "fallback"}, nil
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return reply, nil
}

type fakeRunner struct {
	mu      sync.Mutex
	results map[string]*tools.ExecutionResult
	err     error
	queries []string
}

func (f *fakeRunner) Run(_ context.Context, _ string, query string) (*tools.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if res, ok := f.results[query]; ok {
		return res, nil
	}
	return &tools.ExecutionResult{Output: "ok"}, nil
}

func toolReply(id, query string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:   id,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tools.ToolName,
				Arguments: `{"query": ` + quote(query) + `}`,
			},
		}},
	}
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func answer(text string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text}
}

func testCfg() *config.Config {
	return &config.Config{
		AvailableModels:   []string{"gpt-4o", "gpt-4o-mini"},
		DefaultModel:      "gpt-4o",
		AnswerLanguage:    "Korean",
		TimestampColumn:   "timestamp",
		MaxTurns:          15,
		ConsecutiveErrors: 3,
		HistoryTurns:      2,
	}
}

func testDataset() *tools.DatasetInfo {
	return &tools.DatasetInfo{
		Filename: "sensors.csv",
		Columns:  []tools.Column{{Name: "temp", DType: "float64"}},
		Rows:     3,
		Head:     "   temp\n0  21.5",
	}
}

func newTestAgent(t *testing.T, cfg *config.Config, llm ChatCompleter, runner QueryRunner) *Agent {
	t.Helper()
	a, err := NewFactory(cfg, llm, runner, zap.NewNop()).Create("s1", testDataset(), "gpt-4o")
	require.NoError(t, err)
	return a
}

func collect(ch <-chan Step) []Step {
	var steps []Step
	for s := range ch {
		steps = append(steps, s)
	}
	return steps
}

func TestStreamToolThenAnswer(t *testing.T) {
	defer goleak.VerifyNone(t)

	table := &frame.Table{Columns: []string{"temp"}, Index: []string{"0"}, Rows: [][]string{{"21.5"}}, TotalRows: 1}
	llm := &scriptedLLM{replies: []openai.ChatCompletionMessage{
		toolReply("call_1", "df.head()"),
		answer("평균 온도는 21.5도입니다."),
	}}
	runner := &fakeRunner{results: map[string]*tools.ExecutionResult{
		"df.head()": {Output: "   temp\n0  21.5", Table: table},
	}}
	a := newTestAgent(t, testCfg(), llm, runner)

	steps := collect(a.Stream(context.Background(), "평균 온도는?"))
	require.Len(t, steps, 3)

	require.Len(t, steps[0].Actions, 1)
	assert.Equal(t, tools.ToolName, steps[0].Actions[0].Tool)
	assert.Equal(t, "df.head()", steps[0].Actions[0].Query())

	require.Len(t, steps[1].Observations, 1)
	assert.Equal(t, table, steps[1].Observations[0].Table)
	assert.Equal(t, "call_1", steps[1].Observations[0].Call.ID)

	assert.Equal(t, "평균 온도는 21.5도입니다.", steps[2].Output)
	assert.Equal(t, []string{"df.head()"}, runner.queries)

	// The second request carries the assistant tool call and its tool reply
	require.Len(t, llm.requests, 2)
	second := llm.requests[1].Messages
	require.Len(t, second, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, second[0].Role)
	assert.Contains(t, second[0].Content, "- temp")
	assert.Equal(t, openai.ChatMessageRoleTool, second[3].Role)
	assert.Equal(t, "call_1", second[3].ToolCallID)
	assert.Equal(t, "gpt-4o", llm.requests[0].Model)
	require.Len(t, llm.requests[0].Tools, 1)
}

func TestStreamFigureOnlyForShow(t *testing.T) {
	defer goleak.VerifyNone(t)

	llm := &scriptedLLM{replies: []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{
				{ID: "a", Function: openai.FunctionCall{Name: tools.ToolName, Arguments: `{"query": "sns.lineplot(data=df)"}`}},
				{ID: "b", Function: openai.FunctionCall{Name: tools.ToolName, Arguments: `{"query": "sns.lineplot(data=df)\nplt.show()"}`}},
			},
		},
		answer("done"),
	}}
	runner := &fakeRunner{results: map[string]*tools.ExecutionResult{
		"sns.lineplot(data=df)":             {Output: "Axes(0.125,0.11;0.775x0.77)", Figure: "figure-1.png"},
		"sns.lineplot(data=df)\nplt.show()": {Output: "", Figure: "figure-2.png"},
	}}
	a := newTestAgent(t, testCfg(), llm, runner)

	steps := collect(a.Stream(context.Background(), "plot"))
	require.Len(t, steps, 5)
	require.Len(t, steps[1].Observations, 1)
	assert.Empty(t, steps[1].Observations[0].Figure)
	require.Len(t, steps[3].Observations, 1)
	assert.Equal(t, "figure-2.png", steps[3].Observations[0].Figure)
}

func TestStreamInterleavesCallsAndObservations(t *testing.T) {
	defer goleak.VerifyNone(t)

	first := &frame.Table{Columns: []string{"temp"}, Index: []string{"0"}, Rows: [][]string{{"21.5"}}, TotalRows: 1}
	second := &frame.Table{Columns: []string{"hum"}, Index: []string{"0"}, Rows: [][]string{{"40"}}, TotalRows: 1}
	llm := &scriptedLLM{replies: []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{
				{ID: "a", Function: openai.FunctionCall{Name: tools.ToolName, Arguments: `{"query": "df[['temp']]"}`}},
				{ID: "b", Function: openai.FunctionCall{Name: tools.ToolName, Arguments: `{"query": "df[['hum']]"}`}},
			},
		},
		answer("done"),
	}}
	runner := &fakeRunner{results: map[string]*tools.ExecutionResult{
		"df[['temp']]": {Output: "temp", Table: first},
		"df[['hum']]":  {Output: "hum", Table: second},
	}}
	a := newTestAgent(t, testCfg(), llm, runner)

	steps := collect(a.Stream(context.Background(), "both"))
	require.Len(t, steps, 5)

	require.Len(t, steps[0].Actions, 1)
	assert.Equal(t, "df[['temp']]", steps[0].Actions[0].Query())
	require.Len(t, steps[1].Observations, 1)
	assert.Equal(t, first, steps[1].Observations[0].Table)
	require.Len(t, steps[2].Actions, 1)
	assert.Equal(t, "df[['hum']]", steps[2].Actions[0].Query())
	require.Len(t, steps[3].Observations, 1)
	assert.Equal(t, second, steps[3].Observations[0].Table)
	assert.Equal(t, "done", steps[4].Output)

	// Both tool replies follow the assistant message that requested them
	followUp := llm.requests[1].Messages
	require.Len(t, followUp, 5)
	assert.Equal(t, "a", followUp[3].ToolCallID)
	assert.Equal(t, "b", followUp[4].ToolCallID)
}

func TestExecuteLogsErrorPreviewOnCharacterBoundary(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	output := "ValueError: " + strings.Repeat("온도", 150)
	runner := &fakeRunner{results: map[string]*tools.ExecutionResult{"df.x": {Output: output}}}
	coord := NewExecutionCoordinator(runner, zap.New(core))

	obs, err := coord.Execute(context.Background(), "s1", ToolCall{
		Tool:  tools.ToolName,
		Input: map[string]any{"query": "df.x"},
	})
	require.NoError(t, err)
	assert.Equal(t, output, obs.Text)

	entries := logs.FilterMessage("Python execution resulted in error").All()
	require.Len(t, entries, 1)
	preview := entries[0].ContextMap()["error_preview"].(string)
	assert.True(t, utf8.ValidString(preview))
	assert.True(t, strings.HasSuffix(preview, "..."))

	_, err = coord.Execute(context.Background(), "s1", ToolCall{
		Tool:  tools.ToolName,
		Input: map[string]any{"query": "df.ok"},
	})
	require.NoError(t, err)
	assert.Len(t, logs.FilterMessage("Python execution resulted in error").All(), 1)
}

func TestStreamStopsAtIterationLimit(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testCfg()
	cfg.MaxTurns = 2
	llm := &scriptedLLM{replies: []openai.ChatCompletionMessage{toolReply("x", "df.shape")}}
	a := newTestAgent(t, cfg, llm, &fakeRunner{})

	steps := collect(a.Stream(context.Background(), "loop forever"))
	require.NotEmpty(t, steps)
	assert.Equal(t, iterationLimitMessage, steps[len(steps)-1].Output)
	assert.Len(t, llm.requests, 2)
}

func TestStreamStopsAfterConsecutiveErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testCfg()
	cfg.ConsecutiveErrors = 2
	llm := &scriptedLLM{replies: []openai.ChatCompletionMessage{toolReply("x", "df['nope']")}}
	runner := &fakeRunner{results: map[string]*tools.ExecutionResult{
		"df['nope']": {Output: "KeyError: 'nope'"},
	}}
	a := newTestAgent(t, cfg, llm, runner)

	steps := collect(a.Stream(context.Background(), "broken"))
	assert.Equal(t, consecutiveErrorsMessage, steps[len(steps)-1].Output)
	assert.Len(t, runner.queries, 2)
}

func TestStreamReportsLLMFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	llm := &scriptedLLM{err: apperrors.ErrLLMCommunication}
	a := newTestAgent(t, testCfg(), llm, &fakeRunner{})

	steps := collect(a.Stream(context.Background(), "hi"))
	require.Len(t, steps, 1)
	assert.ErrorIs(t, steps[0].Err, apperrors.ErrLLMCommunication)
}

func TestStreamReportsExecutorFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	llm := &scriptedLLM{replies: []openai.ChatCompletionMessage{toolReply("x", "df")}}
	a := newTestAgent(t, testCfg(), llm, &fakeRunner{err: errors.New("executor down")})

	steps := collect(a.Stream(context.Background(), "hi"))
	require.Len(t, steps, 2)
	assert.Len(t, steps[0].Actions, 1)
	assert.EqualError(t, steps[1].Err, "executor down")
}

func TestStreamCancelledConsumerDoesNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	llm := &scriptedLLM{replies: []openai.ChatCompletionMessage{toolReply("x", "df")}}
	a := newTestAgent(t, testCfg(), llm, &fakeRunner{})

	ctx, cancel := context.WithCancel(context.Background())
	ch := a.Stream(ctx, "hi")
	<-ch
	cancel()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after cancel")
	}
}

func TestMemoryCarriesPreviousTurns(t *testing.T) {
	defer goleak.VerifyNone(t)

	llm := &scriptedLLM{replies: []openai.ChatCompletionMessage{answer("a1"), answer("a2"), answer("a3"), answer("a4")}}
	a := newTestAgent(t, testCfg(), llm, &fakeRunner{})

	for _, q := range []string{"q1", "q2", "q3"} {
		collect(a.Stream(context.Background(), q))
	}
	assert.Equal(t, []Turn{{"q2", "a2"}, {"q3", "a3"}}, a.Memory().Turns())

	a.Reset()
	collect(a.Stream(context.Background(), "q4"))
	last := llm.requests[len(llm.requests)-1].Messages
	require.Len(t, last, 2)
	assert.Equal(t, "q4", last[1].Content)
}

func TestFactoryRejectsUnknownModel(t *testing.T) {
	f := NewFactory(testCfg(), &scriptedLLM{}, &fakeRunner{}, zap.NewNop())

	_, err := f.Create("s1", testDataset(), "gpt-3")
	assert.ErrorIs(t, err, apperrors.ErrUnknownModel)

	_, err = f.Create("s1", nil, "gpt-4o")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	a, err := f.Create("s1", testDataset(), "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", a.Model())
	assert.Equal(t, "s1", a.SessionID())
}
