package agent

import (
	"context"
	"sync"

	"csv-agent/config"
	"csv-agent/llmclient"
	"csv-agent/tools"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ChatCompleter is the model endpoint the agent talks to.
type ChatCompleter interface {
	Complete(ctx context.Context, req llmclient.Request) (openai.ChatCompletionMessage, error)
}

// Agent answers questions about one session's DataFrame by letting the
// model call the pandas REPL until it produces a final answer.
type Agent struct {
	cfg                  *config.Config
	llm                  ChatCompleter
	logger               *zap.Logger
	sessionID            string
	model                string
	dataset              *tools.DatasetInfo
	memoryManager        *MemoryManager
	executionCoordinator *ExecutionCoordinator
	queryBuilder         *QueryBuilder

	// one run at a time per session
	runMu sync.Mutex
}

func (a *Agent) SessionID() string           { return a.sessionID }
func (a *Agent) Model() string               { return a.model }
func (a *Agent) Dataset() *tools.DatasetInfo { return a.dataset }
func (a *Agent) Memory() *MemoryManager      { return a.memoryManager }

// Reset forgets previous turns. The loaded DataFrame is kept.
func (a *Agent) Reset() {
	a.memoryManager.Reset()
	a.logger.Info("Agent memory cleared", zap.String("session_id", a.sessionID))
}

// Stream runs the agent on input and returns its steps. The channel is
// closed when the run ends; cancelling ctx stops the run.
func (a *Agent) Stream(ctx context.Context, input string) <-chan Step {
	out := make(chan Step)
	go func() {
		defer close(out)
		a.runMu.Lock()
		defer a.runMu.Unlock()
		a.run(ctx, input, out)
	}()
	return out
}

func (a *Agent) run(ctx context.Context, input string, out chan<- Step) {
	emit := func(step Step) bool {
		select {
		case out <- step:
			return true
		case <-ctx.Done():
			return false
		}
	}

	messages := a.queryBuilder.BuildMessages(input)
	loop := NewConversationLoop(a.cfg, a.logger)

	for turn := 0; ; turn++ {
		if ok, reason := loop.ShouldContinue(turn); !ok {
			emit(Step{Output: reason})
			return
		}

		reply, err := a.llm.Complete(ctx, llmclient.Request{
			Model:       a.model,
			Messages:    messages,
			Tools:       ToolDefinitions(),
			Temperature: a.cfg.Temperature,
		})
		if err != nil {
			if ctx.Err() == nil {
				a.logger.Error("LLM request failed",
					zap.String("session_id", a.sessionID),
					zap.Int("turn", turn),
					zap.Error(err))
				emit(Step{Err: err})
			}
			return
		}

		if len(reply.ToolCalls) == 0 {
			a.memoryManager.Remember(input, reply.Content)
			a.logger.Info("Agent finished",
				zap.String("session_id", a.sessionID),
				zap.Int("turns", turn+1))
			emit(Step{Output: reply.Content})
			return
		}

		messages = append(messages, reply)
		// One Actions/Observations pair per call, in call order.
		turnFailed := false
		for _, tc := range reply.ToolCalls {
			call := ToToolCall(tc, reply.Content)
			if !emit(Step{Actions: []ToolCall{call}}) {
				return
			}
			obs, err := a.executionCoordinator.Execute(ctx, a.sessionID, call)
			if err != nil {
				if ctx.Err() == nil {
					emit(Step{Err: err})
				}
				return
			}
			if a.executionCoordinator.DetectError(obs.Text) {
				turnFailed = true
			}
			messages = append(messages, ToolMessage(obs))
			if !emit(Step{Observations: []Observation{obs}}) {
				return
			}
		}
		if turnFailed {
			loop.RecordError()
			a.logger.Debug("Tool call returned an error",
				zap.String("session_id", a.sessionID),
				zap.Int("consecutive_errors", loop.GetConsecutiveErrors()))
		} else {
			loop.RecordSuccess()
		}
	}
}
