package services

import (
	"context"
	"strings"

	"csv-agent/agent"
	"csv-agent/chat"
	"csv-agent/tools"
	"csv-agent/utils"
	"csv-agent/web/render"

	"go.uber.org/zap"
)

const (
	StatusAnalyzing = "Analyzing data..."
	StatusCodeDone  = "Code output"

	ErrMsgNoDataFrame = "The dataframe is not defined. Please upload a CSV file first."
)

// Dispatcher turns agent events into transcript segments for one session
// and mirrors every appended segment to the live view.
type Dispatcher struct {
	ctx       context.Context
	sessionID string
	log       *chat.Log
	emit      Emitter
	logger    *zap.Logger
}

func NewDispatcher(ctx context.Context, sessionID string, log *chat.Log, emit Emitter, logger *zap.Logger) *Dispatcher {
	if emit == nil {
		emit = func(StreamData) error { return nil }
	}
	return &Dispatcher{
		ctx:       ctx,
		sessionID: sessionID,
		log:       log,
		emit:      emit,
		logger:    logger,
	}
}

// Callbacks binds the dispatcher to the agent's three hooks.
func (d *Dispatcher) Callbacks() agent.Callbacks {
	return agent.Callbacks{
		Tool:        d.OnTool,
		Observation: d.OnObservation,
		Result:      d.OnResult,
	}
}

// OnTool records the code the agent is about to run.
func (d *Dispatcher) OnTool(call agent.ToolCall) {
	if call.Tool != tools.ToolName {
		return
	}
	query := call.Query()
	if query == "" {
		d.send(StreamData{Type: EventError, Content: ErrMsgNoDataFrame})
		return
	}
	d.send(StreamData{Type: EventStatus, Content: StatusAnalyzing})
	d.append(chat.CodeSegment(query))
}

// OnObservation records what the code produced. An error observation wipes
// the segments of the current assistant message; the error is sent after the
// wipe so the live view keeps showing it.
func (d *Dispatcher) OnObservation(obs agent.Observation) {
	if strings.Contains(obs.Text, "Error") {
		d.log.ClearLast()
		d.send(StreamData{Type: EventClearLast})
		d.send(StreamData{Type: EventError, Content: obs.Text})
		return
	}
	d.send(StreamData{Type: EventStatus, Content: StatusCodeDone})

	if obs.Table != nil {
		d.append(chat.DataFrameSegment(obs.Table))
	}
	if obs.Figure != "" && strings.Contains(obs.Call.Query(), "plt.show") {
		d.append(chat.FigureSegment(utils.WorkspaceWebPath(d.sessionID, obs.Figure)))
	}
}

// OnResult has no transcript effect; the answer is appended once the run ends.
func (d *Dispatcher) OnResult(output string) {
	d.logger.Debug("Agent produced output",
		zap.String("session_id", d.sessionID),
		zap.Int("length", len(output)))
}

func (d *Dispatcher) append(seg chat.Segment) {
	d.log.Add(chat.RoleAssistant, seg)
	html, err := render.Segment(d.ctx, seg)
	if err != nil {
		d.logger.Error("Failed to render segment",
			zap.String("session_id", d.sessionID),
			zap.String("type", string(seg.Type)),
			zap.Error(err))
		return
	}
	d.send(StreamData{Type: EventSegment, Content: html})
}

func (d *Dispatcher) send(data StreamData) {
	// A closed stream must not interrupt transcript bookkeeping
	_ = d.emit(data)
}
