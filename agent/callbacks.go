package agent

// Callbacks receives the classified events of an agent run.
type Callbacks struct {
	Tool        func(ToolCall)
	Observation func(Observation)
	Result      func(string)
}

// StreamParser routes steps to callbacks.
type StreamParser struct {
	callbacks Callbacks
}

func NewStreamParser(callbacks Callbacks) *StreamParser {
	return &StreamParser{callbacks: callbacks}
}

// ProcessStep calls Tool once per action, then Observation once per
// observation, then Result when the step carries a final answer. Steps
// carrying only an error are ignored.
func (p *StreamParser) ProcessStep(step Step) {
	for _, action := range step.Actions {
		if p.callbacks.Tool != nil {
			p.callbacks.Tool(action)
		}
	}
	for _, obs := range step.Observations {
		if p.callbacks.Observation != nil {
			p.callbacks.Observation(obs)
		}
	}
	if step.Output != "" && p.callbacks.Result != nil {
		p.callbacks.Result(step.Output)
	}
}
