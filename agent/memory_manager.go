package agent

import (
	"sync"

	"github.com/sashabaranov/go-openai"
)

// Turn is one finished question/answer exchange.
type Turn struct {
	Question string
	Answer   string
}

// MemoryManager keeps the most recent finished turns of one session so
// follow-up questions can refer to earlier answers.
type MemoryManager struct {
	mu       sync.Mutex
	maxTurns int
	turns    []Turn
}

// NewMemoryManager creates a memory that holds at most maxTurns turns. A
// non-positive maxTurns disables memory.
func NewMemoryManager(maxTurns int) *MemoryManager {
	return &MemoryManager{maxTurns: maxTurns}
}

// Remember appends a finished turn, dropping the oldest when full.
func (m *MemoryManager) Remember(question, answer string) {
	if m.maxTurns <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, Turn{Question: question, Answer: answer})
	if over := len(m.turns) - m.maxTurns; over > 0 {
		m.turns = append([]Turn(nil), m.turns[over:]...)
	}
}

// Turns returns a copy of the remembered turns, oldest first.
func (m *MemoryManager) Turns() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Turn(nil), m.turns...)
}

// Messages renders the remembered turns as chat messages.
func (m *MemoryManager) Messages() []openai.ChatCompletionMessage {
	turns := m.Turns()
	msgs := make([]openai.ChatCompletionMessage, 0, 2*len(turns))
	for _, t := range turns {
		msgs = append(msgs,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: t.Question},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: t.Answer},
		)
	}
	return msgs
}

// Reset forgets every turn.
func (m *MemoryManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}
