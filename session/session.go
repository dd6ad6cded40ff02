// Package session keeps the per-browser state of the chat: the message log,
// the agent built for the uploaded dataset and questions waiting to be
// streamed. State lives in memory only.
package session

import (
	"sync"
	"time"

	"csv-agent/agent"
	"csv-agent/chat"
	"csv-agent/tools"
	"csv-agent/utils"
)

type Session struct {
	ID  string
	Log *chat.Log

	mu         sync.Mutex
	agent      *agent.Agent
	lastActive time.Time
	pending    map[string]string
}

func newSession(id string) *Session {
	return &Session{
		ID:         id,
		Log:        chat.NewLog(),
		lastActive: time.Now(),
		pending:    make(map[string]string),
	}
}

// Agent returns the session's agent, or nil before a dataset was loaded.
func (s *Session) Agent() *agent.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent
}

// SetAgent replaces the agent after a (new) dataset was loaded.
func (s *Session) SetAgent(a *agent.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agent = a
}

// Dataset returns the loaded dataset description, or nil.
func (s *Session) Dataset() *tools.DatasetInfo {
	if a := s.Agent(); a != nil {
		return a.Dataset()
	}
	return nil
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// AddPending stores a question until its stream is opened and returns the
// id the client uses to open it.
func (s *Session) AddPending(question string) string {
	id := utils.GenerateMessageID()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[id] = question
	return id
}

// TakePending removes and returns a stored question.
func (s *Session) TakePending(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	return q, ok
}

// Reset clears the transcript and the agent's memory of previous turns.
func (s *Session) Reset() {
	s.Log.Clear()
	if a := s.Agent(); a != nil {
		a.Reset()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]string)
}
