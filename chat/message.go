// Package chat holds the session transcript: messages made of typed
// segments, appended while the agent runs and replayed on every page load.
package chat

import (
	"sync"
	"time"

	"csv-agent/frame"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SegmentType identifies how a segment is rendered.
type SegmentType string

const (
	SegmentText      SegmentType = "text"
	SegmentFigure    SegmentType = "figure"
	SegmentCode      SegmentType = "code"
	SegmentDataFrame SegmentType = "dataframe"
)

// Segment is one typed piece of a message. Text and code use Content,
// figures use Content for the web path of the image, dataframes use Table.
type Segment struct {
	Type    SegmentType  `json:"type"`
	Content string       `json:"content,omitempty"`
	Table   *frame.Table `json:"table,omitempty"`
}

func TextSegment(text string) Segment {
	return Segment{Type: SegmentText, Content: text}
}

func CodeSegment(code string) Segment {
	return Segment{Type: SegmentCode, Content: code}
}

func FigureSegment(webPath string) Segment {
	return Segment{Type: SegmentFigure, Content: webPath}
}

func DataFrameSegment(t *frame.Table) Segment {
	return Segment{Type: SegmentDataFrame, Table: t}
}

func (s Segment) clone() Segment {
	s.Table = s.Table.Clone()
	return s
}

// Message is a run of segments from one role.
type Message struct {
	Role      Role      `json:"role"`
	Segments  []Segment `json:"segments"`
	CreatedAt time.Time `json:"created_at"`
}

// Log is the ordered transcript of one session.
type Log struct {
	mu       sync.RWMutex
	messages []Message
	now      func() time.Time
}

func NewLog() *Log {
	return &Log{now: time.Now}
}

// Add appends seg to the transcript. Consecutive segments from the same role
// are merged into one message, so adjacent messages never share a role.
func (l *Log) Add(role Role, seg Segment) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.messages); n > 0 && l.messages[n-1].Role == role {
		l.messages[n-1].Segments = append(l.messages[n-1].Segments, seg)
		return
	}
	l.messages = append(l.messages, Message{
		Role:      role,
		Segments:  []Segment{seg},
		CreatedAt: l.now(),
	})
}

// ClearLast empties the segments of the last message but keeps the message,
// so later segments from the same role still merge into it.
func (l *Log) ClearLast() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.messages); n > 0 {
		l.messages[n-1].Segments = nil
	}
}

// Clear drops the whole transcript.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = nil
}

// Messages returns a deep copy of the transcript.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, len(l.messages))
	for i, m := range l.messages {
		segs := make([]Segment, len(m.Segments))
		for j, s := range m.Segments {
			segs[j] = s.clone()
		}
		out[i] = Message{Role: m.Role, Segments: segs, CreatedAt: m.CreatedAt}
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
