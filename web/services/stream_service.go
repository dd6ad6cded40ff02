package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// Event types sent to the browser while a question is answered.
const (
	EventStatus    = "status"
	EventSegment   = "segment"
	EventError     = "error"
	EventClearLast = "clear_last"
	EventAnswer    = "answer"
	EventEnd       = "end"
)

type StreamData struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// Emitter delivers one event to the live view.
type Emitter func(StreamData) error

type StreamService struct {
	logger *zap.Logger
}

func NewStreamService(logger *zap.Logger) *StreamService {
	return &StreamService{
		logger: logger,
	}
}

// PrepareSSE sets the headers of an event stream response.
func (ss *StreamService) PrepareSSE(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// WriteSSEData is a helper to write SSE formatted data safely.
func (ss *StreamService) WriteSSEData(ctx context.Context, w http.ResponseWriter, data StreamData, mu *sync.Mutex) error {
	mu.Lock()
	defer mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "data: %s\n\n", jsonData)
	if err != nil {
		return err
	}

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// Emitter returns an Emitter writing to w. Write failures are logged once
// per event and returned so callers can stop early.
func (ss *StreamService) Emitter(ctx context.Context, w http.ResponseWriter) Emitter {
	var mu sync.Mutex
	return func(data StreamData) error {
		if err := ss.WriteSSEData(ctx, w, data, &mu); err != nil {
			ss.logger.Debug("Failed to write SSE event", zap.String("type", data.Type), zap.Error(err))
			return err
		}
		return nil
	}
}
