// Package render replays a session transcript into HTML. The live stream
// and the page reload use the same functions, so a segment looks the same
// whether it arrived over SSE or was replayed from the log.
package render

import (
	"bytes"
	"context"

	"csv-agent/chat"
	"csv-agent/web/templates/components"
)

// Transcript renders every message in order. Nothing is returned if any
// segment cannot be rendered.
func Transcript(ctx context.Context, messages []chat.Message) (string, error) {
	var buf bytes.Buffer
	for _, msg := range messages {
		if err := components.MessageBubble(msg).Render(ctx, &buf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// Segment renders one segment for the live stream.
func Segment(ctx context.Context, seg chat.Segment) (string, error) {
	var buf bytes.Buffer
	if err := components.Segment(seg).Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
