// Package components holds the chat page's templ components. Edit the
// .templ sources and run `templ generate`; the _templ.go files are generated.
package components

import (
	"context"
	"io"

	"csv-agent/chat"
	apperrors "csv-agent/errors"
	"csv-agent/frame"
	"csv-agent/tools"

	"github.com/a-h/templ"
)

// PageData is everything the full page needs.
type PageData struct {
	Messages     []chat.Message
	Models       []string
	CurrentModel string
	Dataset      *tools.DatasetInfo
	MaxUploadMB  int64
}

// AlertKind selects the styling of an Alert.
type AlertKind string

const (
	AlertSuccess AlertKind = "success"
	AlertWarning AlertKind = "warning"
	AlertError   AlertKind = "error"
)

// Segment renders a single segment. Unknown segment types are an error.
func Segment(seg chat.Segment) templ.Component {
	switch seg.Type {
	case chat.SegmentText:
		return Text(seg.Content)
	case chat.SegmentCode:
		return CodeBlock(seg.Content)
	case chat.SegmentDataFrame:
		return DataFrame(seg.Table)
	case chat.SegmentFigure:
		return Figure(seg.Content)
	}
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return apperrors.WrapErrorf(apperrors.ErrUnknownSegment, "%q", string(seg.Type))
	})
}

func avatar(role chat.Role) string {
	if role == chat.RoleUser {
		return "🧑"
	}
	return "🤖"
}

func indexLabel(t *frame.Table, row int) string {
	if row < len(t.Index) {
		return t.Index[row]
	}
	return ""
}
