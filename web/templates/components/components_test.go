package components

import (
	"bytes"
	"context"
	"testing"

	"csv-agent/chat"
	"csv-agent/frame"
	"csv-agent/tools"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderString(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	return buf.String()
}

func TestDatasetInfo(t *testing.T) {
	out := renderString(t, DatasetInfo(&tools.DatasetInfo{
		Filename:        "<sensors>.csv",
		Rows:            12345,
		Columns:         []tools.Column{{Name: "temp", DType: "float64"}},
		TimestampSample: []string{"2024-01-01 00:00:00+00:00"},
	}))

	assert.Contains(t, out, "&lt;sensors&gt;.csv")
	assert.Contains(t, out, "(12,345 rows)")
	assert.Contains(t, out, "<td>temp</td><td>float64</td>")
	assert.Contains(t, out, "<li>2024-01-01 00:00:00+00:00</li>")
}

func TestAlert(t *testing.T) {
	out := renderString(t, Alert(AlertWarning, "Please upload a file."))
	assert.Equal(t, `<div class="alert alert-warning" role="alert">Please upload a file.</div>`, out)
}

func TestChatPage(t *testing.T) {
	out := renderString(t, ChatPage(PageData{
		Messages: []chat.Message{{
			Role:     chat.RoleUser,
			Segments: []chat.Segment{chat.TextSegment("hello")},
		}},
		Models:       []string{"gpt-4o", "gpt-4o-mini"},
		CurrentModel: "gpt-4o-mini",
		MaxUploadMB:  50,
	}))

	assert.Contains(t, out, "<title>CSV data analysis chatbot</title>")
	assert.Contains(t, out, `<option value="gpt-4o-mini" selected>`)
	assert.Contains(t, out, `data-max-mb="50"`)
	assert.Contains(t, out, `<div class="chat-message user">`)
	assert.NotContains(t, out, `class="dataset-info"`)
}

func TestUserMessageOpensLiveContainer(t *testing.T) {
	out := renderString(t, UserMessage("why?", "abc"))
	assert.Contains(t, out, `id="live-abc"`)
	assert.Contains(t, out, `data-stream-id="abc"`)
}

func TestSegmentUnknownType(t *testing.T) {
	var buf bytes.Buffer
	err := Segment(chat.Segment{Type: "audio"}).Render(context.Background(), &buf)
	assert.Error(t, err)
}

func TestSegmentsRenderEscaped(t *testing.T) {
	code := renderString(t, CodeBlock("df[df.temp > 3].head()"))
	assert.Contains(t, code, `<code class="language-python">df[df.temp &gt; 3].head()</code>`)

	table := renderString(t, DataFrame(&frame.Table{
		Columns:   []string{"<temp>"},
		Index:     []string{"0"},
		Rows:      [][]string{{"21.5"}},
		TotalRows: 10,
	}))
	assert.Contains(t, table, "<th>&lt;temp&gt;</th>")
	assert.Contains(t, table, "<tr><th>0</th><td>21.5</td></tr>")
	assert.Contains(t, table, `<p class="caption">Showing 1 of 10 rows</p>`)
	assert.Empty(t, renderString(t, DataFrame(nil)))

	fig := renderString(t, Figure("/workspaces/s1/figure-1.png"))
	assert.Equal(t, `<div class="segment figure"><img src="/workspaces/s1/figure-1.png" alt="figure"></div>`, fig)

	bubble := renderString(t, UserMessage("why?", `a"b`))
	assert.Contains(t, bubble, `data-stream-id="a&#34;b"`)
}
