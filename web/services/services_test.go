package services

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"csv-agent/agent"
	"csv-agent/config"
	"csv-agent/llmclient"
	"csv-agent/session"
	"csv-agent/tools"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu     sync.Mutex
	events []StreamData
}

func (r *recorder) emit(d StreamData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, d)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) ofType(t string) []StreamData {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StreamData
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type scriptedLLM struct {
	mu      sync.Mutex
	replies []openai.ChatCompletionMessage
	err     error
}

func (s *scriptedLLM) Complete(_ context.Context, _ llmclient.Request) (openai.ChatCompletionMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return openai.ChatCompletionMessage{}, s.err
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return reply, nil
}

type fakeRunner struct {
	results map[string]*tools.ExecutionResult
}

func (f *fakeRunner) Run(_ context.Context, _ string, query string) (*tools.ExecutionResult, error) {
	if res, ok := f.results[query]; ok {
		return res, nil
	}
	return &tools.ExecutionResult{Output: "ok"}, nil
}

type fakeLoader struct {
	info  *tools.DatasetInfo
	err   error
	calls []string
}

func (f *fakeLoader) LoadDataset(_ context.Context, sessionID, filename string) (*tools.DatasetInfo, error) {
	f.calls = append(f.calls, sessionID+"/"+filename)
	if f.err != nil {
		return nil, f.err
	}
	info := *f.info
	info.Filename = filename
	return &info, nil
}

func toolCall(id, query string) openai.ToolCall {
	return openai.ToolCall{
		ID:       id,
		Type:     openai.ToolTypeFunction,
		Function: openai.FunctionCall{Name: tools.ToolName, Arguments: `{"query": ` + jsonString(query) + `}`},
	}
}

func jsonString(s string) string {
	var b bytes.Buffer
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		AvailableModels:   []string{"gpt-4o", "gpt-4o-mini"},
		DefaultModel:      "gpt-4o",
		AnswerLanguage:    "Korean",
		TimestampColumn:   "timestamp",
		MaxTurns:          15,
		ConsecutiveErrors: 3,
		HistoryTurns:      5,
		WorkspaceDir:      t.TempDir(),
		MaxUploadMB:       1,
	}
}

func newSession(t *testing.T) *session.Session {
	t.Helper()
	st, err := session.NewStore(8, nil, zap.NewNop())
	require.NoError(t, err)
	return st.GetOrCreate("3f1c1a52-5d0e-4a51-8f43-6a3a8b0e2c11")
}

func installAgent(t *testing.T, cfg *config.Config, sess *session.Session, llm agent.ChatCompleter, runner agent.QueryRunner) {
	t.Helper()
	a, err := agent.NewFactory(cfg, llm, runner, zap.NewNop()).Create(sess.ID, &tools.DatasetInfo{Filename: "d.csv"}, "gpt-4o")
	require.NoError(t, err)
	sess.SetAgent(a)
}

// fileHeader builds a multipart.FileHeader the way gin receives one.
func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/dataset", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))
	_, fh, err := req.FormFile("file")
	require.NoError(t, err)
	return fh
}
