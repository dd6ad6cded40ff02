package tools

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	"csv-agent/config"
	apperrors "csv-agent/errors"
	"csv-agent/frame"
	"csv-agent/utils"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ToolName is the name the model uses to call the pandas REPL.
const ToolName = "python_repl_ast"

// ToolDescription is shown to the model next to ToolName.
const ToolDescription = "A Python shell. Use this to execute python commands. Input should be a valid python command. " +
	"When using this tool, sometimes output is abbreviated - make sure it does not look abbreviated before using it in your answer."

const (
	markerDataFrame = "<|DATAFRAME|>"
	markerFigure    = "<|FIGURE|>"
	markerDataset   = "<|DATASET|>"
)

//go:embed repl_helper.py
var replHelper string

var (
	leadingFence  = regexp.MustCompile("^(\\s|`)*(?i:python)?\\s*")
	trailingFence = regexp.MustCompile("(\\s|`)*$")
)

// CodeRunner executes code inside a session's Python interpreter.
type CodeRunner interface {
	Call(ctx context.Context, code string, sessionID string) (string, error)
	CleanupSession(sessionID string)
}

// Column is one DataFrame column and its pandas dtype.
type Column struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
}

// DatasetInfo describes the DataFrame loaded into a session.
type DatasetInfo struct {
	Filename        string   `json:"filename"`
	Columns         []Column `json:"columns"`
	Rows            int      `json:"rows"`
	TimestampSample []string `json:"timestamp_sample"`
	Head            string   `json:"head"`
}

// ColumnNames returns the column labels in order.
func (d *DatasetInfo) ColumnNames() []string {
	return lo.Map(d.Columns, func(c Column, _ int) string { return c.Name })
}

// ExecutionResult is what one REPL query produced. Output is the text the
// model observes; Table is set when the query evaluated to a DataFrame and
// Figure holds the file name of a chart saved in the session workspace.
type ExecutionResult struct {
	Output string
	Table  *frame.Table
	Figure string
}

// HasError reports whether the REPL returned an exception.
func (r *ExecutionResult) HasError() bool {
	return strings.Contains(r.Output, "Error")
}

// PandasTool runs REPL-style pandas queries against the DataFrame `df`
// held in a session's executor.
type PandasTool struct {
	runner          CodeRunner
	logger          *zap.Logger
	workspaceDir    string
	separator       string
	timestampColumn string
	maxRows         int
}

func NewPandasTool(cfg *config.Config, runner CodeRunner, logger *zap.Logger) *PandasTool {
	return &PandasTool{
		runner:          runner,
		logger:          logger,
		workspaceDir:    cfg.ExecutorWorkspaceDir,
		separator:       cfg.CSVSeparator,
		timestampColumn: cfg.TimestampColumn,
		maxRows:         cfg.DataFrameMaxRows,
	}
}

// LoadDataset installs the REPL helpers in the session and reads filename
// from the session workspace into `df`.
func (p *PandasTool) LoadDataset(ctx context.Context, sessionID, filename string) (*DatasetInfo, error) {
	csvPath := p.executorPath(sessionID, filename)
	code := replHelper + "\n" + fmt.Sprintf("_csv_agent_load(%s, %s, %s, %d)\n",
		pyString(csvPath), pyString(p.separator), pyString(p.timestampColumn), 5)

	p.logger.Info("Loading dataset into python session",
		zap.String("session_id", sessionID),
		zap.String("filename", filename))

	raw, err := p.runner.Call(ctx, code, sessionID)
	if err != nil {
		if apperrors.IsServiceUnavailable(err) {
			return nil, apperrors.WrapError(err, "load dataset")
		}
		return nil, apperrors.WrapErrorf(apperrors.ErrServiceUnavailable, "load dataset: %v", err)
	}

	var info *DatasetInfo
	var rest []string
	scanLines(raw, func(line string) {
		payload, ok := strings.CutPrefix(line, markerDataset)
		if !ok {
			rest = append(rest, line)
			return
		}
		var decoded struct {
			Columns         [][]string `json:"columns"`
			Rows            int        `json:"rows"`
			TimestampSample []string   `json:"timestamp_sample"`
			Head            string     `json:"head"`
		}
		if jsonErr := json.Unmarshal([]byte(payload), &decoded); jsonErr != nil {
			p.logger.Warn("Malformed dataset summary", zap.Error(jsonErr))
			return
		}
		info = &DatasetInfo{
			Filename:        filename,
			Rows:            decoded.Rows,
			TimestampSample: decoded.TimestampSample,
			Head:            decoded.Head,
		}
		for _, pair := range decoded.Columns {
			if len(pair) == 2 {
				info.Columns = append(info.Columns, Column{Name: pair[0], DType: pair[1]})
			}
		}
	})

	if info == nil {
		detail := strings.Join(rest, "\n")
		p.logger.Warn("Dataset load failed",
			zap.String("session_id", sessionID),
			zap.String("output_preview", sanitizeLogOutput(detail, 300)))
		return nil, apperrors.WrapErrorf(apperrors.ErrPythonExecution, "could not read %s: %s",
			filename, utils.Truncate(detail, 300))
	}
	return info, nil
}

// Run executes query like a Python REPL: statements are executed, a final
// expression is evaluated and its value appended to stdout. Exceptions come
// back as "<Type>: <message>" in Output rather than as an error; error is
// reserved for executor transport failures.
func (p *PandasTool) Run(ctx context.Context, sessionID, query string) (*ExecutionResult, error) {
	query = SanitizeQuery(query)
	figureName := fmt.Sprintf("figure-%s.png", uuid.New().String())
	code := fmt.Sprintf("_csv_agent_run(%s, %s, %d)\n",
		pyString(query), pyString(p.executorPath(sessionID, figureName)), p.maxRows)

	// Log execution without full code (which could contain sensitive data)
	p.logger.Info("Executing Python code",
		zap.String("session_id", sessionID),
		zap.Int("code_lines", strings.Count(query, "\n")+1))

	raw, err := p.runner.Call(ctx, code, sessionID)
	if err != nil {
		p.logger.Error("Error executing Python code", zap.Error(err), zap.String("session_id", sessionID))
		return nil, apperrors.WrapError(apperrors.ErrPythonExecution, err.Error())
	}

	result := p.parseResult(raw)
	if p.logger.Core().Enabled(zap.DebugLevel) {
		p.logger.Debug("Python code executed",
			zap.String("session_id", sessionID),
			zap.Bool("dataframe", result.Table != nil),
			zap.Bool("figure", result.Figure != ""),
			zap.String("result_preview", sanitizeLogOutput(result.Output, 100)))
	}
	return result, nil
}

// CleanupSession forgets the executor bound to sessionID.
func (p *PandasTool) CleanupSession(sessionID string) {
	p.runner.CleanupSession(sessionID)
}

func (p *PandasTool) parseResult(raw string) *ExecutionResult {
	result := &ExecutionResult{}
	var text []string
	scanLines(raw, func(line string) {
		switch {
		case strings.HasPrefix(line, markerDataFrame):
			table, err := frame.ParseSplitJSON([]byte(strings.TrimPrefix(line, markerDataFrame)))
			if err != nil {
				p.logger.Warn("Malformed dataframe payload", zap.Error(err))
				return
			}
			result.Table = table
		case strings.HasPrefix(line, markerFigure):
			result.Figure = path.Base(strings.TrimSpace(strings.TrimPrefix(line, markerFigure)))
		default:
			text = append(text, line)
		}
	})
	result.Output = strings.TrimSpace(strings.Join(text, "\n"))
	return result
}

func (p *PandasTool) executorPath(sessionID, filename string) string {
	// The executor may run on another OS image; always use forward slashes
	return path.Join(strings.ReplaceAll(p.workspaceDir, "\\", "/"), sessionID, filename)
}

// SanitizeQuery strips markdown fences and a leading "python" tag that
// models sometimes wrap around tool input.
func SanitizeQuery(query string) string {
	query = leadingFence.ReplaceAllString(query, "")
	return trailingFence.ReplaceAllString(query, "")
}

// pyString renders s as a Python string literal. JSON string escapes are a
// subset of Python's, so the JSON encoding is a valid literal.
func pyString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func scanLines(s string, fn func(string)) {
	scanner := bufio.NewScanner(strings.NewReader(s))
	scanner.Buffer(make([]byte, 64*1024), 32*1024*1024)
	for scanner.Scan() {
		fn(scanner.Text())
	}
}

// sanitizeLogOutput truncates and removes potentially sensitive patterns from log output
func sanitizeLogOutput(s string, maxLen int) string {
	s = utils.Truncate(s, maxLen)

	sensitive := []string{
		"password", "passwd", "pwd",
		"token", "api_key", "apikey", "secret",
		"credentials", "auth",
	}

	lower := strings.ToLower(s)
	for _, pattern := range sensitive {
		if strings.Contains(lower, pattern) {
			return "[Output contains potentially sensitive data - not logged]"
		}
	}

	return s
}
