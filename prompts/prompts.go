package prompts

import (
	_ "embed"
	"strings"
)

// Embedded prompt files

//go:embed analyst_prefix.txt
var analystPrefix string

//go:embed dataframe_suffix.txt
var dataframeSuffix string

// AnalystParams fills the placeholders of the analyst system prompt.
type AnalystParams struct {
	AnswerLanguage  string
	TimestampColumn string
	Columns         []string
	Head            string
}

// AnalystSystem renders the fixed instruction prefix followed by the
// dataframe preview.
func AnalystSystem(p AnalystParams) string {
	language := p.AnswerLanguage
	if language == "" {
		language = "Korean"
	}
	tsCol := p.TimestampColumn
	if tsCol == "" {
		tsCol = "timestamp"
	}
	columns := make([]string, 0, len(p.Columns))
	for _, c := range p.Columns {
		columns = append(columns, "- "+c)
	}

	r := strings.NewReplacer(
		"{{ANSWER_LANGUAGE}}", language,
		"{{TIMESTAMP_COLUMN}}", tsCol,
		"{{COLUMNS}}", strings.Join(columns, "\n"),
		"{{DF_HEAD}}", p.Head,
	)
	return strings.TrimSpace(r.Replace(analystPrefix + dataframeSuffix))
}
