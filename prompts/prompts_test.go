package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalystSystem(t *testing.T) {
	got := AnalystSystem(AnalystParams{
		AnswerLanguage:  "English",
		TimestampColumn: "ts",
		Columns:         []string{"temp", "humidity"},
		Head:            "   temp  humidity\n0  21.5  40",
	})

	assert.Contains(t, got, "You are a professional data analyst and expert in Pandas.")
	assert.Contains(t, got, "The language of final answer should be written in English.")
	assert.Contains(t, got, "already has 'ts' as its index")
	assert.Contains(t, got, "- temp\n- humidity")
	assert.Contains(t, got, "This is the result of `print(df.head())`:\n   temp  humidity\n0  21.5  40")
	assert.NotContains(t, got, "{{")
}

func TestAnalystSystemDefaults(t *testing.T) {
	got := AnalystSystem(AnalystParams{})
	assert.Contains(t, got, "written in Korean.")
	assert.Contains(t, got, "already has 'timestamp' as its index")
}
