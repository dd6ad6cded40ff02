package format

import (
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

var numberedItem = regexp.MustCompile(`^\d+\.\s`)

// MarkdownToHTML renders assistant or user text as HTML.
func MarkdownToHTML(text string) string {
	text = normalizeMarkdownLists(PreprocessAssistantText(text))

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock)
	flags := html.CommonFlags | html.HrefTargetBlank | html.SkipHTML |
		html.Safelink | html.NofollowLinks | html.NoreferrerLinks
	r := html.NewRenderer(html.RendererOptions{Flags: flags})
	return string(markdown.ToHTML([]byte(text), p, r))
}

// PreprocessAssistantText normalizes LLM output.
// Performs basic text cleanup for better readability.
func PreprocessAssistantText(text string) string {
	if text == "" {
		return text
	}

	// Replace curly quotes (helps readability)
	return strings.NewReplacer(
		"“", "\"",
		"”", "\"",
		"‘", "'",
		"’", "'",
	).Replace(text)
}

// normalizeMarkdownLists ensures list items have proper spacing for markdown parsing.
// Markdown requires a blank line before lists, but LLMs often forget this.
func normalizeMarkdownLists(text string) string {
	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))

	for i, line := range lines {
		if isListItem(line) && i > 0 {
			prev := strings.TrimSpace(lines[i-1])
			if prev != "" && !isListItem(prev) {
				result = append(result, "")
			}
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

func isListItem(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "- ") ||
		strings.HasPrefix(trimmed, "* ") ||
		strings.HasPrefix(trimmed, "+ ") ||
		numberedItem.MatchString(trimmed)
}
