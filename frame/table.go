// Package frame holds the tabular form of a pandas DataFrame result as it
// travels from the Python executor to the chat transcript.
package frame

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Table is a rendered DataFrame: column labels, index labels and cell text.
type Table struct {
	Columns   []string   `json:"columns"`
	Index     []string   `json:"index"`
	Rows      [][]string `json:"rows"`
	TotalRows int        `json:"total_rows"`
}

// Truncated reports whether the executor sent fewer rows than the DataFrame has.
func (t *Table) Truncated() bool {
	return t.TotalRows > len(t.Rows)
}

// Clone returns a deep copy so stored transcripts never share row slices.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		Columns:   append([]string(nil), t.Columns...),
		Index:     append([]string(nil), t.Index...),
		Rows:      make([][]string, len(t.Rows)),
		TotalRows: t.TotalRows,
	}
	for i, row := range t.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

type splitPayload struct {
	Columns   []json.RawMessage   `json:"columns"`
	Index     []json.RawMessage   `json:"index"`
	Data      [][]json.RawMessage `json:"data"`
	TotalRows *int                `json:"total_rows"`
}

// ParseSplitJSON decodes the output of DataFrame.to_json(orient="split").
// An optional "total_rows" key carries the row count before truncation.
func ParseSplitJSON(raw []byte) (*Table, error) {
	var p splitPayload
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode split dataframe: %w", err)
	}

	t := &Table{
		Columns: make([]string, len(p.Columns)),
		Index:   make([]string, len(p.Index)),
		Rows:    make([][]string, len(p.Data)),
	}
	for i, c := range p.Columns {
		t.Columns[i] = cellText(c)
	}
	for i, idx := range p.Index {
		t.Index[i] = cellText(idx)
	}
	for i, row := range p.Data {
		if len(row) != len(t.Columns) {
			return nil, fmt.Errorf("row %d has %d cells, expected %d", i, len(row), len(t.Columns))
		}
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = cellText(cell)
		}
		t.Rows[i] = cells
	}
	if p.TotalRows != nil {
		t.TotalRows = *p.TotalRows
	} else {
		t.TotalRows = len(t.Rows)
	}
	return t, nil
}

func cellText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	case '[':
		// MultiIndex labels arrive as arrays
		var parts []json.RawMessage
		if err := json.Unmarshal(trimmed, &parts); err == nil {
			var buf bytes.Buffer
			buf.WriteByte('(')
			for i, part := range parts {
				if i > 0 {
					buf.WriteString(", ")
				}
				buf.WriteString(cellText(part))
			}
			buf.WriteByte(')')
			return buf.String()
		}
	default:
		// Integer literals are kept verbatim; int64 ids exceed float64 precision.
		if !bytes.ContainsAny(trimmed, ".eE") {
			break
		}
		if f, err := strconv.ParseFloat(string(trimmed), 64); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return string(trimmed)
}
