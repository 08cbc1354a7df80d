package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Demographics renders a plain-text overview of the profile for terminals and logs.
func (p *DatasetProfile) Demographics() string {
	var b strings.Builder
	b.WriteString("Dataset Overview:\n")
	b.WriteString(fmt.Sprintf("- Total Rows: %d\n", p.TotalRows))
	b.WriteString(fmt.Sprintf("- Total Columns: %d\n", p.TotalColumns))
	if p.FileType != "" {
		b.WriteString(fmt.Sprintf("- File Type: %s\n", strings.ToUpper(p.FileType)))
	}
	b.WriteString("\nColumn Details:\n")
	for _, c := range p.Columns {
		b.WriteString(fmt.Sprintf("\n%s:\n", c.Name))
		b.WriteString(fmt.Sprintf("  - Type: %s\n", c.DType))
		b.WriteString(fmt.Sprintf("  - Non-null: %d\n", c.NonNull))
		b.WriteString(fmt.Sprintf("  - Null: %d\n", c.Null))
		b.WriteString(fmt.Sprintf("  - Unique values: %d\n", c.Unique))
		if c.Min != nil {
			b.WriteString(fmt.Sprintf("  - Min: %s\n", formatNumber(*c.Min, c.DType)))
			b.WriteString(fmt.Sprintf("  - Max: %s\n", formatNumber(*c.Max, c.DType)))
			b.WriteString(fmt.Sprintf("  - Mean: %.2f\n", *c.Mean))
		}
	}
	return b.String()
}

// promptColumn is the compact per-column shape embedded in generation prompts.
type promptColumn struct {
	Name    string   `json:"name"`
	DType   string   `json:"dtype"`
	NonNull int      `json:"non_null"`
	Null    int      `json:"null"`
	Unique  int      `json:"unique"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Mean    *float64 `json:"mean,omitempty"`
}

// PromptColumns renders column statistics as indented JSON for model prompts.
func (p *DatasetProfile) PromptColumns() (string, error) {
	cols := make([]promptColumn, len(p.Columns))
	for i, c := range p.Columns {
		cols[i] = promptColumn{
			Name: c.Name, DType: c.DType, NonNull: c.NonNull, Null: c.Null, Unique: c.Unique,
			Min: c.Min, Max: c.Max, Mean: c.Mean,
		}
	}
	b, err := json.MarshalIndent(cols, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal columns: %w", err)
	}
	return string(b), nil
}

// PromptSampleRows renders at most n leading sample rows as indented JSON.
func (p *DatasetProfile) PromptSampleRows(n int) (string, error) {
	rows := p.SampleRows
	if n >= 0 && n < len(rows) {
		rows = rows[:n]
	}
	if rows == nil {
		rows = []Row{}
	}
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sample rows: %w", err)
	}
	return string(b), nil
}

func formatNumber(x float64, dtype string) string {
	if dtype == TypeInt64 {
		return strconv.FormatInt(int64(x), 10)
	}
	return strconv.FormatFloat(x, 'g', -1, 64)
}
