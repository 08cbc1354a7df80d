package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/KaramelBytes/statm8/internal/parser"
)

// Declared column types, named the way pandas reports dtypes.
const (
	TypeInt64   = "int64"
	TypeFloat64 = "float64"
	TypeBool    = "bool"
	TypeObject  = "object"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor JSON records.
var ErrUnsupportedFormat = parser.ErrUnsupported

// Options controls profiling behavior.
type Options struct {
	// SampleRows is how many leading rows are kept in the profile.
	SampleRows int
	// SampleValues is how many distinct non-null values are kept per column.
	SampleValues int
}

// DefaultOptions returns reasonable defaults for dataset profiling.
func DefaultOptions() Options {
	return Options{SampleRows: 5, SampleValues: 5}
}

// DatasetProfile is an immutable structural summary of a dataset.
type DatasetProfile struct {
	FileType     string       `json:"file_type"`
	TotalRows    int          `json:"total_rows"`
	TotalColumns int          `json:"total_columns"`
	Columns      []ColumnStat `json:"columns_info"`
	SampleRows   []Row        `json:"sample_rows"`
}

// ColumnStat captures the declared type and statistics of one column.
// Min, Max and Mean are set only for numeric columns with at least one value.
type ColumnStat struct {
	Name         string   `json:"name"`
	DType        string   `json:"dtype"`
	NonNull      int      `json:"non_null_count"`
	Null         int      `json:"null_count"`
	Unique       int      `json:"unique_count"`
	SampleValues []any    `json:"sample_values"`
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	Mean         *float64 `json:"mean,omitempty"`
}

// Numeric reports whether the column holds integer or floating point values.
func (c ColumnStat) Numeric() bool {
	return c.DType == TypeInt64 || c.DType == TypeFloat64
}

// ProfileFile reads the dataset at path fully into memory and profiles it.
func ProfileFile(path string, opt Options) (*DatasetProfile, error) {
	t, format, err := parser.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return ProfileTable(t, format, opt), nil
}

// ProfileTable profiles an already parsed table. Empty tables yield zero counts.
func ProfileTable(t *parser.Table, format string, opt Options) *DatasetProfile {
	if opt.SampleRows < 0 {
		opt.SampleRows = 0
	}
	if opt.SampleValues <= 0 {
		opt.SampleValues = 5
	}
	p := &DatasetProfile{
		FileType:     format,
		TotalRows:    len(t.Rows),
		TotalColumns: len(t.Columns),
		Columns:      make([]ColumnStat, len(t.Columns)),
		SampleRows:   []Row{},
	}

	// Convert every column to its declared type in place.
	values := make([][]any, len(t.Columns))
	for j, name := range t.Columns {
		cells := make([]any, len(t.Rows))
		for i, row := range t.Rows {
			if j < len(row) {
				cells[i] = row[j]
			}
		}
		dtype := inferType(cells, t.Typed)
		for i, c := range cells {
			cells[i] = convert(c, dtype)
		}
		values[j] = cells
		p.Columns[j] = summarize(name, dtype, cells, opt.SampleValues)
	}

	n := min(opt.SampleRows, len(t.Rows))
	for i := 0; i < n; i++ {
		row := make(Row, len(t.Columns))
		for j, name := range t.Columns {
			row[j] = Field{Name: name, Value: values[j][i]}
		}
		p.SampleRows = append(p.SampleRows, row)
	}
	return p
}

func summarize(name, dtype string, cells []any, maxSamples int) ColumnStat {
	cs := ColumnStat{Name: name, DType: dtype, SampleValues: []any{}}
	seen := map[string]struct{}{}

	// numeric stats via Welford
	var (
		n       int
		mean    float64
		lo, hi  = math.Inf(1), math.Inf(-1)
		numeric = cs.Numeric()
	)
	for _, v := range cells {
		if v == nil {
			cs.Null++
			continue
		}
		cs.NonNull++
		key := distinctKey(v)
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			if len(cs.SampleValues) < maxSamples {
				cs.SampleValues = append(cs.SampleValues, v)
			}
		}
		if !numeric {
			continue
		}
		x := toFloat(v)
		n++
		mean += (x - mean) / float64(n)
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	cs.Unique = len(seen)
	if numeric && n > 0 {
		cs.Min, cs.Max, cs.Mean = &lo, &hi, &mean
	}
	return cs
}

func inferType(cells []any, typed bool) string {
	var nonNull, nulls int
	intOK, floatOK, boolOK := true, true, true
	for _, c := range cells {
		if c == nil {
			nulls++
			continue
		}
		nonNull++
		if typed {
			switch v := c.(type) {
			case json.Number:
				boolOK = false
				if _, err := v.Int64(); err != nil {
					intOK = false
				}
			case bool:
				intOK, floatOK = false, false
			default:
				intOK, floatOK, boolOK = false, false, false
			}
			continue
		}
		s, _ := c.(string)
		if intOK {
			if _, ok := parseInt(s); !ok {
				intOK = false
			}
		}
		if floatOK {
			if _, ok := parseFloat(s); !ok {
				floatOK = false
			}
		}
		if boolOK && !isBoolToken(s) {
			boolOK = false
		}
	}
	switch {
	case nonNull == 0:
		// pandas reads an all-missing CSV column as float64 but a JSON one as object.
		if typed || len(cells) == 0 {
			return TypeObject
		}
		return TypeFloat64
	case intOK && nulls == 0:
		return TypeInt64
	case intOK || floatOK:
		return TypeFloat64
	case boolOK && nulls == 0:
		return TypeBool
	default:
		return TypeObject
	}
}

func convert(c any, dtype string) any {
	if c == nil {
		return nil
	}
	switch v := c.(type) {
	case string:
		switch dtype {
		case TypeInt64:
			n, _ := parseInt(v)
			return n
		case TypeFloat64:
			f, _ := parseFloat(v)
			return f
		case TypeBool:
			return strings.EqualFold(v, "true")
		}
		return v
	case json.Number:
		switch dtype {
		case TypeInt64:
			n, _ := v.Int64()
			return n
		case TypeFloat64:
			f, _ := v.Float64()
			return f
		}
		return v
	}
	return c
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	}
	return math.NaN()
}

func distinctKey(v any) string {
	if f, ok := v.(float64); ok {
		return "n|" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	if n, ok := v.(int64); ok {
		return "n|" + strconv.FormatInt(n, 10)
	}
	return fmt.Sprintf("%T|%v", v, v)
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n, err == nil
}

func parseFloat(s string) (float64, bool) {
	raw := strings.TrimSpace(s)
	if strings.ContainsAny(raw, "xX_") {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func isBoolToken(s string) bool {
	switch s {
	case "True", "False", "TRUE", "FALSE", "true", "false":
		return true
	}
	return false
}
