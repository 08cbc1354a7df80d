package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type csvParser struct{}

func (csvParser) Format() string { return "csv" }

func (csvParser) CanParse(filename string) bool { return hasExt(filename, ".csv") }

// naTokens mirrors the strings pandas treats as missing by default.
var naTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// IsNA reports whether a raw CSV cell denotes a missing value.
func IsNA(s string) bool {
	_, ok := naTokens[s]
	return ok
}

func (csvParser) Parse(in io.Reader) (*Table, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Table{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	t := &Table{Columns: uniqueColumns(header)}
	ncol := len(t.Columns)
	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line++
		if len(rec) > ncol {
			return nil, fmt.Errorf("line %d: expected %d fields, saw %d", line, ncol, len(rec))
		}
		row := make([]any, ncol)
		for i, v := range rec {
			if IsNA(v) {
				continue
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// uniqueColumns names blank headers "Unnamed: i" and suffixes repeats with ".n".
func uniqueColumns(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if _, dup := seen[name]; dup {
			base, k := name, seen[name]
			for {
				k++
				cand := base + "." + strconv.Itoa(k)
				if _, taken := seen[cand]; !taken {
					seen[base] = k
					name = cand
					break
				}
			}
		}
		seen[name] = 0
		out[i] = name
	}
	return out
}
