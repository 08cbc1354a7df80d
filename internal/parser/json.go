package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// jsonParser reads an array of records. Columns follow first-appearance key order
// across all records; keys absent from a record are missing values.
type jsonParser struct{}

func (jsonParser) Format() string { return "json" }

func (jsonParser) CanParse(filename string) bool { return hasExt(filename, ".json") }

func (jsonParser) Parse(in io.Reader) (*Table, error) {
	dec := json.NewDecoder(in)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Table{Typed: true}, nil
		}
		return nil, fmt.Errorf("read json: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, errors.New("expected a JSON array of records")
	}

	t := &Table{Typed: true}
	index := map[string]int{}
	var records []map[int]any
	for dec.More() {
		rec, err := readRecord(dec, t, index)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}

	t.Rows = make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(t.Columns))
		for j, v := range rec {
			row[j] = v
		}
		t.Rows[i] = row
	}
	return t, nil
}

func readRecord(dec *json.Decoder, t *Table, index map[string]int) (map[int]any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("expected an object")
	}
	rec := map[int]any{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := kt.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		j, ok := index[key]
		if !ok {
			j = len(t.Columns)
			index[key] = j
			t.Columns = append(t.Columns, key)
		}
		if v != nil {
			rec[j] = v
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return rec, nil
}
