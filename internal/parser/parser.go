package parser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Table is a dataset read fully into memory. Rows hold one cell per column;
// a nil cell is a missing value.
type Table struct {
	Columns []string
	Rows    [][]any
	// Typed reports whether cells carry their own types (JSON) or are raw text (CSV).
	Typed bool
}

// Parser defines a tabular format reader.
type Parser interface {
	// Format is the short name reported to callers, e.g. "csv".
	Format() string
	CanParse(filename string) bool
	Parse(r io.Reader) (*Table, error)
}

var registry []Parser

// Register adds a parser implementation to the registry.
func Register(p Parser) {
	registry = append(registry, p)
}

// Lookup returns the parser registered for the file's extension.
func Lookup(path string) (Parser, error) {
	for _, p := range registry {
		if p.CanParse(path) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
}

// ParseFile selects a parser based on filename and reads the whole table.
func ParseFile(path string) (*Table, string, error) {
	p, err := Lookup(path)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", p.Format(), err)
	}
	defer f.Close()
	t, err := p.Parse(f)
	if err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", p.Format(), err)
	}
	return t, p.Format(), nil
}

func hasExt(filename string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func init() {
	Register(csvParser{})
	Register(jsonParser{})
}

// ErrUnsupported indicates a format is not supported.
var ErrUnsupported = errors.New("unsupported file format")
