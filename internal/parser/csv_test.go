package parser_test

import (
	"testing"

	"github.com/KaramelBytes/statm8/internal/parser"
)

func TestParseFileCSV(t *testing.T) {
	p := writeFile(t, "hop_harvest.csv", "\ufeffdate,plot,alpha_acids,moisture\n"+
		"2024-08-10,A1,12.5,74\n"+
		"2024-08-12,NA,,71\n"+
		"2024-08-15,B3,10.2\n")
	tbl, format, err := parser.ParseFile(p)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if format != "csv" || tbl.Typed {
		t.Fatalf("unexpected format %q typed=%v", format, tbl.Typed)
	}
	if tbl.Columns[0] != "date" {
		t.Fatalf("BOM not stripped: %q", tbl.Columns[0])
	}
	if len(tbl.Rows) != 3 {
		t.Fatalf("rows = %d", len(tbl.Rows))
	}
	if tbl.Rows[1][1] != nil || tbl.Rows[1][2] != nil {
		t.Fatalf("expected NA tokens to be nil, got %v", tbl.Rows[1])
	}
	if tbl.Rows[2][3] != nil {
		t.Fatalf("expected short row to be padded with nil, got %v", tbl.Rows[2])
	}
	if tbl.Rows[0][2] != "12.5" {
		t.Fatalf("expected raw text cell, got %#v", tbl.Rows[0][2])
	}
}

func TestParseFileCSVHeaderNames(t *testing.T) {
	p := writeFile(t, "dups.csv", "a,a,,a.1,a\n1,2,3,4,5\n")
	tbl, _, err := parser.ParseFile(p)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"a", "a.1", "Unnamed: 2", "a.1.1", "a.2"}
	for i, w := range want {
		if tbl.Columns[i] != w {
			t.Fatalf("columns = %v, want %v", tbl.Columns, want)
		}
	}
}

func TestParseFileCSVTooManyFields(t *testing.T) {
	p := writeFile(t, "bad.csv", "a,b\n1,2,3\n")
	if _, _, err := parser.ParseFile(p); err == nil {
		t.Fatalf("expected error for row wider than header")
	}
}

func TestParseFileCSVEmpty(t *testing.T) {
	p := writeFile(t, "empty.csv", "")
	tbl, _, err := parser.ParseFile(p)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tbl.Columns) != 0 || len(tbl.Rows) != 0 {
		t.Fatalf("expected empty table")
	}
}
