package ai

import (
	"strings"
	"testing"
)

func TestPromptTemplateRender(t *testing.T) {
	p := PromptTemplate{
		System: "You write {lang}.",
		User:   "File: {file_path}\nCode:\n{code}\nAgain: {file_path}",
	}
	msgs, err := p.Render(map[string]string{
		"lang":      "Python",
		"file_path": "uploads/a.csv",
		"code":      "d = {file_path}",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msgs[0].Role != "system" || msgs[0].Content != "You write Python." {
		t.Fatalf("system = %+v", msgs[0])
	}
	want := "File: uploads/a.csv\nCode:\nd = {file_path}\nAgain: uploads/a.csv"
	if msgs[1].Content != want {
		t.Fatalf("user = %q\nwant %q", msgs[1].Content, want)
	}
}

func TestPromptTemplateMissingSlots(t *testing.T) {
	p := PromptTemplate{User: "{b} {a} {b}"}
	_, err := p.Render(map[string]string{})
	if err == nil || !strings.Contains(err.Error(), "a, b") {
		t.Fatalf("expected missing slots error, got %v", err)
	}
}
