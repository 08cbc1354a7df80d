package ai

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var slotRe = regexp.MustCompile(`\{([a-z_][a-z0-9_]*)\}`)

// PromptTemplate is a system + user message pair with {name} slots.
type PromptTemplate struct {
	System string
	User   string
}

// Render substitutes every slot in a single pass, so values may contain braces.
// A slot without a value is an error.
func (p PromptTemplate) Render(vars map[string]string) ([]Message, error) {
	missing := map[string]struct{}{}
	fill := func(tmpl string) string {
		return slotRe.ReplaceAllStringFunc(tmpl, func(m string) string {
			name := m[1 : len(m)-1]
			v, ok := vars[name]
			if !ok {
				missing[name] = struct{}{}
				return m
			}
			return v
		})
	}
	msgs := []Message{
		{Role: "system", Content: fill(p.System)},
		{Role: "user", Content: fill(p.User)},
	}
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("prompt: missing values for %s", strings.Join(names, ", "))
	}
	return msgs, nil
}
