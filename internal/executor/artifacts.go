package executor

import (
	"fmt"
	"os"
	"sort"
)

// snapshot lists the entry names currently in dir.
func snapshot(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list output directory: %w", err)
	}
	out := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		out[e.Name()] = struct{}{}
	}
	return out, nil
}

// newEntries returns names present in after but not in before, sorted.
// Overwritten files are not reported.
func newEntries(before, after map[string]struct{}) []string {
	out := []string{}
	for name := range after {
		if _, ok := before[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
