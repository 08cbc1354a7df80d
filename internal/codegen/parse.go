package codegen

import (
	"strings"
)

// Separator delimits code blocks in a model response.
const Separator = "### BLOCK_SEPARATOR ###"

// DefaultDescription labels a block that does not open with a comment line.
const DefaultDescription = "EDA Analysis Block"

// Block is one parsed unit of analysis code. IDs are 1-based in parse order.
type Block struct {
	ID          int
	Description string
	Code        string
}

// ParseBlocks splits a model response into blocks. Whitespace-only segments are
// dropped, a leading "#" comment line becomes the description, fences are
// stripped, and bodies without any import get the standard preamble.
func ParseBlocks(raw, filePath, outputDir string) []Block {
	var blocks []Block
	for _, seg := range strings.Split(raw, Separator) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		desc := DefaultDescription
		body := seg
		first, rest, _ := strings.Cut(seg, "\n")
		if strings.HasPrefix(strings.TrimSpace(first), "#") {
			if d := strings.TrimSpace(strings.Trim(strings.TrimSpace(first), "# ")); d != "" {
				desc = d
			}
			body = rest
		}
		code := CleanCode(body)
		if !hasImport(code) {
			code = Preamble(filePath, outputDir) + code
		}
		blocks = append(blocks, Block{ID: len(blocks) + 1, Description: desc, Code: code})
	}
	return blocks
}

// CleanCode removes markdown fence lines and surrounding whitespace.
func CleanCode(code string) string {
	lines := strings.Split(code, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if isFence(l) {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// Preamble is prepended to blocks that import nothing.
func Preamble(filePath, outputDir string) string {
	return "import pandas as pd\n" +
		"import matplotlib.pyplot as plt\n" +
		"import seaborn as sns\n" +
		"import numpy as np\n" +
		"import os\n\n" +
		"df = pd.read_csv(" + pyQuote(filePath) + ")\n" +
		"output_dir = " + pyQuote(outputDir) + "\n\n"
}

// isFence matches ``` optionally followed by a language tag, alone on its line.
func isFence(line string) bool {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, "```") {
		return false
	}
	for _, r := range s[3:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '+' || r == '-') {
			return false
		}
	}
	return true
}

func hasImport(code string) bool {
	for _, l := range strings.Split(code, "\n") {
		s := strings.TrimSpace(l)
		if strings.HasPrefix(s, "import ") {
			return true
		}
		if strings.HasPrefix(s, "from ") && strings.Contains(s, " import ") {
			return true
		}
	}
	return false
}

// pyQuote renders s as a single-quoted Python string literal.
func pyQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)
	return "'" + r.Replace(s) + "'"
}
