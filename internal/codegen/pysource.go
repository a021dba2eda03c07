package codegen

import (
	"regexp"
	"strings"
	"unicode"
)

// Kind classifies a top-level block of a Python module
type Kind string

const (
	KindImport   Kind = "import"
	KindClass    Kind = "class"
	KindFunction Kind = "function"
	KindMain     Kind = "main" // the if __name__ == "__main__" guard
	KindOther    Kind = "other"

	kindDecorator Kind = "decorator" // until the decorated def is seen
)

// MainGuardName names the __main__ guard block
const MainGuardName = "__main__"

// Definition is one top-level block of Python source
type Definition struct {
	Kind Kind
	Name string
	Code string
}

var (
	pyClassRe  = regexp.MustCompile(`^class\s+([A-Za-z_]\w*)`)
	pyFuncRe   = regexp.MustCompile(`^(?:async\s+)?def\s+([A-Za-z_]\w*)`)
	pyMainRe   = regexp.MustCompile(`^if\s+__name__\s*==\s*["']__main__["']\s*:`)
	pyImportRe = regexp.MustCompile(`^(?:import|from)\s+\S`)
)

// ParsePython splits src into its top-level blocks in order. A block starts
// at an unindented statement outside brackets and triple-quoted strings.
// Decorators stay with the definition below them; blank lines and unindented
// comments belong to the block above.
func ParsePython(src string) []Definition {
	var (
		defs    []Definition
		lines   []string
		cur     Definition
		started bool
		depth   int
		triple  string
	)

	flush := func() {
		if !started {
			return
		}
		cur.Code = strings.TrimRightFunc(strings.Join(lines, "\n"), unicode.IsSpace)
		if strings.TrimSpace(cur.Code) != "" {
			if cur.Kind == kindDecorator {
				cur.Kind = KindOther
			}
			defs = append(defs, cur)
		}
		lines = nil
		started = false
	}

	for _, line := range strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		continuation := depth > 0 || triple != "" || trimmed == "" ||
			strings.HasPrefix(trimmed, "#") || line[0] == ' ' || line[0] == '\t'

		switch {
		case continuation && started:
		case continuation:
			cur, started = Definition{Kind: KindOther}, true
		case started && cur.Kind == kindDecorator && !strings.HasPrefix(trimmed, "@"):
			cur.Kind, cur.Name = classify(trimmed)
		case started && cur.Kind == kindDecorator:
		default:
			flush()
			cur, started = Definition{}, true
			if strings.HasPrefix(trimmed, "@") {
				cur.Kind = kindDecorator
			} else {
				cur.Kind, cur.Name = classify(trimmed)
			}
		}

		lines = append(lines, line)
		depth, triple = scanLine(line, depth, triple)
	}
	flush()
	return defs
}

func classify(line string) (Kind, string) {
	switch {
	case pyImportRe.MatchString(line):
		return KindImport, ""
	case pyMainRe.MatchString(line):
		return KindMain, MainGuardName
	}
	if m := pyClassRe.FindStringSubmatch(line); m != nil {
		return KindClass, m[1]
	}
	if m := pyFuncRe.FindStringSubmatch(line); m != nil {
		return KindFunction, m[1]
	}
	return KindOther, ""
}

// scanLine tracks bracket depth and an open triple-quoted string across a
// line. Single-line strings and comments are skipped.
func scanLine(line string, depth int, triple string) (int, string) {
	for i := 0; i < len(line); i++ {
		if triple != "" {
			if strings.HasPrefix(line[i:], triple) {
				i += len(triple) - 1
				triple = ""
			}
			continue
		}
		switch c := line[i]; c {
		case '#':
			return depth, triple
		case '"', '\'':
			q := string([]byte{c, c, c})
			if strings.HasPrefix(line[i:], q) {
				triple = q
				i += 2
				continue
			}
			for i++; i < len(line) && line[i] != c; i++ {
				if line[i] == '\\' {
					i++
				}
			}
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return depth, triple
}

// RenderPython joins blocks back into a module, keeping consecutive imports
// together and two blank lines around everything else
func RenderPython(defs []Definition) string {
	var b strings.Builder
	for i, d := range defs {
		if i > 0 {
			if d.Kind == KindImport && defs[i-1].Kind == KindImport {
				b.WriteString("\n")
			} else {
				b.WriteString("\n\n\n")
			}
		}
		b.WriteString(d.Code)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	return b.String()
}

// Find returns the index of the first block with kind and name, or -1
func Find(defs []Definition, kind Kind, name string) int {
	for i, d := range defs {
		if d.Kind == kind && d.Name == name {
			return i
		}
	}
	return -1
}

// Imports returns the import statements of defs
func Imports(defs []Definition) []string {
	var out []string
	for _, d := range defs {
		if d.Kind == KindImport {
			out = append(out, d.Code)
		}
	}
	return out
}

// Merge folds updated blocks into defs. A class, function or main guard
// replaces the block with the same kind and name; one with no counterpart is
// inserted before defs[anchor]. New imports join the import section. Other
// blocks are dropped. The second result counts replaced blocks.
func Merge(defs []Definition, updates []Definition, anchor int) ([]Definition, int) {
	out := append([]Definition(nil), defs...)
	if anchor < 0 || anchor > len(out) {
		anchor = len(out)
	}

	replaced := 0
	for _, u := range updates {
		switch u.Kind {
		case KindImport:
			if hasImport(out, u.Code) {
				continue
			}
			at := lastImport(out) + 1
			out = insert(out, at, u)
			if at <= anchor {
				anchor++
			}
		case KindClass, KindFunction, KindMain:
			if i := Find(out, u.Kind, u.Name); i >= 0 {
				out[i] = u
				replaced++
				continue
			}
			out = insert(out, anchor, u)
			anchor++
		}
	}
	return out, replaced
}

func hasImport(defs []Definition, code string) bool {
	code = strings.TrimSpace(code)
	for _, d := range defs {
		if d.Kind == KindImport && strings.TrimSpace(d.Code) == code {
			return true
		}
	}
	return false
}

func lastImport(defs []Definition) int {
	last := -1
	for i, d := range defs {
		if d.Kind == KindImport {
			last = i
		}
	}
	return last
}

func insert(defs []Definition, at int, d Definition) []Definition {
	defs = append(defs, Definition{})
	copy(defs[at+1:], defs[at:])
	defs[at] = d
	return defs
}
