package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNoJSON is returned when a response holds no decodable JSON payload
	ErrNoJSON = errors.New("no JSON found in response")

	// ErrNoYAML is returned when a response holds no decodable YAML document
	ErrNoYAML = errors.New("no YAML found in response")
)

var (
	fencedJSONRe     = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")
	fencedYAMLRe     = regexp.MustCompile("(?s)```(?:yaml|yml)?\\s*\\n(.*?)```")
	fencedMarkdownRe = regexp.MustCompile("(?s)```markdown\\n(.*)```")
	fencedPythonRe   = regexp.MustCompile("(?s)```(?:python|py)[ \\t]*\\n(.*?)```")
	trailingCommaRe  = regexp.MustCompile(`,\s*([\]}])`)
	tabIndentRe      = regexp.MustCompile(`(?m)^\t+`)
)

// DecodeJSONList extracts a JSON array from a model response. The payload may
// be fenced, embedded in prose, or wrapped in an object whose first array
// value is the list.
func DecodeJSONList(text string) ([]json.RawMessage, error) {
	for _, candidate := range jsonCandidates(text, '[', ']') {
		var list []json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &list); err == nil {
			return list, nil
		}
	}

	obj, err := ExtractJSONObject(text)
	if err == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			var list []json.RawMessage
			if json.Unmarshal(obj[k], &list) == nil {
				return list, nil
			}
		}
	}
	return nil, ErrNoJSON
}

// ExtractJSONObject extracts the first JSON object from a model response
func ExtractJSONObject(text string) (map[string]json.RawMessage, error) {
	for _, candidate := range jsonCandidates(text, '{', '}') {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
			return obj, nil
		}
	}
	return nil, ErrNoJSON
}

// DecodeJSONObject decodes the first JSON object in text into v
func DecodeJSONObject(text string, v any) error {
	for _, candidate := range jsonCandidates(text, '{', '}') {
		if err := json.Unmarshal([]byte(candidate), v); err == nil {
			return nil
		}
	}
	return ErrNoJSON
}

// jsonCandidates lists substrings worth trying, most specific first
func jsonCandidates(text string, open, close byte) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		out = append(out, s)
		if fixed := trailingCommaRe.ReplaceAllString(s, "$1"); fixed != s {
			out = append(out, fixed)
		}
	}

	for _, m := range fencedJSONRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	add(text)
	if start := strings.IndexByte(text, open); start >= 0 {
		if end := strings.LastIndexByte(text, close); end > start {
			add(text[start : end+1])
		}
	}
	return out
}

// ParseIndexList parses a comma separated list of integers such as "0, 3, 5".
// Tokens that are not plain digits are dropped.
func ParseIndexList(text string) []int {
	text = strings.Trim(strings.TrimSpace(text), "[]")
	var out []int
	for _, tok := range strings.Split(text, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" || strings.TrimLeft(tok, "0123456789") != "" {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// IntList converts raw JSON elements to ints, skipping anything non-integer
func IntList(raw []json.RawMessage) []int {
	out := make([]int, 0, len(raw))
	for _, r := range raw {
		var n int
		if err := json.Unmarshal(r, &n); err == nil {
			out = append(out, n)
			continue
		}
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				out = append(out, n)
			}
		}
	}
	return out
}

// ExtractYAML pulls a YAML document out of a model response and checks that it
// parses. Common generation defects (tab indentation, stray fences) are
// repaired before giving up.
func ExtractYAML(text string) (*yaml.Node, string, error) {
	body := text
	if m := fencedYAMLRe.FindStringSubmatch(text); m != nil {
		body = m[1]
	}
	body = strings.TrimSpace(StripCodeFence(body))
	if body == "" {
		return nil, "", ErrNoYAML
	}

	attempts := []string{body}
	fixed := trailingCommaRe.ReplaceAllString(body, "$1")
	attempts = append(attempts, fixed, escapeStrayBackslashes(fixed))
	attempts = append(attempts, tabIndentRe.ReplaceAllStringFunc(attempts[len(attempts)-1], func(s string) string {
		return strings.Repeat("  ", len(s))
	}))

	var lastErr error
	for _, candidate := range attempts {
		var node yaml.Node
		if err := yaml.Unmarshal([]byte(candidate), &node); err != nil {
			lastErr = err
			continue
		}
		if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
			lastErr = fmt.Errorf("document is not a mapping")
			continue
		}
		return &node, candidate, nil
	}
	return nil, "", fmt.Errorf("%w: %v", ErrNoYAML, lastErr)
}

// escapeStrayBackslashes doubles backslashes that do not start a valid escape,
// as in LaTeX fragments like \alpha inside double-quoted scalars
func escapeStrayBackslashes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			if i+1 < len(s) && strings.IndexByte(`"\\/bfnrt`, s[i+1]) >= 0 {
				b.WriteByte(s[i])
				i++
				b.WriteByte(s[i])
				continue
			}
			b.WriteString(`\\`)
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// ExtractMarkdown returns the contents of a ```markdown fence, or the whole
// text when there is none
func ExtractMarkdown(text string) string {
	if m := fencedMarkdownRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// ExtractPython returns the first ```python block of a response, or the
// response with any outer fence removed when there is none
func ExtractPython(text string) string {
	if m := fencedPythonRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(StripCodeFence(text))
}

// StripCodeFence drops the first and last lines when both are code fences
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	lines := strings.Split(trimmed, "\n")
	if len(lines) >= 2 &&
		strings.HasPrefix(strings.TrimSpace(lines[0]), "```") &&
		strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		return strings.Join(lines[1:len(lines)-1], "\n")
	}
	return text
}
