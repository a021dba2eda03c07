package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/paperproof/internal/model"
	"gopkg.in/yaml.v3"
)

// ParseFrameworkGuide reads a hierarchical markdown guide into facts.
//
// Grammar, one line at a time:
//
//	"## Title"          resets the path stack to [Title]
//	"- key: value"      pops entries indented >= this bullet, emits
//	                    stack+key -> value when value is non-empty, then
//	                    pushes key at this indent
//	"- text"            pops the same way and emits stack -> text
//	blank, "---", other ignored
func ParseFrameworkGuide(content string) []model.Fact {
	type entry struct {
		indent int
		key    string
	}

	facts := []model.Fact{}
	var stack []entry

	path := func(extra ...string) []string {
		out := make([]string, 0, len(stack)+len(extra))
		for _, e := range stack {
			out = append(out, e.key)
		}
		return append(out, extra...)
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == "---" {
			continue
		}

		if strings.HasPrefix(trimmed, "## ") {
			stack = []entry{{indent: -1, key: strings.Trim(trimmed, "# ")}}
			continue
		}

		if !strings.HasPrefix(trimmed, "- ") {
			continue
		}

		indent := len(line) - len(strings.TrimLeft(line, " "))
		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}

		key, value, keyed := strings.Cut(trimmed, ":")
		if keyed {
			key = strings.TrimSpace(strings.TrimLeft(key, "- "))
			value = strings.Trim(strings.TrimSpace(value), "'")
			if value != "" {
				facts = append(facts, model.Fact{Path: path(key), Sentence: value, Source: model.SourceFramework})
			}
			stack = append(stack, entry{indent: indent, key: key})
			continue
		}

		sentence := strings.Trim(strings.TrimSpace(strings.TrimLeft(trimmed, "- ")), "'")
		facts = append(facts, model.Fact{Path: path(), Sentence: sentence, Source: model.SourceFramework})
	}
	return facts
}

// ParseConfigGuide flattens a YAML guide into facts, one per string leaf.
// Mapping order is preserved; list items are addressed as "[i]". Numbers,
// booleans and nulls are skipped since they are not sentences.
func ParseConfigGuide(content string) ([]model.Fact, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("parse config guide: %w", err)
	}

	facts := []model.Fact{}
	if len(doc.Content) == 0 {
		return facts, nil
	}

	var walk func(n *yaml.Node, path []string)
	walk = func(n *yaml.Node, path []string) {
		switch n.Kind {
		case yaml.DocumentNode:
			for _, c := range n.Content {
				walk(c, path)
			}
		case yaml.AliasNode:
			if n.Alias != nil {
				walk(n.Alias, path)
			}
		case yaml.MappingNode:
			for i := 0; i+1 < len(n.Content); i += 2 {
				walk(n.Content[i+1], appendPath(path, n.Content[i].Value))
			}
		case yaml.SequenceNode:
			for i, c := range n.Content {
				walk(c, appendPath(path, strconv.Itoa(i)))
			}
		case yaml.ScalarNode:
			if n.ShortTag() == "!!str" && len(path) > 0 {
				facts = append(facts, model.Fact{Path: path, Sentence: n.Value, Source: model.SourceConfig})
			}
		}
	}
	walk(&doc, nil)
	return facts, nil
}

func appendPath(path []string, label string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, label)
}
