package filter

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed denylist.yaml
var defaultDenylist []byte

// Denylist is a set of criterion texts that are always removed
type Denylist struct {
	entries map[string]struct{}
}

type denylistFile struct {
	Denylist []string `yaml:"denylist"`
}

// DefaultDenylist returns the built-in list
func DefaultDenylist() Denylist {
	d, err := ParseDenylist(defaultDenylist)
	if err != nil {
		panic(fmt.Sprintf("embedded denylist is invalid: %v", err))
	}
	return d
}

// LoadDenylist reads a denylist file. An empty path returns the built-in list.
func LoadDenylist(path string) (Denylist, error) {
	if path == "" {
		return DefaultDenylist(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Denylist{}, fmt.Errorf("read denylist: %w", err)
	}
	return ParseDenylist(data)
}

// ParseDenylist decodes a YAML document with a top-level "denylist" list
func ParseDenylist(data []byte) (Denylist, error) {
	var f denylistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Denylist{}, fmt.Errorf("parse denylist: %w", err)
	}
	return NewDenylist(f.Denylist...), nil
}

// NewDenylist builds a denylist from exact criterion texts
func NewDenylist(texts ...string) Denylist {
	d := Denylist{entries: make(map[string]struct{}, len(texts))}
	for _, t := range texts {
		d.entries[t] = struct{}{}
	}
	return d
}

// Contains reports whether text is banned
func (d Denylist) Contains(text string) bool {
	_, ok := d.entries[text]
	return ok
}

// Len returns the number of entries
func (d Denylist) Len() int {
	return len(d.entries)
}
