package model

// CodeProject maps file names to full file text, remembering insertion order
type CodeProject struct {
	names []string
	files map[string]string
}

// NewCodeProject creates an empty project
func NewCodeProject() *CodeProject {
	return &CodeProject{files: make(map[string]string)}
}

// Set stores a file, appending its name if it is new
func (p *CodeProject) Set(name, content string) {
	if _, ok := p.files[name]; !ok {
		p.names = append(p.names, name)
	}
	p.files[name] = content
}

// Get returns a file's content
func (p *CodeProject) Get(name string) (string, bool) {
	content, ok := p.files[name]
	return content, ok
}

// Has reports whether the project contains name
func (p *CodeProject) Has(name string) bool {
	_, ok := p.files[name]
	return ok
}

// Names returns file names in insertion order
func (p *CodeProject) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Len returns the number of files
func (p *CodeProject) Len() int {
	return len(p.names)
}

// Clone returns an independent copy
func (p *CodeProject) Clone() *CodeProject {
	c := NewCodeProject()
	for _, name := range p.names {
		c.Set(name, p.files[name])
	}
	return c
}

// Equal reports whether both projects hold the same files with the same content
func (p *CodeProject) Equal(other *CodeProject) bool {
	if other == nil || len(p.files) != len(other.files) {
		return false
	}
	for name, content := range p.files {
		if oc, ok := other.files[name]; !ok || oc != content {
			return false
		}
	}
	return true
}

// FilePlan is the revision instruction block for a single file
type FilePlan struct {
	Name         string
	Instructions string // Empty when no segment could be isolated
}

// RevisionPlan is a planner response split into its addressable parts
type RevisionPlan struct {
	Raw    string
	Config string     // Empty when no configuration change is needed
	Code   string     // Whole CODE_PLAN section
	Files  []FilePlan // Per-file segments in plan order
}
