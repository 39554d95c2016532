package suite

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParseFile parses a single suite YAML file. Template paths resolve
// relative to the file's directory and are loaded to bytes here.
func ParseFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided suite file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

type rawSuite struct {
	Name      string                 `yaml:"name"`
	Vars      map[string]interface{} `yaml:"vars"`
	Templates map[string]string      `yaml:"templates"`
	Modules   []rawModule            `yaml:"modules"`
	Entry     string                 `yaml:"entry"`
}

type rawModule struct {
	Name  string      `yaml:"name"`
	Steps []yaml.Node `yaml:"steps"`
	line  int
}

func (m *rawModule) UnmarshalYAML(node *yaml.Node) error {
	type plain rawModule
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*m = rawModule(p)
	m.line = node.Line
	return nil
}

// Parse parses suite YAML content.
func Parse(data []byte, sourcePath string) (*Suite, error) {
	var raw rawSuite
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{
			Path:    sourcePath,
			Message: fmt.Sprintf("invalid suite: %v", err),
		}
	}

	s := &Suite{
		Name:       raw.Name,
		SourcePath: sourcePath,
		Vars:       raw.Vars,
		Templates:  map[string][]byte{},
		Modules:    map[string]*Module{},
		Entry:      raw.Entry,
	}
	if s.Vars == nil {
		s.Vars = map[string]interface{}{}
	}
	if s.Name == "" {
		s.Name = baseName(sourcePath)
	}

	dir := filepath.Dir(sourcePath)
	for name, path := range raw.Templates {
		body, err := os.ReadFile(resolvePath(dir, path)) //#nosec G304 -- path comes from the suite file
		if err != nil {
			return nil, &ParseError{
				Path:    sourcePath,
				Message: fmt.Sprintf("template %s: %v", name, err),
			}
		}
		s.Templates[name] = body
	}

	if len(raw.Modules) == 0 {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    1,
			Message: "suite has no modules",
		}
	}
	for _, rm := range raw.Modules {
		if rm.Name == "" {
			return nil, &ParseError{
				Path:    sourcePath,
				Line:    rm.line,
				Message: "module missing name",
			}
		}
		if _, dup := s.Modules[rm.Name]; dup {
			return nil, &ParseError{
				Path:    sourcePath,
				Line:    rm.line,
				Message: fmt.Sprintf("duplicate module name: %s", rm.Name),
			}
		}
		mod := &Module{Name: rm.Name, Line: rm.line}
		for i := range rm.Steps {
			step, err := parseStep(&rm.Steps[i], sourcePath)
			if err != nil {
				return nil, err
			}
			mod.Steps = append(mod.Steps, step)
		}
		s.Modules[rm.Name] = mod
		s.Order = append(s.Order, rm.Name)
	}

	if s.Entry == "" {
		if _, ok := s.Modules["main"]; ok {
			s.Entry = "main"
		} else {
			s.Entry = s.Order[0]
		}
	}
	return s, nil
}

type rawStep struct {
	Keyword string                 `yaml:"keyword"`
	Params  []interface{}          `yaml:"params"`
	Named   map[string]interface{} `yaml:"named"`
}

func parseStep(node *yaml.Node, sourcePath string) (Step, error) {
	// A bare scalar such as "- Sleep" is a keyword with no parameters.
	if node.Kind == yaml.ScalarNode {
		if node.Value == "" {
			return Step{}, &ParseError{
				Path:    sourcePath,
				Line:    node.Line,
				Message: "empty step",
			}
		}
		return Step{Keyword: node.Value, Line: node.Line}, nil
	}
	if node.Kind != yaml.MappingNode {
		return Step{}, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "step must be a mapping or keyword name",
		}
	}

	var raw rawStep
	if err := node.Decode(&raw); err != nil {
		return Step{}, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: fmt.Sprintf("invalid step: %v", err),
		}
	}
	if raw.Keyword == "" {
		return Step{}, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "step missing keyword",
		}
	}
	if len(raw.Params) > 0 && len(raw.Named) > 0 {
		return Step{}, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "step takes params or named, not both",
		}
	}
	return Step{
		Keyword: raw.Keyword,
		Params:  raw.Params,
		Named:   raw.Named,
		Line:    node.Line,
	}, nil
}

func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func baseName(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}
