// Package suite handles parsing and validation of keyword suite files.
//
// A suite file is a YAML document carrying initial variables, image
// templates, named modules of keyword steps and an entry module name.
package suite

// Suite is one parsed suite file.
type Suite struct {
	Name       string
	SourcePath string
	Vars       map[string]interface{}
	Templates  map[string][]byte
	Modules    map[string]*Module
	Order      []string
	Entry      string
}

// Module is a named ordered sequence of keyword steps.
type Module struct {
	Name  string
	Steps []Step
	Line  int
}

// Step is one keyword invocation. Params and Named are mutually
// exclusive; values stay raw until dispatch so fallback groups and
// locator sets keep their list shape.
type Step struct {
	Keyword string
	Params  []interface{}
	Named   map[string]interface{}
	Line    int
}

// Module returns the named module, or nil.
func (s *Suite) Module(name string) *Module {
	if s == nil {
		return nil
	}
	return s.Modules[name]
}

// EntryModule returns the module execution starts from.
func (s *Suite) EntryModule() *Module {
	return s.Module(s.Entry)
}
