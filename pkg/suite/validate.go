package suite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/keyflow/pkg/eval"
	"github.com/devicelab-dev/keyflow/pkg/keyword"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Line    int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// Suites holds the parsed suites in discovery order.
	Suites []*Suite
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator checks suite files against the keyword registry before
// execution: unknown keywords, missing or unknown parameters, unknown
// module and template references, and static module cycles.
type Validator struct {
	registry *keyword.Registry
}

// NewValidator creates a new Validator.
func NewValidator(registry *keyword.Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate validates a suite file or a directory of suite files.
func (v *Validator) Validate(path string) *Result {
	result := &Result{}

	info, err := os.Stat(path)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    path,
			Message: fmt.Sprintf("cannot access: %v", err),
		})
		return result
	}

	files := []string{path}
	if info.IsDir() {
		files, err = collectSuiteFiles(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("failed to scan directory: %v", err),
			})
			return result
		}
	}

	for _, file := range files {
		s, err := ParseFile(file)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Suites = append(result.Suites, s)
		result.Errors = append(result.Errors, v.ValidateSuite(s)...)
	}
	return result
}

// collectSuiteFiles finds all .yaml/.yml files in a directory.
func collectSuiteFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// ValidateSuite runs the semantic checks on one parsed suite.
func (v *Validator) ValidateSuite(s *Suite) []error {
	var errs []error
	fail := func(line int, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{
			File:    s.SourcePath,
			Line:    line,
			Message: fmt.Sprintf(format, args...),
		})
	}

	if s.Module(s.Entry) == nil {
		fail(0, "entry module %q not found", s.Entry)
	}

	for _, name := range s.Order {
		mod := s.Modules[name]
		for _, step := range mod.Steps {
			desc, ok := v.registry.Lookup(step.Keyword)
			if !ok {
				fail(step.Line, "unknown keyword %q", step.Keyword)
				continue
			}
			v.checkParams(&step, desc, fail)
			v.checkRefs(s, &step, desc, fail)
		}
	}

	v.checkCycles(s, fail)
	return errs
}

func (v *Validator) checkParams(step *Step, desc *keyword.Descriptor, fail func(int, string, ...interface{})) {
	if len(step.Named) > 0 {
		for name := range step.Named {
			if desc.ParamIndex(name) < 0 {
				fail(step.Line, "%s: unknown parameter %q", desc.Name, name)
			}
		}
		for _, spec := range desc.Params {
			if spec.Optional {
				continue
			}
			if _, ok := namedValue(step.Named, spec.Name); !ok {
				fail(step.Line, "%s: missing required parameter %q", desc.Name, spec.Name)
			}
		}
		return
	}

	if len(step.Params) > len(desc.Params) {
		fail(step.Line, "%s: %d params given, at most %d accepted", desc.Name, len(step.Params), len(desc.Params))
	}
	for i, spec := range desc.Params {
		if !spec.Optional && i >= len(step.Params) {
			fail(step.Line, "%s: missing required parameter %q", desc.Name, spec.Name)
		}
	}
}

// checkRefs verifies static module, condition and template references.
func (v *Validator) checkRefs(s *Suite, step *Step, desc *keyword.Descriptor, fail func(int, string, ...interface{})) {
	switch desc.Slug {
	case "execute_module", "run_loop":
		if target, ok := stringParam(step, desc, "module"); ok && isStatic(target) {
			if s.Module(target) == nil {
				fail(step.Line, "%s: unknown module %q", desc.Name, target)
			}
		}
	case "condition":
		if raw, ok := paramValue(step, desc, "conditions"); ok {
			if list, ok := raw.([]interface{}); ok {
				v.checkConditionList(s, step, list, fail)
			}
		}
		if target, ok := stringParam(step, desc, "else"); ok && isStatic(target) {
			if s.Module(target) == nil {
				fail(step.Line, "Condition: unknown else module %q", target)
			}
		}
	}

	for _, value := range allParamValues(step) {
		str, ok := value.(string)
		if !ok || !strings.HasPrefix(str, "image:") || !isStatic(str) {
			continue
		}
		name := strings.TrimPrefix(str, "image:")
		if _, ok := s.Templates[name]; !ok {
			fail(step.Line, "%s: unknown template %q", desc.Name, name)
		}
	}
}

// checkConditionList walks [C1, T1, C2, T2, ...]: even positions are
// conditions (module name or expression), odd positions are target
// modules.
func (v *Validator) checkConditionList(s *Suite, step *Step, list []interface{}, fail func(int, string, ...interface{})) {
	if len(list)%2 != 0 {
		fail(step.Line, "Condition: conditions list must hold condition/target pairs, got %d entries", len(list))
	}
	for i, entry := range list {
		str, ok := entry.(string)
		if !ok || !isStatic(str) {
			continue
		}
		if i%2 == 1 {
			if s.Module(str) == nil {
				fail(step.Line, "Condition: unknown target module %q", str)
			}
			continue
		}
		name := strings.TrimPrefix(str, "!")
		if s.Module(name) != nil {
			continue
		}
		if err := eval.Restrict(str); err != nil {
			fail(step.Line, "Condition: %q is neither a module nor a valid expression", str)
		}
	}
}

// checkCycles walks static Execute Module / Run Loop / Condition
// references and reports circular module chains.
func (v *Validator) checkCycles(s *Suite, fail func(int, string, ...interface{})) {
	refs := make(map[string][]string, len(s.Modules))
	for _, name := range s.Order {
		refs[name] = v.staticRefs(s, s.Modules[name])
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(refs))

	var walk func(name string, chain []string)
	walk = func(name string, chain []string) {
		switch state[name] {
		case inStack:
			cycle := append(chain, name)
			fail(s.Modules[name].Line, "circular module reference: %s", strings.Join(cycle, " -> "))
			return
		case done:
			return
		}
		state[name] = inStack
		for _, ref := range refs[name] {
			if _, ok := refs[ref]; ok {
				walk(ref, append(chain, name))
			}
		}
		state[name] = done
	}

	for _, name := range s.Order {
		walk(name, nil)
	}
}

// staticRefs collects module names a module statically invokes.
func (v *Validator) staticRefs(s *Suite, mod *Module) []string {
	var out []string
	add := func(name string) {
		if isStatic(name) && s.Module(name) != nil {
			out = append(out, name)
		}
	}
	for _, step := range mod.Steps {
		desc, ok := v.registry.Lookup(step.Keyword)
		if !ok {
			continue
		}
		switch desc.Slug {
		case "execute_module", "run_loop":
			if target, ok := stringParam(&step, desc, "module"); ok {
				add(target)
			}
		case "condition":
			if raw, ok := paramValue(&step, desc, "conditions"); ok {
				if list, ok := raw.([]interface{}); ok {
					for i, entry := range list {
						str, ok := entry.(string)
						if !ok {
							continue
						}
						if i%2 == 1 {
							add(str)
						} else {
							add(strings.TrimPrefix(str, "!"))
						}
					}
				}
			}
			if target, ok := stringParam(&step, desc, "else"); ok {
				add(target)
			}
		}
	}
	return out
}

// isStatic reports whether a value holds no variable substitution.
func isStatic(s string) bool {
	return !strings.Contains(s, "${")
}

func paramValue(step *Step, desc *keyword.Descriptor, name string) (interface{}, bool) {
	if len(step.Named) > 0 {
		return namedValue(step.Named, name)
	}
	i := desc.ParamIndex(name)
	if i < 0 || i >= len(step.Params) {
		return nil, false
	}
	return step.Params[i], true
}

func stringParam(step *Step, desc *keyword.Descriptor, name string) (string, bool) {
	v, ok := paramValue(step, desc, name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func namedValue(named map[string]interface{}, name string) (interface{}, bool) {
	for k, v := range named {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func allParamValues(step *Step) []interface{} {
	var out []interface{}
	walk := func(v interface{}) {
		if list, ok := v.([]interface{}); ok {
			out = append(out, list...)
			return
		}
		out = append(out, v)
	}
	for _, v := range step.Params {
		walk(v)
	}
	for _, v := range step.Named {
		walk(v)
	}
	return out
}
