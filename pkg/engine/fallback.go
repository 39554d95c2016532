package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/keyflow/pkg/core"
	"github.com/devicelab-dev/keyflow/pkg/keyword"
	"github.com/devicelab-dev/keyflow/pkg/locator"
	"github.com/devicelab-dev/keyflow/pkg/vars"
)

// bind converts an invocation to positional order using the descriptor:
// named parameters map onto their declared positions, defaults fill
// omitted optionals, and absent required positions are fatal.
func bind(desc *keyword.Descriptor, params []interface{}, named map[string]interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(desc.Params))

	if len(named) > 0 {
		for name, value := range named {
			i := desc.ParamIndex(name)
			if i < 0 {
				return nil, core.ErrUnknownParameter.WithMessagef("%s does not take parameter %q", desc.Name, name)
			}
			out[i] = value
		}
	} else {
		if len(params) > len(desc.Params) {
			return nil, core.ErrUnknownParameter.WithMessagef("%s takes at most %d params, got %d", desc.Name, len(desc.Params), len(params))
		}
		copy(out, params)
	}

	for i, spec := range desc.Params {
		if out[i] != nil {
			continue
		}
		if spec.Default != nil {
			out[i] = spec.Default
			continue
		}
		if !spec.Optional {
			return nil, core.ErrMissingParameter.WithMessagef("%s requires parameter %q", desc.Name, spec.Name)
		}
	}
	return out, nil
}

// expand produces the Cartesian product of all fallback groups in a fixed
// order: the first combination takes the first alternative of every group
// and later positions vary fastest.
func expand(desc *keyword.Descriptor, bound []interface{}) [][]interface{} {
	alts := make([][]interface{}, len(bound))
	for i, v := range bound {
		alts[i] = alternatives(desc.Params[i], v)
	}

	var combos [][]interface{}
	idx := make([]int, len(alts))
	for {
		combo := make([]interface{}, len(alts))
		for i := range alts {
			combo[i] = alts[i][idx[i]]
		}
		combos = append(combos, combo)

		k := len(idx) - 1
		for k >= 0 {
			idx[k]++
			if idx[k] < len(alts[k]) {
				break
			}
			idx[k] = 0
			k--
		}
		if k < 0 {
			break
		}
	}
	return combos
}

// alternatives decides how a list value at one position is read. Plain
// positions treat a list as a fallback group. Locator-set positions keep
// a flat list whole (it is one set of alternatives for a single slot) and
// only a list of lists forms a fallback group there. TypeAny positions
// never expand; their lists are data.
func alternatives(spec keyword.ParamSpec, v interface{}) []interface{} {
	list, ok := v.([]interface{})
	if !ok || len(list) == 0 {
		return []interface{}{v}
	}
	if spec.Type == keyword.TypeAny {
		return []interface{}{v}
	}
	if spec.LocatorSet {
		nested := false
		for _, entry := range list {
			if _, ok := entry.([]interface{}); ok {
				nested = true
				break
			}
		}
		if !nested {
			return []interface{}{v}
		}
		out := make([]interface{}, len(list))
		copy(out, list)
		return out
	}
	out := make([]interface{}, len(list))
	copy(out, list)
	return out
}

type comboFailure struct {
	args []interface{}
	err  error
}

// aggregate folds per-combination failures into one error. A single
// combination surfaces its error untouched; multiple combinations keep
// the first failure's code and list every attempt in order.
func aggregate(desc *keyword.Descriptor, failures []comboFailure) error {
	if len(failures) == 0 {
		return core.ErrBackend.WithMessagef("%s produced no result", desc.Name)
	}
	if len(failures) == 1 {
		return failures[0].err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "all %d parameter combinations failed:", len(failures))
	for _, f := range failures {
		fmt.Fprintf(&b, "\n  (%s): %v", formatArgs(desc, f.args), f.err)
	}
	first := core.AsExecutionError(failures[0].err)
	return first.WithMessage(b.String()).WithDetails(map[string]interface{}{
		"combinations": len(failures),
	})
}

func formatArgs(desc *keyword.Descriptor, args []interface{}) string {
	parts := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", desc.Params[i].Name, vars.Render(arg)))
	}
	return strings.Join(parts, ", ")
}

// Invocation is one concrete parameter combination, substituted and
// aligned with the descriptor's positions.
type Invocation struct {
	Desc *keyword.Descriptor
	Args []interface{}
}

// Has reports whether the named parameter carries a value.
func (inv *Invocation) Has(name string) bool {
	i := inv.Desc.ParamIndex(name)
	return i >= 0 && i < len(inv.Args) && inv.Args[i] != nil
}

// Value returns the raw value of the named parameter, or nil.
func (inv *Invocation) Value(name string) interface{} {
	i := inv.Desc.ParamIndex(name)
	if i < 0 || i >= len(inv.Args) {
		return nil
	}
	return inv.Args[i]
}

// String renders the named parameter as text; empty when absent.
func (inv *Invocation) String(name string) string {
	v := inv.Value(name)
	if v == nil {
		return ""
	}
	return vars.Render(v)
}

// Number converts the named parameter to a float64.
func (inv *Invocation) Number(name string) (float64, error) {
	v := inv.Value(name)
	n, ok := vars.ToNumber(v)
	if !ok {
		return 0, core.ErrMissingParameter.WithMessagef("%s parameter %q: %v is not a number", inv.Desc.Name, name, v)
	}
	return n, nil
}

// Int converts the named parameter to an int.
func (inv *Invocation) Int(name string) (int, error) {
	n, err := inv.Number(name)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Duration converts the named parameter to a duration. Plain numbers are
// read as seconds; strings use time.ParseDuration syntax.
func (inv *Invocation) Duration(name string) (time.Duration, error) {
	v := inv.Value(name)
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		if parsed, err := time.ParseDuration(d); err == nil {
			return parsed, nil
		}
	}
	if n, ok := vars.ToNumber(v); ok {
		return time.Duration(n * float64(time.Second)), nil
	}
	return 0, core.ErrMissingParameter.WithMessagef("%s parameter %q: %v is not a duration", inv.Desc.Name, name, v)
}

// Locators parses the named parameter into a locator set.
func (inv *Invocation) Locators(name string) (locator.Set, error) {
	v := inv.Value(name)
	set, err := locator.ParseValue(v)
	if err != nil {
		return nil, core.ErrMissingParameter.WithMessagef("%s parameter %q: %v", inv.Desc.Name, name, err)
	}
	return set, nil
}
