package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/keyflow/pkg/core"
	"github.com/devicelab-dev/keyflow/pkg/eval"
	"github.com/devicelab-dev/keyflow/pkg/vars"
)

// invokeModule runs a named module with the cycle guard held. Steps run
// sequentially and the first failure aborts the module.
func (e *Engine) invokeModule(ctx context.Context, sc *Scope, name string) (*core.Result, error) {
	if sc.Modules == nil {
		return nil, core.ErrKeywordNotFound.WithMessagef("module %q not found", name)
	}
	mod := sc.Modules.Module(name)
	if mod == nil {
		return nil, core.ErrKeywordNotFound.WithMessagef("module %q not found", name)
	}
	if sc.onStack(name) {
		chain := strings.Join(append(sc.Stack(), name), " -> ")
		return nil, core.ErrCycleDetected.WithMessagef("module %q is already executing: %s", name, chain)
	}
	sc.push(name)
	defer sc.pop()

	for i := range mod.Steps {
		step := &mod.Steps[i]
		rec := e.Dispatch(ctx, sc, step.Keyword, step.Params, step.Named)
		if rec.Status == core.StatusFail {
			return nil, rec.Err
		}
	}
	return &core.Result{
		Message: fmt.Sprintf("module %s completed (%d steps)", name, len(mod.Steps)),
	}, nil
}

func (e *Engine) executeModule(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	return e.invokeModule(ctx, sc, inv.String("module"))
}

func (e *Engine) runLoop(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	target := inv.String("module")
	hasCount := inv.Has("count")
	hasZip := inv.Has("variables") || inv.Has("sources")
	if hasCount == hasZip {
		return nil, core.ErrMissingParameter.WithMessage("Run Loop takes either count or variables+sources")
	}

	if hasCount {
		count, err := inv.Int("count")
		if err != nil {
			return nil, err
		}
		if count < 0 {
			return nil, core.ErrMissingParameter.WithMessagef("Run Loop count must be >= 0, got %d", count)
		}
		loopVar := inv.String("variable")
		for i := 0; i < count; i++ {
			if loopVar != "" {
				sc.Vars.Set(loopVar, float64(i))
			}
			if _, err := e.invokeModule(ctx, sc, target); err != nil {
				return nil, err
			}
		}
		return &core.Result{Message: fmt.Sprintf("loop ran %d iterations", count)}, nil
	}

	names, err := loopNames(inv.Value("variables"))
	if err != nil {
		return nil, err
	}
	lists, err := loopSources(inv.Value("sources"))
	if err != nil {
		return nil, err
	}
	if len(names) != len(lists) {
		return nil, core.ErrMissingParameter.WithMessagef("Run Loop got %d variables for %d sources", len(names), len(lists))
	}

	// Zip iteration stops at the shortest source.
	iterations := -1
	for _, list := range lists {
		if iterations < 0 || len(list) < iterations {
			iterations = len(list)
		}
	}
	if iterations < 0 {
		iterations = 0
	}
	for i := 0; i < iterations; i++ {
		for j, name := range names {
			sc.Vars.Set(name, lists[j][i])
		}
		if _, err := e.invokeModule(ctx, sc, target); err != nil {
			return nil, err
		}
	}
	return &core.Result{Message: fmt.Sprintf("loop ran %d iterations", iterations)}, nil
}

func loopNames(v interface{}) ([]string, error) {
	var names []string
	switch value := v.(type) {
	case string:
		for _, part := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == '|' }) {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				names = append(names, trimmed)
			}
		}
	case []interface{}:
		for _, entry := range value {
			names = append(names, vars.Render(entry))
		}
	}
	if len(names) == 0 {
		return nil, core.ErrMissingParameter.WithMessagef("Run Loop variables (%v) is empty", v)
	}
	return names, nil
}

func loopSources(v interface{}) ([][]interface{}, error) {
	raw, ok := v.([]interface{})
	if !ok {
		raw = []interface{}{v}
	}
	lists := make([][]interface{}, len(raw))
	for i, source := range raw {
		list, ok := vars.ToList(source)
		if !ok {
			return nil, core.ErrMissingParameter.WithMessagef("Run Loop source %d (%v) is not iterable", i, source)
		}
		lists[i] = list
	}
	return lists, nil
}

func (e *Engine) condition(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	raw := inv.Value("conditions")
	list, ok := raw.([]interface{})
	if !ok {
		list = []interface{}{raw}
	}
	if len(list)%2 != 0 {
		return nil, core.ErrMissingParameter.WithMessagef("Condition needs condition/target pairs, got %d entries", len(list))
	}

	for i := 0; i+1 < len(list); i += 2 {
		truth, err := e.conditionTruth(ctx, sc, list[i])
		if err != nil {
			return nil, err
		}
		if !truth {
			continue
		}
		target := vars.Render(list[i+1])
		if _, err := e.invokeModule(ctx, sc, target); err != nil {
			return nil, err
		}
		return &core.Result{Message: fmt.Sprintf("condition %d matched, ran %s", i/2, target)}, nil
	}

	if elseTarget := inv.String("else"); elseTarget != "" {
		if _, err := e.invokeModule(ctx, sc, elseTarget); err != nil {
			return nil, err
		}
		return &core.Result{Message: fmt.Sprintf("no condition matched, ran %s", elseTarget)}, nil
	}
	return &core.Result{Message: "no condition matched"}, nil
}

// conditionTruth evaluates one condition entry: a bool or number is its
// own truth, a module name runs with success as truth (a ! prefix
// inverts) and anything else is a boolean expression over the variables.
func (e *Engine) conditionTruth(ctx context.Context, sc *Scope, entry interface{}) (bool, error) {
	switch c := entry.(type) {
	case bool:
		return c, nil
	case float64:
		return c != 0, nil
	case string:
		name := strings.TrimPrefix(c, "!")
		if sc.Modules != nil && sc.Modules.Module(name) != nil {
			_, err := e.invokeModule(ctx, sc, name)
			if err != nil {
				if errors.Is(err, core.ErrCancelled) || errors.Is(err, core.ErrCycleDetected) {
					return false, err
				}
			}
			truth := err == nil
			if strings.HasPrefix(c, "!") {
				truth = !truth
			}
			return truth, nil
		}
		return eval.Condition(c, sc.Vars.Snapshot())
	}
	return false, core.ErrExpression.WithMessagef("condition %v (%T) is neither a module nor an expression", entry, entry)
}

func (e *Engine) readData(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	variable := inv.String("variable")
	value, err := sc.Data.Load(ctx, inv.Value("source"), inv.String("query"))
	if err != nil {
		return nil, err
	}
	sc.Vars.Set(variable, value)
	return &core.Result{
		Message: fmt.Sprintf("bound %s", variable),
		Data:    value,
	}, nil
}

func (e *Engine) evaluate(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	variable := inv.String("variable")
	value, err := eval.Evaluate(inv.String("expression"), sc.Vars.Snapshot())
	if err != nil {
		return nil, err
	}
	if format := inv.String("format"); format != "" {
		formatted, err := eval.Format(value, format)
		if err != nil {
			return nil, err
		}
		value = formatted
	}
	sc.Vars.Set(variable, value)
	return &core.Result{
		Message: fmt.Sprintf("%s = %s", variable, vars.Render(value)),
		Data:    value,
	}, nil
}

func (e *Engine) dateEvaluate(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	variable := inv.String("variable")
	value, err := eval.EvaluateDate(inv.String("expression"), inv.String("format"), time.Now())
	if err != nil {
		return nil, err
	}
	sc.Vars.Set(variable, value)
	return &core.Result{
		Message: fmt.Sprintf("%s = %s", variable, value),
		Data:    value,
	}, nil
}

func (e *Engine) sleep(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	d, err := inv.Duration("duration")
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, core.ErrCancelled.WithCause(ctx.Err())
	case <-time.After(d):
	}
	return &core.Result{Message: fmt.Sprintf("slept %s", d)}, nil
}
