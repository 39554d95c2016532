// Package eval evaluates the restricted expression dialect used by
// condition and computed-value keywords.
//
// Only literals, variable identifiers, arithmetic, comparisons, logical
// operators and list membership are accepted. Function calls, member
// access and every other language construct are rejected before the
// expression runs.
package eval

import (
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"

	"github.com/devicelab-dev/keyflow/pkg/core"
	"github.com/devicelab-dev/keyflow/pkg/vars"
)

// Restrict parses src and rejects constructs outside the allowed grammar.
func Restrict(src string) error {
	tree, err := parser.Parse(src)
	if err != nil {
		return core.ErrExpression.WithMessagef("parse %q: %v", src, err)
	}
	w := &whitelist{}
	ast.Walk(&tree.Node, w)
	if w.bad != "" {
		return core.ErrExpression.WithMessagef("%s not allowed in %q", w.bad, src)
	}
	return nil
}

type whitelist struct {
	bad string
}

func (w *whitelist) Visit(node *ast.Node) {
	if w.bad != "" {
		return
	}
	switch (*node).(type) {
	case *ast.NilNode, *ast.IdentifierNode, *ast.IntegerNode, *ast.FloatNode,
		*ast.BoolNode, *ast.StringNode, *ast.ConstantNode,
		*ast.UnaryNode, *ast.BinaryNode, *ast.ConditionalNode, *ast.ArrayNode:
	case *ast.CallNode, *ast.BuiltinNode:
		w.bad = "function call"
	case *ast.MemberNode, *ast.ChainNode:
		w.bad = "member access"
	case *ast.SliceNode:
		w.bad = "slice"
	default:
		w.bad = fmt.Sprintf("%T", *node)
	}
}

// Condition evaluates src as a boolean over the supplied variables.
func Condition(src string, env map[string]interface{}) (bool, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return false, core.ErrExpression.WithMessage("empty condition expression")
	}
	if err := Restrict(src); err != nil {
		return false, err
	}
	if env == nil {
		env = map[string]interface{}{}
	}
	program, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, core.ErrExpression.WithMessagef("compile %q: %v", src, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, core.ErrExpression.WithMessagef("evaluate %q: %v", src, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, core.ErrExpression.WithMessagef("condition %q returned %T, want bool", src, out)
	}
	return b, nil
}

// Evaluate computes src and returns the resulting value. Integer results
// come back as float64 so they store and render like every other number.
func Evaluate(src string, env map[string]interface{}) (interface{}, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, core.ErrExpression.WithMessage("empty expression")
	}
	if err := Restrict(src); err != nil {
		return nil, err
	}
	if env == nil {
		env = map[string]interface{}{}
	}
	program, err := expr.Compile(src, expr.Env(env))
	if err != nil {
		return nil, core.ErrExpression.WithMessagef("compile %q: %v", src, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, core.ErrExpression.WithMessagef("evaluate %q: %v", src, err)
	}
	return normalize(out), nil
}

// Format renders val using a fmt verb such as "%.2f" or "%04d". An empty
// format falls back to the default variable rendering.
func Format(val interface{}, format string) (string, error) {
	if format == "" {
		return vars.Render(val), nil
	}
	arg := val
	if f, ok := val.(float64); ok && wantsInt(format) && f == math.Trunc(f) {
		arg = int64(f)
	}
	s := fmt.Sprintf(format, arg)
	if strings.Contains(s, "%!") {
		return "", core.ErrExpression.WithMessagef("format %q does not apply to %T", format, val)
	}
	return s, nil
}

func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case []interface{}:
		out := make([]interface{}, len(n))
		for i, e := range n {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}

func wantsInt(format string) bool {
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		j := i + 1
		for j < len(format) && strings.ContainsRune("+-# 0123456789.", rune(format[j])) {
			j++
		}
		if j >= len(format) {
			break
		}
		switch format[j] {
		case 'd', 'b', 'o', 'x', 'X':
			return true
		}
		i = j
	}
	return false
}
