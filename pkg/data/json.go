package data

import (
	"encoding/json"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/devicelab-dev/keyflow/pkg/core"
)

func (l *Loader) loadJSON(path string, values url.Values) (interface{}, error) {
	raw, err := os.ReadFile(l.resolve(path))
	if err != nil {
		return nil, core.ErrBackend.WithMessagef("read %s: %v", path, err)
	}
	return parseJSON(raw, path, values)
}

func parseJSON(raw []byte, name string, values url.Values) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, core.ErrBackend.WithMessagef("parse %s: %v", name, err)
	}
	if p := values.Get("path"); p != "" {
		sub, err := navigate(v, p)
		if err != nil {
			return nil, err
		}
		v = sub
	}
	if list, ok := v.([]interface{}); ok {
		return applyList(list, values)
	}
	return v, nil
}

// navigate walks a dotted path such as "items.2.name" through nested
// mappings and lists.
func navigate(v interface{}, path string) (interface{}, error) {
	for _, seg := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]interface{}:
			sub, ok := node[seg]
			if !ok {
				return nil, core.ErrBackend.WithMessagef("path segment %q not found", seg)
			}
			v = sub
		case []interface{}:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, core.ErrBackend.WithMessagef("path segment %q out of range for list of %d", seg, len(node))
			}
			v = node[i]
		default:
			return nil, core.ErrBackend.WithMessagef("path segment %q cannot descend into %T", seg, v)
		}
	}
	return v, nil
}
