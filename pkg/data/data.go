// Package data loads external data sources for the Read Data keyword:
// in-memory lists, CSV and JSON files, environment variables and HTTP
// resources, with an optional query string for filtering and column
// selection.
package data

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/keyflow/pkg/core"
	"github.com/devicelab-dev/keyflow/pkg/vars"
)

// Loader resolves data sources. The zero value is usable: relative file
// paths resolve against the working directory, HTTP requests use a
// 30 second timeout and environment lookups use os.Getenv.
type Loader struct {
	BaseDir string
	Client  *http.Client
	Getenv  func(string) string
}

// Load reads source and applies the optional query string. A source may
// be a list value, or a string of the form:
//
//	env:NAME            environment variable
//	list:a|b|c          inline list
//	csv:path, *.csv     delimited file
//	json:path, *.json   JSON file
//	http(s)://...       HTTP resource (content type decides the parser)
//
// Any other string is treated as an inline pipe-separated list.
func (l *Loader) Load(ctx context.Context, source interface{}, query string) (interface{}, error) {
	values, err := parseQuery(query)
	if err != nil {
		return nil, err
	}

	if list, ok := source.([]interface{}); ok {
		return applyList(list, values)
	}
	s, ok := source.(string)
	if !ok {
		return nil, core.ErrBackend.WithMessagef("unsupported data source type %T", source)
	}
	s = strings.TrimSpace(s)

	switch {
	case strings.HasPrefix(s, "env:"):
		return l.loadEnv(strings.TrimPrefix(s, "env:"))
	case strings.HasPrefix(s, "list:"):
		return applyList(toList(strings.TrimPrefix(s, "list:")), values)
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return l.fetch(ctx, s, values)
	case strings.HasPrefix(s, "csv:"):
		return l.loadCSV(strings.TrimPrefix(s, "csv:"), values)
	case strings.HasPrefix(s, "json:"):
		return l.loadJSON(strings.TrimPrefix(s, "json:"), values)
	case strings.HasSuffix(s, ".csv"):
		return l.loadCSV(s, values)
	case strings.HasSuffix(s, ".json"):
		return l.loadJSON(s, values)
	}
	return applyList(toList(s), values)
}

func (l *Loader) loadEnv(name string) (interface{}, error) {
	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.ErrBackend.WithMessage("empty environment variable name")
	}
	return getenv(name), nil
}

func (l *Loader) resolve(path string) string {
	if l.BaseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.BaseDir, path)
}

func (l *Loader) httpClient() *http.Client {
	if l.Client != nil {
		return l.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func parseQuery(query string) (url.Values, error) {
	if query == "" {
		return url.Values{}, nil
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, core.ErrBackend.WithMessagef("bad data query %q: %v", query, err)
	}
	return values, nil
}

// applyList narrows an in-memory list with the row selector when given.
func applyList(list []interface{}, values url.Values) (interface{}, error) {
	if r := values.Get("row"); r != "" {
		i, err := strconv.Atoi(r)
		if err != nil || i < 0 || i >= len(list) {
			return nil, core.ErrBackend.WithMessagef("row %q out of range for list of %d", r, len(list))
		}
		return list[i], nil
	}
	return list, nil
}

func toList(s string) []interface{} {
	list, ok := vars.ToList(s)
	if !ok {
		return []interface{}{}
	}
	return list
}
