package data

import (
	"encoding/csv"
	"io"
	"net/url"
	"os"
	"strconv"

	"github.com/devicelab-dev/keyflow/pkg/core"
)

func (l *Loader) loadCSV(path string, values url.Values) (interface{}, error) {
	f, err := os.Open(l.resolve(path))
	if err != nil {
		return nil, core.ErrBackend.WithMessagef("open %s: %v", path, err)
	}
	defer f.Close()
	return parseCSV(f, path, values)
}

// parseCSV reads a header row plus data rows and applies the query:
// every key except "column" and "row" filters rows by equality on that
// column, "column" selects one column's values and "row" selects one row.
func parseCSV(r io.Reader, name string, values url.Values) (interface{}, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, core.ErrBackend.WithMessagef("parse %s: %v", name, err)
	}
	if len(records) == 0 {
		return []interface{}{}, nil
	}
	header := records[0]
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}

	rows := make([]map[string]interface{}, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]interface{}, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}

	for key, want := range values {
		if key == "column" || key == "row" || key == "path" {
			continue
		}
		if _, ok := index[key]; !ok {
			return nil, core.ErrBackend.WithMessagef("unknown column %q in %s", key, name)
		}
		kept := rows[:0]
		for _, row := range rows {
			if len(want) > 0 && row[key] == want[0] {
				kept = append(kept, row)
			}
		}
		rows = kept
	}

	column := values.Get("column")
	if column != "" {
		if _, ok := index[column]; !ok {
			return nil, core.ErrBackend.WithMessagef("unknown column %q in %s", column, name)
		}
	}

	if r := values.Get("row"); r != "" {
		i, err := strconv.Atoi(r)
		if err != nil || i < 0 || i >= len(rows) {
			return nil, core.ErrBackend.WithMessagef("row %q out of range for %d data rows", r, len(rows))
		}
		if column != "" {
			return rows[i][column], nil
		}
		return rows[i], nil
	}

	if column != "" {
		out := make([]interface{}, len(rows))
		for i, row := range rows {
			out[i] = row[column]
		}
		return out, nil
	}

	out := make([]interface{}, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out, nil
}
