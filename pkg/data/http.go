package data

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/devicelab-dev/keyflow/pkg/core"
)

func (l *Loader) fetch(ctx context.Context, rawURL string, values url.Values) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, core.ErrBackend.WithMessagef("bad url %s: %v", rawURL, err)
	}
	resp, err := l.httpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, core.ErrCancelled.WithCause(ctx.Err())
		}
		return nil, core.ErrBackend.WithMessagef("fetch %s: %v", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.ErrBackend.WithMessagef("read %s: %v", rawURL, err)
	}
	if resp.StatusCode >= 300 {
		return nil, core.ErrBackend.WithMessagef("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(ct, "json") || looksLikeJSON(body):
		return parseJSON(body, rawURL, values)
	case strings.Contains(ct, "csv"):
		return parseCSV(bytes.NewReader(body), rawURL, values)
	}
	return string(body), nil
}

func looksLikeJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}
