package mock

import (
	"context"
	"strings"

	"github.com/devicelab-dev/keyflow/pkg/core"
	"github.com/devicelab-dev/keyflow/pkg/locator"
)

// TextDetector matches elements whose text or accessibility label contains
// the locator value, case-insensitively.
type TextDetector struct {
	// Err injects a detection failure
	Err error
}

// Detect implements locator.Detector
func (t *TextDetector) Detect(_ context.Context, snap *core.Snapshot, q locator.Query) ([]core.ElementInfo, error) {
	if t.Err != nil {
		return nil, t.Err
	}
	want := strings.ToLower(q.Locator.Value)
	var out []core.ElementInfo
	for _, el := range snap.Elements {
		if strings.Contains(strings.ToLower(el.Text), want) ||
			strings.Contains(strings.ToLower(el.AccessibilityLabel), want) {
			out = append(out, el)
		}
	}
	return out, nil
}

// PathDetector matches elements by their structural path attribute. An
// exact match always wins; "//name" patterns match any element whose path
// ends in "/name".
type PathDetector struct {
	Err error
}

// Detect implements locator.Detector
func (p *PathDetector) Detect(_ context.Context, snap *core.Snapshot, q locator.Query) ([]core.ElementInfo, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	pattern := q.Locator.Value
	var out []core.ElementInfo
	for _, el := range snap.Elements {
		path := el.Attributes["path"]
		if path == "" {
			continue
		}
		if path == pattern {
			out = append(out, el)
			continue
		}
		if strings.HasPrefix(pattern, "//") && strings.HasSuffix(path, pattern[1:]) {
			out = append(out, el)
		}
	}
	return out, nil
}

// ImageDetector returns the screen's scripted matches for the requested
// template.
type ImageDetector struct {
	Screen *Screen
	Err    error
}

// Detect implements locator.Detector
func (i *ImageDetector) Detect(_ context.Context, _ *core.Snapshot, q locator.Query) ([]core.ElementInfo, error) {
	if i.Err != nil {
		return nil, i.Err
	}
	if len(q.Template) == 0 {
		return nil, nil
	}
	return i.Screen.TemplateMatches(q.Locator.Value), nil
}
