package mock

import (
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/keyflow/pkg/core"
)

// Screen holds the scripted UI state a mock driver reports. Elements can
// be placed immediately or become visible after a delay, and template
// matches can be scripted independently of the element list.
type Screen struct {
	mu      sync.Mutex
	entries []entry
	source  string
}

type entry struct {
	el        core.ElementInfo
	visibleAt time.Time
	template  string // Non-empty: only found by image detection for this template
}

// NewScreen creates an empty screen
func NewScreen() *Screen {
	return &Screen{}
}

// Place makes an element visible immediately
func (s *Screen) Place(el core.ElementInfo) {
	s.PlaceAfter(el, 0)
}

// PlaceAfter makes an element visible once the delay has passed
func (s *Screen) PlaceAfter(el core.ElementInfo, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !el.Visible {
		el.Visible = true
		el.Enabled = true
	}
	s.entries = append(s.entries, entry{el: el, visibleAt: time.Now().Add(delay)})
}

// PlaceImageMatch scripts a region that image detection finds for the
// given template name once the delay has passed. It never appears in the
// element list.
func (s *Screen) PlaceImageMatch(template string, el core.ElementInfo, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el.Visible = true
	s.entries = append(s.entries, entry{el: el, visibleAt: time.Now().Add(delay), template: template})
}

// Remove drops every element whose text matches exactly
func (s *Screen) Remove(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.el.Text != text {
			kept = append(kept, e)
		}
	}
	s.entries = kept
}

// Clear removes all scripted state
func (s *Screen) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.source = ""
}

// SetSource sets the page source document
func (s *Screen) SetSource(src string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
}

// Source returns the page source document
func (s *Screen) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Visible returns the elements currently on screen
func (s *Screen) Visible() []core.ElementInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []core.ElementInfo
	for _, e := range s.entries {
		if e.template == "" && !now.Before(e.visibleAt) {
			out = append(out, e.el)
		}
	}
	return out
}

// TemplateMatches returns the scripted matches for a template name
func (s *Screen) TemplateMatches(template string) []core.ElementInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []core.ElementInfo
	for _, e := range s.entries {
		if e.template == template && !now.Before(e.visibleAt) {
			out = append(out, e.el)
		}
	}
	return out
}

// textIn joins the text of visible elements whose center lies in region
func (s *Screen) textIn(region core.Bounds) string {
	var parts []string
	for _, el := range s.Visible() {
		if el.Text == "" {
			continue
		}
		if region != (core.Bounds{}) {
			c := el.Bounds.Center()
			if !region.Contains(c.X, c.Y) {
				continue
			}
		}
		parts = append(parts, el.Text)
	}
	return strings.Join(parts, " ")
}
