package core

// ElementInfo represents one detected UI element
type ElementInfo struct {
	ID                 string            `json:"id,omitempty"`
	Text               string            `json:"text,omitempty"`
	Bounds             Bounds            `json:"bounds"`
	Confidence         float64           `json:"confidence,omitempty"` // Detector score, 0..1
	Visible            bool              `json:"visible"`
	Enabled            bool              `json:"enabled"`
	Focused            bool              `json:"focused,omitempty"`
	Class              string            `json:"class,omitempty"`
	AccessibilityLabel string            `json:"accessibilityLabel,omitempty"`
	Attributes         map[string]string `json:"attributes,omitempty"`
}

// Bounds represents element position and size in screen pixels
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the center point of the bounds
func (b Bounds) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Contains checks if a point is within the bounds
func (b Bounds) Contains(x, y int) bool {
	return x >= b.X && x < b.X+b.Width && y >= b.Y && y < b.Y+b.Height
}

// Intersects checks if two bounds overlap
func (b Bounds) Intersects(o Bounds) bool {
	return b.X < o.X+o.Width && o.X < b.X+b.Width &&
		b.Y < o.Y+o.Height && o.Y < b.Y+b.Height
}

// Point is a screen coordinate in pixels
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Snapshot captures the visible state of a session's screen at one instant.
// Source is empty unless page source capture was requested.
type Snapshot struct {
	Screenshot []byte        `json:"-"`
	Elements   []ElementInfo `json:"elements"`
	Source     string        `json:"source,omitempty"`
	Width      int           `json:"width,omitempty"`
	Height     int           `json:"height,omitempty"`
}
