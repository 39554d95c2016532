package locator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/devicelab-dev/keyflow/pkg/core"
)

// ROI is a percentage-based region of interest constraining where
// detection searches. The zero value means the whole screen.
type ROI struct {
	X      float64 `yaml:"x" json:"x"`
	Y      float64 `yaml:"y" json:"y"`
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

// FullScreen returns the ROI covering the entire screen
func FullScreen() ROI {
	return ROI{X: 0, Y: 0, Width: 100, Height: 100}
}

// IsFull reports whether the region covers the whole screen
func (r ROI) IsFull() bool {
	r = r.Clamp()
	return r.X == 0 && r.Y == 0 && r.Width == 100 && r.Height == 100
}

// Clamp forces the region into the valid range: 0 <= x,y and
// x+width <= 100, y+height <= 100. Out-of-range input is corrected,
// never rejected. The zero value clamps to the full screen.
func (r ROI) Clamp() ROI {
	if r == (ROI{}) {
		return FullScreen()
	}
	clampAxis := func(pos, size float64) (float64, float64) {
		if pos < 0 {
			pos = 0
		}
		if pos > 100 {
			pos = 100
		}
		if size < 0 {
			size = 0
		}
		if pos+size > 100 {
			size = 100 - pos
		}
		return pos, size
	}
	r.X, r.Width = clampAxis(r.X, r.Width)
	r.Y, r.Height = clampAxis(r.Y, r.Height)
	return r
}

// Bounds converts the clamped region to pixel bounds on a screen of the
// given size.
func (r ROI) Bounds(screenW, screenH int) core.Bounds {
	c := r.Clamp()
	return core.Bounds{
		X:      int(c.X / 100 * float64(screenW)),
		Y:      int(c.Y / 100 * float64(screenH)),
		Width:  int(c.Width / 100 * float64(screenW)),
		Height: int(c.Height / 100 * float64(screenH)),
	}
}

// ParseROI parses "x,y,width,height" percentage text. Empty input is the
// full screen.
func ParseROI(s string) (ROI, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return FullScreen(), nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return ROI{}, fmt.Errorf("region %q: want x,y,width,height", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return ROI{}, fmt.Errorf("region %q: %v", s, err)
		}
		vals[i] = f
	}
	return ROI{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}.Clamp(), nil
}
