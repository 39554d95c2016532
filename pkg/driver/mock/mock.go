// Package mock provides a simulated driver and detection backends for
// testing and local runs without a real device.
package mock

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/keyflow/pkg/core"
	"github.com/devicelab-dev/keyflow/pkg/locator"
)

// Config configures mock driver behavior.
type Config struct {
	Platform   string
	DeviceID   string
	AppVersion string

	// Screenshot dimensions. Defaults: 1080x2400.
	ScreenWidth  int
	ScreenHeight int

	// CallDelay adds artificial latency to every driver call
	CallDelay time.Duration

	// FailOn injects an error for the named operation: press, swipe,
	// scroll, enter_text, read_text, source, screenshot, elements,
	// launch, terminate, version.
	FailOn map[string]error
}

// Call records one driver invocation for assertions.
type Call struct {
	Op       string
	Point    core.Point
	Dir      core.Direction
	Distance int
	Text     string
	Region   core.Bounds
}

// Driver is a simulated implementation of core.Driver. The screen it
// reports is scripted through its Screen.
type Driver struct {
	Config Config

	mu         sync.Mutex
	launched   bool
	terminated bool
	sessionID  string
	calls      []Call
	screen     *Screen
	shot       []byte
}

// New creates a new mock driver with an empty screen.
func New(cfg Config) *Driver {
	if cfg.Platform == "" {
		cfg.Platform = "mock"
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "mock-device"
	}
	if cfg.AppVersion == "" {
		cfg.AppVersion = "1.0.0"
	}
	if cfg.ScreenWidth <= 0 {
		cfg.ScreenWidth = 1080
	}
	if cfg.ScreenHeight <= 0 {
		cfg.ScreenHeight = 2400
	}
	return &Driver{
		Config:    cfg,
		sessionID: uuid.New().String(),
		screen:    NewScreen(),
	}
}

// Screen returns the scripted screen backing this driver
func (d *Driver) Screen() *Screen {
	return d.screen
}

// Calls returns a copy of the recorded invocations
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// CallCount returns how many times the named operation ran
func (d *Driver) CallCount(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Launched reports whether the app is currently launched
func (d *Driver) Launched() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launched
}

// Terminated reports whether TerminateApp ran
func (d *Driver) Terminated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.terminated
}

func (d *Driver) begin(ctx context.Context, call Call) error {
	if d.Config.CallDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.Config.CallDelay):
		}
	}
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
	if err := d.Config.FailOn[call.Op]; err != nil {
		return err
	}
	return ctx.Err()
}

// LaunchApp marks the app launched.
func (d *Driver) LaunchApp(ctx context.Context) error {
	if err := d.begin(ctx, Call{Op: "launch"}); err != nil {
		return err
	}
	d.mu.Lock()
	d.launched = true
	d.mu.Unlock()
	return nil
}

// TerminateApp marks the app closed.
func (d *Driver) TerminateApp(ctx context.Context) error {
	if err := d.begin(ctx, Call{Op: "terminate"}); err != nil {
		return err
	}
	d.mu.Lock()
	d.launched = false
	d.terminated = true
	d.mu.Unlock()
	return nil
}

// Press records a tap.
func (d *Driver) Press(ctx context.Context, p core.Point) error {
	return d.begin(ctx, Call{Op: "press", Point: p})
}

// Swipe records a swipe gesture.
func (d *Driver) Swipe(ctx context.Context, start core.Point, dir core.Direction, distance int) error {
	return d.begin(ctx, Call{Op: "swipe", Point: start, Dir: dir, Distance: distance})
}

// Scroll records a scroll gesture.
func (d *Driver) Scroll(ctx context.Context, dir core.Direction, distance int) error {
	return d.begin(ctx, Call{Op: "scroll", Dir: dir, Distance: distance})
}

// EnterText records typed text.
func (d *Driver) EnterText(ctx context.Context, p core.Point, text string) error {
	return d.begin(ctx, Call{Op: "enter_text", Point: p, Text: text})
}

// ReadText joins the text of visible elements inside the region.
func (d *Driver) ReadText(ctx context.Context, region core.Bounds) (string, error) {
	if err := d.begin(ctx, Call{Op: "read_text", Region: region}); err != nil {
		return "", err
	}
	return d.screen.textIn(region), nil
}

// PageSource returns the scripted source document.
func (d *Driver) PageSource(ctx context.Context) (string, error) {
	if err := d.begin(ctx, Call{Op: "source"}); err != nil {
		return "", err
	}
	return d.screen.Source(), nil
}

// Screenshot synthesizes a PNG of the configured size.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := d.begin(ctx, Call{Op: "screenshot"}); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shot == nil {
		img := image.NewRGBA(image.Rect(0, 0, d.Config.ScreenWidth, d.Config.ScreenHeight))
		for i := range img.Pix {
			img.Pix[i] = 0xEE
		}
		img.Set(0, 0, color.RGBA{R: 0x10, G: 0x10, B: 0x10, A: 0xFF})
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
		d.shot = buf.Bytes()
	}
	out := make([]byte, len(d.shot))
	copy(out, d.shot)
	return out, nil
}

// Elements lists the currently visible scripted elements.
func (d *Driver) Elements(ctx context.Context) ([]core.ElementInfo, error) {
	if err := d.begin(ctx, Call{Op: "elements"}); err != nil {
		return nil, err
	}
	return d.screen.Visible(), nil
}

// AppVersion returns the configured version string.
func (d *Driver) AppVersion(ctx context.Context) (string, error) {
	if err := d.begin(ctx, Call{Op: "version"}); err != nil {
		return "", err
	}
	return d.Config.AppVersion, nil
}

// SessionID returns the simulated backend session id.
func (d *Driver) SessionID() string {
	return d.sessionID
}

// Detectors returns detection backends bound to this driver's screen,
// one per locator kind.
func (d *Driver) Detectors() map[locator.Kind]locator.Detector {
	return map[locator.Kind]locator.Detector{
		locator.KindText:  &TextDetector{},
		locator.KindPath:  &PathDetector{},
		locator.KindImage: &ImageDetector{Screen: d.screen},
	}
}
