package core

import (
	"context"
)

// Direction of a swipe or scroll gesture
type Direction string

// Direction values
const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// Driver defines the capability surface of a device/browser backend.
// Implementations perform the physical interaction; the engine resolves
// keywords and locators and calls these methods opaquely.
type Driver interface {
	// LaunchApp starts the application under test
	LaunchApp(ctx context.Context) error

	// TerminateApp stops the application under test
	TerminateApp(ctx context.Context) error

	// Press taps the given screen point
	Press(ctx context.Context, p Point) error

	// Swipe drags from start in the given direction for distance pixels
	Swipe(ctx context.Context, start Point, dir Direction, distance int) error

	// Scroll scrolls the viewport in the given direction for distance pixels
	Scroll(ctx context.Context, dir Direction, distance int) error

	// EnterText focuses the given point and types text
	EnterText(ctx context.Context, p Point, text string) error

	// ReadText extracts visible text inside the given region
	ReadText(ctx context.Context, region Bounds) (string, error)

	// PageSource returns the view tree serialized by the backend
	PageSource(ctx context.Context) (string, error)

	// Screenshot captures the current screen as PNG
	Screenshot(ctx context.Context) ([]byte, error)

	// Elements lists the elements currently on screen
	Elements(ctx context.Context) ([]ElementInfo, error)

	// AppVersion returns the version of the application under test
	AppVersion(ctx context.Context) (string, error)

	// SessionID returns the backend's own session identifier
	SessionID() string
}
