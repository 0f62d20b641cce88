// api/schemas/desktop.go
package schemas

import (
	"fmt"
	"time"
)

// Geometry is a window or region rectangle in root-window coordinates.
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Point is a screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Window describes a top-level X11 window as seen by the window registry.
type Window struct {
	WindowID   string    `json:"window_id"`
	ProcessID  int       `json:"process_id"`
	Title      string    `json:"title"`
	AppName    string    `json:"app_name"`
	Geometry   Geometry  `json:"geometry"`
	IsFocused  bool      `json:"is_focused"`
	LastActive time.Time `json:"last_active"`
}

// FocusPoint returns the canonical click target that gives the window focus
// through its title bar.
func (w Window) FocusPoint() Point {
	return Point{
		X: w.Geometry.X + w.Geometry.Width/2,
		Y: w.Geometry.Y + 20,
	}
}

// WindowCriteria narrows a targeted action down to one window of an application.
// Empty fields match anything.
type WindowCriteria struct {
	TitleContains string `json:"title_contains,omitempty"`
	WindowID      string `json:"window_id,omitempty"`
	ProcessID     int    `json:"process_id,omitempty"`
}

// Region is a capture rectangle requested by a caller.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validate enforces positive size and non-negative origin.
func (r Region) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: region size must be positive, got %dx%d", ErrInvalidInput, r.Width, r.Height)
	}
	if r.X < 0 || r.Y < 0 {
		return fmt.Errorf("%w: region origin must be non-negative, got (%d,%d)", ErrInvalidInput, r.X, r.Y)
	}
	return nil
}

// RegionFromGeometry converts a window geometry into a capture region.
func RegionFromGeometry(g Geometry) Region {
	return Region{X: g.X, Y: g.Y, Width: g.Width, Height: g.Height}
}
