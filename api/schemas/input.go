// api/schemas/input.go
package schemas

// MouseEventType is the kind of low-level pointer event.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
	MouseWheel   MouseEventType = "mouseWheel"
)

// MouseButton identifies a pointer button.
type MouseButton string

const (
	ButtonNone   MouseButton = "none"
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// IsValid reports whether the button is one a click may use.
func (b MouseButton) IsValid() bool {
	switch b {
	case ButtonLeft, ButtonRight, ButtonMiddle:
		return true
	}
	return false
}

// MouseEventData is the backend-agnostic payload for a pointer event.
type MouseEventData struct {
	Type       MouseEventType
	X          float64
	Y          float64
	Button     MouseButton
	ClickCount int
	// Buttons is the held-button bitfield (1 left, 2 right, 4 middle).
	Buttons int64
	DeltaX  float64
	DeltaY  float64
}

// KeyModifier is a bitmask of held modifier keys.
type KeyModifier int

const (
	ModNone  KeyModifier = 0
	ModAlt   KeyModifier = 1
	ModCtrl  KeyModifier = 2
	ModMeta  KeyModifier = 4
	ModShift KeyModifier = 8
)

// KeyEventData is a structured key press, such as Ctrl+A.
type KeyEventData struct {
	Key       string
	Modifiers KeyModifier
}
