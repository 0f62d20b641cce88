// api/schemas/errors.go
package schemas

import "errors"

// Error kinds surfaced across component boundaries. Callers match them with errors.Is.
var (
	ErrNotReady            = errors.New("not ready")
	ErrInvalidInput        = errors.New("invalid input")
	ErrBlockedBySecurity   = errors.New("blocked by security policy")
	ErrWindowFocusFailed   = errors.New("window focus failed")
	ErrExternalUnavailable = errors.New("external dependency unavailable")
	ErrBrowserUnhealthy    = errors.New("browser unhealthy")
	ErrTransient           = errors.New("transient failure")
)
