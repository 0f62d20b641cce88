// internal/capture/grabber.go
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/desktop"
)

// Grabber produces a full-screen image of the display.
type Grabber interface {
	Grab(ctx context.Context) (image.Image, error)
}

// CommandGrabber shells out to a capture tool that writes PNG or JPEG to stdout,
// e.g. `import -window root png:-` or `scrot -o /dev/stdout`.
type CommandGrabber struct {
	runner  desktop.Runner
	command []string
}

var _ Grabber = (*CommandGrabber)(nil)

// NewCommandGrabber returns a grabber running command through runner.
func NewCommandGrabber(runner desktop.Runner, command []string) *CommandGrabber {
	return &CommandGrabber{runner: runner, command: command}
}

func (g *CommandGrabber) Grab(ctx context.Context) (image.Image, error) {
	if len(g.command) == 0 {
		return nil, fmt.Errorf("%w: no capture command configured", schemas.ErrNotReady)
	}
	out, err := g.runner.Run(ctx, g.command[0], g.command[1:]...)
	if err != nil {
		return nil, fmt.Errorf("capturing screen: %w", err)
	}
	if err := checkMagic(out); err != nil {
		return nil, fmt.Errorf("capture tool output: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decoding capture output: %w", err)
	}
	return img, nil
}
