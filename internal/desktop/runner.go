// internal/desktop/runner.go
package desktop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/Vrooli/agent-s2/api/schemas"
)

// DefaultCommandTimeout bounds every external desktop tool invocation.
const DefaultCommandTimeout = 10 * time.Second

// Runner executes short-lived desktop tools (wmctrl, xprop, xdotool, capture commands).
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Spawner starts long-lived applications detached from the agent.
type Spawner interface {
	Spawn(ctx context.Context, name string, args []string, env []string) (int, error)
}

// ExecRunner runs commands against one X11 display with a hard timeout.
type ExecRunner struct {
	Display string
	Timeout time.Duration
}

var (
	_ Runner  = (*ExecRunner)(nil)
	_ Spawner = (*ExecRunner)(nil)
)

// NewExecRunner returns a runner for display with the given timeout (0 means the default).
func NewExecRunner(display string, timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &ExecRunner{Display: display, Timeout: timeout}
}

func (r *ExecRunner) env(extra []string) []string {
	env := os.Environ()
	if r.Display != "" {
		env = append(env, "DISPLAY="+r.Display)
	}
	return append(env, extra...)
}

// Run executes name and returns its stdout. Timeouts map to ErrTransient and a
// missing binary to ErrExternalUnavailable.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = r.env(nil)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w: %s timed out after %s", schemas.ErrTransient, name, r.Timeout)
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s not installed", schemas.ErrExternalUnavailable, name)
		}
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Spawn starts name in its own process group and does not wait for it.
func (r *ExecRunner) Spawn(_ context.Context, name string, args []string, env []string) (int, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = r.env(env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s not installed", schemas.ErrExternalUnavailable, name)
		}
		return 0, fmt.Errorf("starting %s: %w", name, err)
	}
	pid := cmd.Process.Pid
	// Reap in the background so the child never lingers as a zombie.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}
