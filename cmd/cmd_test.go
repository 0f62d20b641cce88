// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/agent"
	"github.com/Vrooli/agent-s2/internal/audit"
	"github.com/Vrooli/agent-s2/internal/config"
	"github.com/Vrooli/agent-s2/internal/observability"
	"github.com/Vrooli/agent-s2/internal/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errFactory = errors.New("factory failed")

// recordingFactory captures the config each command builds components from
// and refuses to build them.
type recordingFactory struct {
	calls int
	cfg   config.Interface
}

func (f *recordingFactory) Create(_ context.Context, cfg config.Interface, _ *zap.Logger) (*service.Components, error) {
	f.calls++
	f.cfg = cfg
	return nil, errFactory
}

// runCLI executes the command tree in a scratch working directory so no
// stray config.yaml is picked up.
func runCLI(t *testing.T, factory service.ComponentFactory, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	root := newRootCommand(factory)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, &recordingFactory{}, "version")
	require.NoError(t, err)
	assert.Equal(t, "agent-s2 version dev\n", out)

	out, err = runCLI(t, &recordingFactory{}, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "agent-s2 version dev")
}

func TestHelpListsCommands(t *testing.T) {
	out, err := runCLI(t, &recordingFactory{}, "--help")
	require.NoError(t, err)
	for _, name := range []string{"run", "submit", "plan", "capture", "windows", "browser", "llm", "audit", "version"} {
		assert.Contains(t, out, name)
	}
}

func TestArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "run needs a task", args: []string{"run"}},
		{name: "submit needs a task", args: []string{"submit"}},
		{name: "plan needs a goal", args: []string{"plan"}},
		{name: "focus needs an app", args: []string{"windows", "focus"}},
		{name: "capture takes no args", args: []string{"capture", "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := &recordingFactory{}
			_, err := runCLI(t, factory, tt.args...)
			require.Error(t, err)
			assert.Zero(t, factory.calls)
		})
	}
}

func TestFactoryErrorPropagates(t *testing.T) {
	factory := &recordingFactory{}
	_, err := runCLI(t, factory, "run", "open", "firefox")
	require.Error(t, err)
	assert.ErrorIs(t, err, errFactory)
	assert.Equal(t, 1, factory.calls)
}

func TestPlanBuildsComponentsWithAI(t *testing.T) {
	factory := &recordingFactory{}
	_, err := runCLI(t, factory, "plan", "--no-screenshot", "--context", "on the work laptop", "set", "up", "a", "blog")
	require.Error(t, err)
	assert.ErrorIs(t, err, errFactory)
	assert.Equal(t, 1, factory.calls)
	require.NotNil(t, factory.cfg)
	assert.True(t, factory.cfg.AI().Enabled)
}

func TestRunKeepsAIEnabledButToolsDisableIt(t *testing.T) {
	factory := &recordingFactory{}
	_, _ = runCLI(t, factory, "run", "open", "firefox")
	require.NotNil(t, factory.cfg)
	assert.True(t, factory.cfg.AI().Enabled)

	for _, args := range [][]string{
		{"windows"},
		{"capture"},
		{"browser", "health"},
		{"llm", "probe"},
	} {
		factory := &recordingFactory{}
		_, err := runCLI(t, factory, args...)
		assert.ErrorIs(t, err, errFactory, "%v", args)
		require.NotNil(t, factory.cfg, "%v", args)
		assert.False(t, factory.cfg.AI().Enabled, "%v", args)
	}
}

func TestConfigFileAndEnvironment(t *testing.T) {
	path := writeConfig(t, "security:\n  profile: strict\ncapture:\n  quality: 70\n")

	factory := &recordingFactory{}
	_, _ = runCLI(t, factory, "--config", path, "windows")
	require.NotNil(t, factory.cfg)
	assert.Equal(t, config.ProfileStrict, factory.cfg.Security().Profile)
	assert.Equal(t, 70, factory.cfg.Capture().Quality)

	t.Setenv("SECURITY_PROFILE", "permissive")
	factory = &recordingFactory{}
	_, _ = runCLI(t, factory, "--config", path, "windows")
	require.NotNil(t, factory.cfg)
	assert.Equal(t, config.ProfilePermissive, factory.cfg.Security().Profile)
}

func TestConfigErrors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := runCLI(t, &recordingFactory{}, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "windows")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize configuration")
	})

	t.Run("invalid value", func(t *testing.T) {
		path := writeConfig(t, "capture:\n  quality: 0\n")
		_, err := runCLI(t, &recordingFactory{}, "--config", path, "windows")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "capture.quality")
	})
}

func TestSecurityProfileFlag(t *testing.T) {
	factory := &recordingFactory{}
	_, _ = runCLI(t, factory, "--security-profile", "strict", "windows")
	require.NotNil(t, factory.cfg)
	assert.Equal(t, config.ProfileStrict, factory.cfg.Security().Profile)

	factory = &recordingFactory{}
	_, _ = runCLI(t, factory, "--security-profile", "Permissive", "windows")
	require.NotNil(t, factory.cfg)
	assert.Equal(t, config.ProfilePermissive, factory.cfg.Security().Profile)

	factory = &recordingFactory{}
	_, err := runCLI(t, factory, "--security-profile", "paranoid", "windows")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --security-profile")
	assert.Zero(t, factory.calls)
}

func TestCaptureRejectsBadRegionBeforeBuilding(t *testing.T) {
	factory := &recordingFactory{}
	_, err := runCLI(t, factory, "capture", "--region", "1,2,3")
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrInvalidInput)
	assert.Zero(t, factory.calls)
}

func TestParseRegion(t *testing.T) {
	r, err := parseRegion(" 10, 20,300 ,400")
	require.NoError(t, err)
	assert.Equal(t, schemas.Region{X: 10, Y: 20, Width: 300, Height: 400}, r)

	for _, bad := range []string{"", "1,2,3", "a,2,3,4", "1,2,0,4", "1,2,3,-4"} {
		_, err := parseRegion(bad)
		assert.ErrorIs(t, err, schemas.ErrInvalidInput, bad)
	}
}

func TestAuditEventsReadsDayFile(t *testing.T) {
	logDir := t.TempDir()
	l := audit.NewLogger(logDir, zap.NewNop())
	now := time.Now().UTC()
	require.NoError(t, l.Write(schemas.SecurityEvent{ID: "low", Timestamp: now, EventType: "key_press", Severity: schemas.SeverityLow}))
	require.NoError(t, l.Write(schemas.SecurityEvent{ID: "crit", Timestamp: now, EventType: "key_press", Severity: schemas.SeverityCritical, RiskScore: 95}))
	require.NoError(t, l.Close())

	t.Setenv("AGENT_S2_AUDIT_LOG_DIR", logDir)
	factory := &recordingFactory{}
	out, err := runCLI(t, factory, "audit", "events", "--min-severity", "high")
	require.NoError(t, err)
	assert.Zero(t, factory.calls)

	var got []schemas.SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "crit", got[0].ID)

	out, err = runCLI(t, factory, "audit", "events", "--day", "1999-01-01")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestAuditFlagValidation(t *testing.T) {
	_, err := runCLI(t, &recordingFactory{}, "audit", "events", "--min-severity", "extreme")
	assert.ErrorIs(t, err, schemas.ErrInvalidInput)

	_, err = runCLI(t, &recordingFactory{}, "audit", "events", "--day", "yesterday")
	assert.ErrorIs(t, err, schemas.ErrInvalidInput)
}

func TestMinRiskFor(t *testing.T) {
	assert.Zero(t, minRiskFor(""))
	assert.Zero(t, minRiskFor(schemas.SeverityLow))
	for _, sev := range []schemas.Severity{schemas.SeverityMedium, schemas.SeverityHigh, schemas.SeverityCritical} {
		risk := minRiskFor(sev)
		assert.Equal(t, sev, schemas.SeverityForRisk(risk))
		assert.NotEqual(t, sev, schemas.SeverityForRisk(risk-1))
	}
}

func TestPrintResult(t *testing.T) {
	res := &agent.TaskResult{
		TaskID:    "t-1",
		Summary:   "1 of 2 actions succeeded",
		Reasoning: "open then type",
		ActionsTaken: []agent.ActionOutcome{
			{Index: 0, Action: schemas.Action{Type: schemas.ActionKey, Key: "ctrl+l"}, Status: agent.StatusSuccess},
			{
				Index:     1,
				Action:    schemas.Action{Type: schemas.ActionTypeText, Text: "sudo rm"},
				Status:    agent.StatusBlocked,
				ErrorCode: agent.ErrCodeBlockedBySecurity,
				Error:     "dangerous command",
				Warnings:  []string{"focus not verified"},
			},
		},
	}

	var out bytes.Buffer
	require.NoError(t, printResult(&out, res, false))
	text := out.String()
	assert.Contains(t, text, "Task t-1: 1 of 2 actions succeeded")
	assert.Contains(t, text, "Reasoning: open then type")
	assert.Contains(t, text, "[1] success  key(ctrl+l)")
	assert.Contains(t, text, "(BLOCKED_BY_SECURITY: dangerous command)")
	assert.Contains(t, text, "warning: focus not verified")

	out.Reset()
	require.NoError(t, printResult(&out, res, true))
	var decoded agent.TaskResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "t-1", decoded.TaskID)
	assert.Len(t, decoded.ActionsTaken, 2)
}
