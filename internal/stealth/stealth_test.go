package stealth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/config"
	"github.com/Vrooli/agent-s2/internal/watchdog"
)

func newTestStore(t *testing.T, enabled bool) *Store {
	t.Helper()
	s, err := NewStore(config.StealthConfig{
		Enabled:            enabled,
		SessionStoragePath: t.TempDir(),
		ActiveProfile:      "work",
	}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestStoreSaveLoadListDelete(t *testing.T) {
	s := newTestStore(t, true)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	_, err := s.Load("work")
	require.ErrorIs(t, err, ErrProfileNotFound)

	p := &Profile{Name: "work", Locale: "en-US", Preferences: map[string]string{"privacy.resistFingerprinting": "true"}}
	require.NoError(t, s.Save(p))
	require.NoError(t, s.Save(&Profile{Name: "alt"}))

	got, err := s.Load("work")
	require.NoError(t, err)
	assert.Equal(t, "en-US", got.Locale)
	assert.Equal(t, fixed, got.CreatedAt)
	assert.Equal(t, "true", got.Preferences["privacy.resistFingerprinting"])

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alt", "work"}, names)

	require.NoError(t, s.Delete("alt"))
	names, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, names)
}

func TestStoreRejectsPathNames(t *testing.T) {
	s := newTestStore(t, true)
	for _, name := range []string{"../etc", "a/b", "", ".hidden"} {
		_, err := s.Load(name)
		assert.ErrorIs(t, err, schemas.ErrInvalidInput, name)
		assert.ErrorIs(t, s.Save(&Profile{Name: name}), schemas.ErrInvalidInput, name)
	}
}

func TestLaunchArgs(t *testing.T) {
	s := newTestStore(t, true)

	args, err := s.LaunchArgs("Firefox ESR")
	require.NoError(t, err)
	want := filepath.Join(s.Root(), "work", "firefox")
	assert.Equal(t, []string{"-profile", want}, args)
	info, err := os.Stat(want)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = s.Load("work")
	assert.NoError(t, err, "active profile is created on first launch")

	args, err = s.LaunchArgs("terminal")
	require.NoError(t, err)
	assert.Nil(t, args)

	disabled := newTestStore(t, false)
	args, err = disabled.LaunchArgs("firefox")
	require.NoError(t, err)
	assert.Nil(t, args)
}

type fakeWindows struct {
	windows  []schemas.Window
	focusErr map[string]bool
	focused  []string
}

func (f *fakeWindows) WindowsFor(_ context.Context, app string) ([]schemas.Window, error) {
	return f.windows, nil
}

func (f *fakeWindows) Focus(_ context.Context, id string) (bool, error) {
	if f.focusErr[id] {
		return false, nil
	}
	f.focused = append(f.focused, id)
	return true, nil
}

type fakeKeys struct{ pressed []string }

func (f *fakeKeys) Press(_ context.Context, keys ...string) error {
	f.pressed = append(f.pressed, keys...)
	return nil
}

type fakeCleaner struct {
	result watchdog.CleanupResult
	calls  int
}

func (f *fakeCleaner) EnsureCleanState(context.Context) watchdog.CleanupResult {
	f.calls++
	return f.result
}

func TestResetClosesWindowsThenCleans(t *testing.T) {
	windows := &fakeWindows{windows: []schemas.Window{{WindowID: "0x1"}, {WindowID: "0x2"}}}
	keys := &fakeKeys{}
	cleaner := &fakeCleaner{result: watchdog.CleanupResult{Success: true}}
	r := NewResetter(windows, keys, cleaner, zap.NewNop())
	r.settle = time.Millisecond

	require.NoError(t, r.Reset(context.Background()))
	assert.Equal(t, []string{"0x1", "0x2"}, windows.focused)
	assert.Equal(t, []string{closeWindowCombo, closeWindowCombo}, keys.pressed)
	assert.Equal(t, 1, cleaner.calls)
}

func TestResetReportsEveryFailure(t *testing.T) {
	windows := &fakeWindows{
		windows:  []schemas.Window{{WindowID: "0x1"}},
		focusErr: map[string]bool{"0x1": true},
	}
	cleaner := &fakeCleaner{result: watchdog.CleanupResult{Success: false, Errors: []string{"kill 42: operation not permitted"}}}
	r := NewResetter(windows, &fakeKeys{}, cleaner, zap.NewNop())

	err := r.Reset(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, schemas.ErrWindowFocusFailed))
	assert.True(t, errors.Is(err, schemas.ErrBrowserUnhealthy))
	assert.Contains(t, err.Error(), "operation not permitted")
}

func TestResetWithoutCleanerFails(t *testing.T) {
	r := NewResetter(nil, nil, nil, zap.NewNop())
	assert.ErrorIs(t, r.Reset(context.Background()), schemas.ErrNotReady)
}
