// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "agent-s2", cfg.Logger().ServiceName)
	assert.True(t, cfg.AI().Enabled)
	assert.Equal(t, "ollama", cfg.AI().Provider)
	assert.Equal(t, 2*time.Second, cfg.AI().ProbeTimeout)
	assert.Equal(t, ProfileModerate, cfg.Security().Profile)
	assert.Equal(t, time.Second, cfg.Desktop().CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.Desktop().CommandTimeout)
	assert.Equal(t, 4096, cfg.Capture().MaxDimension)
	assert.Equal(t, 50, cfg.Capture().MaxBytesMB)
	assert.Equal(t, []string{"import", "-window", "root", "png:-"}, cfg.Capture().Command)
	assert.Equal(t, 1500.0, cfg.Watchdog().MemoryWarningMB)
	assert.Equal(t, 5*time.Minute, cfg.Watchdog().CrashWindow)
	assert.Equal(t, 5*time.Minute, cfg.Search().HealthTTL)
	assert.Equal(t, 1000, cfg.Audit().RingSize)
	assert.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("unknown security profile", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.SetSecurityProfile("paranoid")
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "security.profile")
	})

	t.Run("unsupported provider", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.AICfg.Provider = "openai"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "only ollama")
	})

	t.Run("capture quality out of range", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.CaptureCfg.Quality = 0
		assert.Error(t, cfg.Validate())
		cfg.CaptureCfg.Quality = 101
		assert.Error(t, cfg.Validate())
	})

	t.Run("max dimension above 4096", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.CaptureCfg.MaxDimension = 8192
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_dimension")
	})

	t.Run("non-positive timeouts", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.AICfg.Timeout = 0
		assert.Error(t, cfg.Validate())

		cfg = NewDefaultConfig()
		cfg.DesktopCfg.FocusTimeout = 0
		assert.Error(t, cfg.Validate())
	})
}

// -- Environment Binding Tests --

func TestNewConfigFromViperEnvironment(t *testing.T) {
	t.Setenv("AI_ENABLED", "false")
	t.Setenv("AI_MODEL", "llava:13b")
	t.Setenv("SECURITY_PROFILE", "strict")
	t.Setenv("DISPLAY", ":99")
	t.Setenv("HOST_MODE_ENABLED", "true")
	t.Setenv("HOST_FORBIDDEN_PATHS", "/etc/shadow,/root")
	t.Setenv("AGENT_S2_SECURITY_WEBHOOK_URL", "http://hooks.local/agent")
	t.Setenv("STEALTH_MODE_ENABLED", "true")
	t.Setenv("AGENT_S2_CAPTURE_QUALITY", "60")

	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.False(t, cfg.AI().Enabled)
	assert.Equal(t, "llava:13b", cfg.AI().Model)
	assert.Equal(t, ProfileStrict, cfg.Security().Profile)
	assert.Equal(t, ":99", cfg.Desktop().Display)
	assert.True(t, cfg.Audit().HostModeEnabled)
	assert.Equal(t, []string{"/etc/shadow", "/root"}, cfg.Audit().ForbiddenPaths)
	assert.Equal(t, "http://hooks.local/agent", cfg.Audit().WebhookURL)
	assert.True(t, cfg.Stealth().Enabled)
	assert.Equal(t, 60, cfg.Capture().Quality)
}

func TestNewConfigFromViperRejectsInvalid(t *testing.T) {
	t.Setenv("SECURITY_PROFILE", "lenient")

	v := viper.New()
	SetDefaults(v)
	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestAITimeoutAcceptsBareSeconds(t *testing.T) {
	tests := []struct {
		env  string
		want time.Duration
	}{
		{env: "120", want: 120 * time.Second},
		{env: " 45 ", want: 45 * time.Second},
		{env: "1.5", want: 1500 * time.Millisecond},
		{env: "90s", want: 90 * time.Second},
		{env: "2m", want: 2 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("AI_TIMEOUT", tt.env)
			v := viper.New()
			SetDefaults(v)
			cfg, err := NewConfigFromViper(v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.AI().Timeout)
			assert.Equal(t, 2*time.Second, cfg.AI().ProbeTimeout)
		})
	}

	t.Run("yaml integer", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("desktop.command_timeout", 30)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, cfg.Desktop().CommandTimeout)
	})

	t.Run("garbage still fails", func(t *testing.T) {
		t.Setenv("AI_TIMEOUT", "soon")
		v := viper.New()
		SetDefaults(v)
		_, err := NewConfigFromViper(v)
		require.Error(t, err)
	})
}

func TestSecurityProfileIsCaseInsensitive(t *testing.T) {
	for _, env := range []string{"Strict", "STRICT", " strict "} {
		t.Run(env, func(t *testing.T) {
			t.Setenv("SECURITY_PROFILE", env)
			v := viper.New()
			SetDefaults(v)
			cfg, err := NewConfigFromViper(v)
			require.NoError(t, err)
			assert.Equal(t, ProfileStrict, cfg.Security().Profile)
		})
	}

	cfg := NewDefaultConfig()
	cfg.SetSecurityProfile("Permissive")
	assert.Equal(t, ProfilePermissive, cfg.Security().Profile)
	assert.NoError(t, cfg.Validate())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"/a", "/b", "/c"}, splitList([]string{"/a,/b", " /c "}))
	assert.Nil(t, splitList(nil))
}
