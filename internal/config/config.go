// File: internal/config/config.go
package config

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// Components depend on it rather than on *Config so tests can swap values freely.
type Interface interface {
	Logger() LoggerConfig
	AI() AIConfig
	Security() SecurityConfig
	Desktop() DesktopConfig
	Capture() CaptureConfig
	Humanoid() HumanoidConfig
	Watchdog() WatchdogConfig
	Search() SearchConfig
	Audit() AuditConfig
	Stealth() StealthConfig
	Agent() AgentConfig

	SetSecurityProfile(profile string)
	SetAIEnabled(bool)
	SetHumanoidEnabled(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	AICfg       AIConfig       `mapstructure:"ai" yaml:"ai"`
	SecurityCfg SecurityConfig `mapstructure:"security" yaml:"security"`
	DesktopCfg  DesktopConfig  `mapstructure:"desktop" yaml:"desktop"`
	CaptureCfg  CaptureConfig  `mapstructure:"capture" yaml:"capture"`
	HumanoidCfg HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
	WatchdogCfg WatchdogConfig `mapstructure:"browser" yaml:"browser"`
	SearchCfg   SearchConfig   `mapstructure:"search" yaml:"search"`
	AuditCfg    AuditConfig    `mapstructure:"audit" yaml:"audit"`
	StealthCfg  StealthConfig  `mapstructure:"stealth" yaml:"stealth"`
	AgentCfg    AgentConfig    `mapstructure:"agent" yaml:"agent"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) AI() AIConfig             { return c.AICfg }
func (c *Config) Security() SecurityConfig { return c.SecurityCfg }
func (c *Config) Desktop() DesktopConfig   { return c.DesktopCfg }
func (c *Config) Capture() CaptureConfig   { return c.CaptureCfg }
func (c *Config) Humanoid() HumanoidConfig { return c.HumanoidCfg }
func (c *Config) Watchdog() WatchdogConfig { return c.WatchdogCfg }
func (c *Config) Search() SearchConfig     { return c.SearchCfg }
func (c *Config) Audit() AuditConfig       { return c.AuditCfg }
func (c *Config) Stealth() StealthConfig   { return c.StealthCfg }
func (c *Config) Agent() AgentConfig       { return c.AgentCfg }

func (c *Config) SetSecurityProfile(profile string) {
	c.SecurityCfg.Profile = NormalizeProfile(profile)
}
func (c *Config) SetAIEnabled(b bool)       { c.AICfg.Enabled = b }
func (c *Config) SetHumanoidEnabled(b bool) { c.HumanoidCfg.Enabled = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the terminal color of each log level.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ProviderOllama is the only supported model endpoint shape.
const ProviderOllama = "ollama"

// AIConfig configures the local model gateway.
type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Provider string        `mapstructure:"provider" yaml:"provider"`
	Model    string        `mapstructure:"model" yaml:"model"`
	APIURL   string        `mapstructure:"api_url" yaml:"api_url"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// FallbackHosts are probed, in order, after APIURL.
	FallbackHosts []string      `mapstructure:"fallback_hosts" yaml:"fallback_hosts"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
}

// Security profiles.
const (
	ProfileStrict     = "strict"
	ProfileModerate   = "moderate"
	ProfilePermissive = "permissive"
)

// SecurityConfig configures the action security validator.
type SecurityConfig struct {
	Profile        string   `mapstructure:"profile" yaml:"profile"`
	AllowedDomains []string `mapstructure:"allowed_domains" yaml:"allowed_domains"`
	BlockedDomains []string `mapstructure:"blocked_domains" yaml:"blocked_domains"`
}

// DesktopConfig configures X11 access and the window registry.
type DesktopConfig struct {
	Display        string        `mapstructure:"display" yaml:"display"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	FocusTimeout   time.Duration `mapstructure:"focus_timeout" yaml:"focus_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	StartTimeout   time.Duration `mapstructure:"start_timeout" yaml:"start_timeout"`
	LaunchGrace    time.Duration `mapstructure:"launch_grace" yaml:"launch_grace"`
	ScreenWidth    int           `mapstructure:"screen_width" yaml:"screen_width"`
	ScreenHeight   int           `mapstructure:"screen_height" yaml:"screen_height"`
}

// CaptureConfig configures screen capture.
type CaptureConfig struct {
	// Command must write a PNG of the root window to stdout.
	Command            []string      `mapstructure:"command" yaml:"command"`
	Format             string        `mapstructure:"format" yaml:"format"`
	Quality            int           `mapstructure:"quality" yaml:"quality"`
	MaxDimension       int           `mapstructure:"max_dimension" yaml:"max_dimension"`
	MaxBytesMB         int           `mapstructure:"max_bytes_mb" yaml:"max_bytes_mb"`
	WindowGrace        time.Duration `mapstructure:"window_grace" yaml:"window_grace"`
	PixelDiffThreshold int           `mapstructure:"pixel_diff_threshold" yaml:"pixel_diff_threshold"`
}

// HumanoidConfig tunes the synthetic pointer and keyboard model.
type HumanoidConfig struct {
	Enabled             bool    `mapstructure:"enabled" yaml:"enabled"`
	FittsA              float64 `mapstructure:"fitts_a" yaml:"fitts_a"`
	FittsB              float64 `mapstructure:"fitts_b" yaml:"fitts_b"`
	PerlinAmplitude     float64 `mapstructure:"perlin_amplitude" yaml:"perlin_amplitude"`
	GaussianStrength    float64 `mapstructure:"gaussian_strength" yaml:"gaussian_strength"`
	ClickHoldMinMs      int     `mapstructure:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs      int     `mapstructure:"click_hold_max_ms" yaml:"click_hold_max_ms"`
	KeyHoldMeanMs       float64 `mapstructure:"key_hold_mean_ms" yaml:"key_hold_mean_ms"`
	KeyHoldStdDevMs     float64 `mapstructure:"key_hold_std_dev_ms" yaml:"key_hold_std_dev_ms"`
	TypeIntervalMs      float64 `mapstructure:"type_interval_ms" yaml:"type_interval_ms"`
	FatigueIncreaseRate float64 `mapstructure:"fatigue_increase_rate" yaml:"fatigue_increase_rate"`
	FatigueRecoveryRate float64 `mapstructure:"fatigue_recovery_rate" yaml:"fatigue_recovery_rate"`
}

// WatchdogConfig configures Firefox health checks and cleanup.
type WatchdogConfig struct {
	ProcessName       string        `mapstructure:"process_name" yaml:"process_name"`
	ProfileRoot       string        `mapstructure:"profile_root" yaml:"profile_root"`
	ProcRoot          string        `mapstructure:"proc_root" yaml:"proc_root"`
	MemoryWarningMB   float64       `mapstructure:"memory_warning_mb" yaml:"memory_warning_mb"`
	CPUWarningPercent float64       `mapstructure:"cpu_warning_percent" yaml:"cpu_warning_percent"`
	MaxProcesses      int           `mapstructure:"max_processes" yaml:"max_processes"`
	CrashThreshold    int           `mapstructure:"crash_threshold" yaml:"crash_threshold"`
	CrashWindow       time.Duration `mapstructure:"crash_window" yaml:"crash_window"`
	CrashLogSize      int           `mapstructure:"crash_log_size" yaml:"crash_log_size"`
	TermGrace         time.Duration `mapstructure:"term_grace" yaml:"term_grace"`
	Settle            time.Duration `mapstructure:"settle" yaml:"settle"`
	WatchInterval     time.Duration `mapstructure:"watch_interval" yaml:"watch_interval"`
}

// SearchConfig configures the search router.
type SearchConfig struct {
	SearxngURL    string        `mapstructure:"searxng_url" yaml:"searxng_url"`
	HealthTTL     time.Duration `mapstructure:"health_ttl" yaml:"health_ttl"`
	HealthTimeout time.Duration `mapstructure:"health_timeout" yaml:"health_timeout"`
	Language      string        `mapstructure:"language" yaml:"language"`
}

// SMTPConfig configures the optional security e-mail sink.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	From     string `mapstructure:"from" yaml:"from"`
}

// AuditConfig configures the security monitor and its sinks.
type AuditConfig struct {
	HostModeEnabled bool          `mapstructure:"host_mode_enabled" yaml:"host_mode_enabled"`
	ForbiddenPaths  []string      `mapstructure:"forbidden_paths" yaml:"forbidden_paths"`
	LogDir          string        `mapstructure:"log_dir" yaml:"log_dir"`
	IncidentDir     string        `mapstructure:"incident_dir" yaml:"incident_dir"`
	RingSize        int           `mapstructure:"ring_size" yaml:"ring_size"`
	NotifyThreshold int           `mapstructure:"notify_threshold" yaml:"notify_threshold"`
	NotifyInterval  time.Duration `mapstructure:"notify_interval" yaml:"notify_interval"`
	SMTP            SMTPConfig    `mapstructure:"smtp" yaml:"smtp"`
	SecurityEmail   string        `mapstructure:"security_email" yaml:"security_email"`
	WebhookURL      string        `mapstructure:"webhook_url" yaml:"webhook_url"`
	PostgresDSN     string        `mapstructure:"postgres_dsn" yaml:"-"`
}

// StealthConfig configures the stealth profile collaborator.
type StealthConfig struct {
	Enabled            bool   `mapstructure:"enabled" yaml:"enabled"`
	SessionStoragePath string `mapstructure:"session_storage_path" yaml:"session_storage_path"`
	ActiveProfile      string `mapstructure:"active_profile" yaml:"active_profile"`
}

// AgentConfig configures the task executor.
type AgentConfig struct {
	DebugDir       string        `mapstructure:"debug_dir" yaml:"debug_dir"`
	ScreenshotDir  string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	TaskTimeout    time.Duration `mapstructure:"task_timeout" yaml:"task_timeout"`
	MaxTaskRecords int           `mapstructure:"max_task_records" yaml:"max_task_records"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "agent-s2")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- AI --
	v.SetDefault("ai.enabled", true)
	v.SetDefault("ai.provider", ProviderOllama)
	v.SetDefault("ai.model", "llama3.2-vision:11b")
	v.SetDefault("ai.api_url", "http://localhost:11434")
	v.SetDefault("ai.timeout", "120s")
	v.SetDefault("ai.probe_timeout", "2s")
	v.SetDefault("ai.fallback_hosts", []string{
		"http://localhost:11434",
		"http://ollama:11434",
		"http://host.docker.internal:11434",
		"http://172.17.0.1:11434",
	})

	// -- Security --
	v.SetDefault("security.profile", ProfileModerate)
	v.SetDefault("security.allowed_domains", []string{})
	v.SetDefault("security.blocked_domains", []string{})

	// -- Desktop --
	v.SetDefault("desktop.display", ":0")
	v.SetDefault("desktop.cache_ttl", "1s")
	v.SetDefault("desktop.focus_timeout", "2s")
	v.SetDefault("desktop.command_timeout", "10s")
	v.SetDefault("desktop.start_timeout", "2s")
	v.SetDefault("desktop.launch_grace", "2s")
	v.SetDefault("desktop.screen_width", 1920)
	v.SetDefault("desktop.screen_height", 1080)

	// -- Capture --
	v.SetDefault("capture.command", []string{"import", "-window", "root", "png:-"})
	v.SetDefault("capture.format", "png")
	v.SetDefault("capture.quality", 85)
	v.SetDefault("capture.max_dimension", 4096)
	v.SetDefault("capture.max_bytes_mb", 50)
	v.SetDefault("capture.window_grace", "200ms")
	v.SetDefault("capture.pixel_diff_threshold", 30)

	// -- Humanoid --
	v.SetDefault("humanoid.enabled", true)
	v.SetDefault("humanoid.fitts_a", 120.0)
	v.SetDefault("humanoid.fitts_b", 110.0)
	v.SetDefault("humanoid.perlin_amplitude", 1.5)
	v.SetDefault("humanoid.gaussian_strength", 0.4)
	v.SetDefault("humanoid.click_hold_min_ms", 45)
	v.SetDefault("humanoid.click_hold_max_ms", 110)
	v.SetDefault("humanoid.key_hold_mean_ms", 60.0)
	v.SetDefault("humanoid.key_hold_std_dev_ms", 15.0)
	v.SetDefault("humanoid.type_interval_ms", 70.0)
	v.SetDefault("humanoid.fatigue_increase_rate", 0.01)
	v.SetDefault("humanoid.fatigue_recovery_rate", 0.02)

	// -- Browser watchdog --
	v.SetDefault("browser.process_name", "firefox")
	v.SetDefault("browser.profile_root", "~/.mozilla/firefox")
	v.SetDefault("browser.proc_root", "/proc")
	v.SetDefault("browser.memory_warning_mb", 1500.0)
	v.SetDefault("browser.cpu_warning_percent", 80.0)
	v.SetDefault("browser.max_processes", 5)
	v.SetDefault("browser.crash_threshold", 3)
	v.SetDefault("browser.crash_window", "5m")
	v.SetDefault("browser.crash_log_size", 100)
	v.SetDefault("browser.term_grace", "1s")
	v.SetDefault("browser.settle", "500ms")
	v.SetDefault("browser.watch_interval", "10s")

	// -- Search --
	v.SetDefault("search.searxng_url", "http://localhost:9200")
	v.SetDefault("search.health_ttl", "5m")
	v.SetDefault("search.health_timeout", "3s")
	v.SetDefault("search.language", "en")

	// -- Audit --
	v.SetDefault("audit.host_mode_enabled", false)
	v.SetDefault("audit.forbidden_paths", []string{})
	v.SetDefault("audit.log_dir", "logs/audit")
	v.SetDefault("audit.incident_dir", "logs/incidents")
	v.SetDefault("audit.ring_size", 1000)
	v.SetDefault("audit.notify_threshold", 40)
	v.SetDefault("audit.notify_interval", "1m")
	v.SetDefault("audit.smtp.port", 587)

	// -- Stealth --
	v.SetDefault("stealth.enabled", false)
	v.SetDefault("stealth.session_storage_path", "~/.agent-s2/sessions")
	v.SetDefault("stealth.active_profile", "default")

	// -- Agent --
	v.SetDefault("agent.debug_dir", "")
	v.SetDefault("agent.screenshot_dir", "screenshots")
	v.SetDefault("agent.task_timeout", "10m")
	v.SetDefault("agent.max_task_records", 200)
}

// envBindings maps configuration keys onto the unprefixed environment knobs
// the desktop container exports.
var envBindings = map[string]string{
	"ai.enabled":                   "AI_ENABLED",
	"ai.provider":                  "AI_PROVIDER",
	"ai.model":                     "AI_MODEL",
	"ai.api_url":                   "AI_API_URL",
	"ai.timeout":                   "AI_TIMEOUT",
	"security.profile":             "SECURITY_PROFILE",
	"desktop.display":              "DISPLAY",
	"audit.host_mode_enabled":      "HOST_MODE_ENABLED",
	"audit.forbidden_paths":        "HOST_FORBIDDEN_PATHS",
	"audit.smtp.host":              "AGENT_S2_SMTP_HOST",
	"audit.smtp.port":              "AGENT_S2_SMTP_PORT",
	"audit.smtp.user":              "AGENT_S2_SMTP_USER",
	"audit.smtp.password":          "AGENT_S2_SMTP_PASSWORD",
	"audit.smtp.from":              "AGENT_S2_SMTP_FROM",
	"audit.security_email":         "AGENT_S2_SECURITY_EMAIL",
	"audit.webhook_url":            "AGENT_S2_SECURITY_WEBHOOK_URL",
	"stealth.enabled":              "STEALTH_MODE_ENABLED",
	"stealth.session_storage_path": "SESSION_STORAGE_PATH",
}

// BindEnvironment wires the generic AGENT_S2_ prefix and the named knobs.
func BindEnvironment(v *viper.Viper) error {
	v.SetEnvPrefix("AGENT_S2")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		// The prefixed form stays valid alongside the short name.
		prefixed := "AGENT_S2_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env, prefixed); err != nil {
			return fmt.Errorf("binding %s to %s: %w", key, env, err)
		}
	}
	return nil
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	if err := BindEnvironment(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.AuditCfg.ForbiddenPaths = splitList(cfg.AuditCfg.ForbiddenPaths)
	cfg.SecurityCfg.Profile = NormalizeProfile(cfg.SecurityCfg.Profile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// decodeHook extends viper's default hooks with bareSecondsHook.
var decodeHook = viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
	mapstructure.DecodeHookFuncType(bareSecondsHook),
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToSliceHookFunc(","),
))

var bareNumber = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// bareSecondsHook decodes a unitless number bound for a time.Duration as
// seconds, so AI_TIMEOUT=120 means two minutes. Values with a unit pass through.
func bareSecondsHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	var secs float64
	switch d := data.(type) {
	case string:
		s := strings.TrimSpace(d)
		if !bareNumber.MatchString(s) {
			return data, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return data, nil
		}
		secs = f
	case int:
		secs = float64(d)
	case int64:
		secs = float64(d)
	case float64:
		secs = d
	default:
		return data, nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// NormalizeProfile lowercases and trims a security profile name.
func NormalizeProfile(profile string) string {
	return strings.ToLower(strings.TrimSpace(profile))
}

// splitList flattens entries that arrived as a single comma or colon separated string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ':' }) {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.AICfg.Validate(); err != nil {
		return fmt.Errorf("ai configuration invalid: %w", err)
	}
	switch c.SecurityCfg.Profile {
	case ProfileStrict, ProfileModerate, ProfilePermissive:
	default:
		return fmt.Errorf("security.profile must be one of strict, moderate, permissive; got %q", c.SecurityCfg.Profile)
	}
	if c.DesktopCfg.CommandTimeout <= 0 || c.DesktopCfg.FocusTimeout <= 0 {
		return fmt.Errorf("desktop timeouts must be positive durations")
	}
	if err := c.CaptureCfg.Validate(); err != nil {
		return fmt.Errorf("capture configuration invalid: %w", err)
	}
	if c.WatchdogCfg.TermGrace <= 0 {
		return fmt.Errorf("browser.term_grace must be a positive duration")
	}
	if c.AuditCfg.RingSize <= 0 {
		return fmt.Errorf("audit.ring_size must be a positive integer")
	}
	return nil
}

// Validate checks the AI gateway settings.
func (a *AIConfig) Validate() error {
	if !strings.EqualFold(a.Provider, ProviderOllama) {
		return fmt.Errorf("ai.provider %q is not supported; only ollama is", a.Provider)
	}
	if a.Timeout <= 0 {
		return fmt.Errorf("ai.timeout must be a positive duration")
	}
	if a.ProbeTimeout <= 0 {
		return fmt.Errorf("ai.probe_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the capture settings.
func (c *CaptureConfig) Validate() error {
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("capture.quality must be between 1 and 100")
	}
	if c.MaxDimension <= 0 || c.MaxDimension > 4096 {
		return fmt.Errorf("capture.max_dimension must be between 1 and 4096")
	}
	if c.Format != "png" && c.Format != "jpeg" {
		return fmt.Errorf("capture.format must be png or jpeg")
	}
	if len(c.Command) == 0 {
		return fmt.Errorf("capture.command is required")
	}
	return nil
}
