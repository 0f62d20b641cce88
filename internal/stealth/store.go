// internal/stealth/store.go
package stealth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/config"
)

// ErrProfileNotFound is returned by Load for a name that has never been saved.
var ErrProfileNotFound = errors.New("stealth profile not found")

var profileNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

const profileFile = "profile.json"

// Profile is a persisted browser identity. Its Firefox profile directory
// keeps cookies and local storage between runs.
type Profile struct {
	Name                string            `json:"profile_id"`
	UserAgent           string            `json:"user_agent,omitempty"`
	Viewport            schemas.Size      `json:"viewport"`
	Timezone            string            `json:"timezone,omitempty"`
	Locale              string            `json:"locale,omitempty"`
	WebGLVendor         string            `json:"webgl_vendor,omitempty"`
	WebGLRenderer       string            `json:"webgl_renderer,omitempty"`
	HardwareConcurrency int               `json:"hardware_concurrency,omitempty"`
	DeviceMemory        int               `json:"device_memory,omitempty"`
	PixelRatio          float64           `json:"pixel_ratio,omitempty"`
	Plugins             []string          `json:"plugins,omitempty"`
	Fonts               []string          `json:"fonts,omitempty"`
	Preferences         map[string]string `json:"preferences,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// Store keeps profiles under <root>/<name>/.
type Store struct {
	root    string
	enabled bool
	active  string
	logger  *zap.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewStore opens the store described by cfg. The root is created lazily.
func NewStore(cfg config.StealthConfig, logger *zap.Logger) (*Store, error) {
	root, err := homedir.Expand(cfg.SessionStoragePath)
	if err != nil {
		return nil, fmt.Errorf("expanding session storage path: %w", err)
	}
	active := cfg.ActiveProfile
	if active == "" {
		active = "default"
	}
	return &Store{
		root:    root,
		enabled: cfg.Enabled,
		active:  active,
		logger:  logger.Named("stealth"),
		now:     time.Now,
	}, nil
}

func (s *Store) Root() string   { return s.root }
func (s *Store) Enabled() bool  { return s.enabled }
func (s *Store) Active() string { return s.active }

func (s *Store) dir(name string) (string, error) {
	if !profileNameRe.MatchString(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: invalid profile name %q", schemas.ErrInvalidInput, name)
	}
	return filepath.Join(s.root, name), nil
}

// FirefoxDir returns the Firefox profile directory of name.
func (s *Store) FirefoxDir(name string) (string, error) {
	d, err := s.dir(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "firefox"), nil
}

// Load reads a saved profile.
func (s *Store) Load(name string) (*Profile, error) {
	d, err := s.dir(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(d, profileFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", name, err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding profile %s: %w", name, err)
	}
	return &p, nil
}

// Save writes p atomically, stamping its timestamps.
func (s *Store) Save(p *Profile) error {
	d, err := s.dir(p.Name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	if err := os.MkdirAll(d, 0o700); err != nil {
		return fmt.Errorf("creating profile directory: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding profile %s: %w", p.Name, err)
	}
	tmp, err := os.CreateTemp(d, profileFile+".*")
	if err != nil {
		return fmt.Errorf("creating temp profile file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing profile %s: %w", p.Name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(d, profileFile))
}

// List returns the names of saved profiles, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), profileFile)); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a profile and its browser data.
func (s *Store) Delete(name string) error {
	d, err := s.dir(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(d)
}

// LaunchArgs returns the extra command-line arguments for launching app. With
// stealth enabled Firefox gets "-profile <dir>" of the active profile, which
// is created on first use; every other case yields no arguments.
func (s *Store) LaunchArgs(app string) ([]string, error) {
	if !s.enabled || !isFirefox(app) {
		return nil, nil
	}
	if _, err := s.Load(s.active); errors.Is(err, ErrProfileNotFound) {
		if err := s.Save(&Profile{Name: s.active}); err != nil {
			return nil, err
		}
		s.logger.Info("Created stealth profile", zap.String("profile", s.active))
	} else if err != nil {
		return nil, err
	}
	dir, err := s.FirefoxDir(s.active)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating firefox profile directory: %w", err)
	}
	return []string{"-profile", dir}, nil
}
