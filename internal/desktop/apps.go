// internal/desktop/apps.go
package desktop

import (
	"os/exec"
	"sort"
	"strings"
	"sync"
)

// AppSpec describes a launchable application and the names its windows report.
type AppSpec struct {
	Canonical   string
	DisplayName string
	Command     string
	Args        []string
	Aliases     []string
}

// knownApps is the alias table. Lookups are case-insensitive.
var knownApps = []AppSpec{
	{
		Canonical:   "firefox",
		DisplayName: "Firefox ESR",
		Command:     "firefox-esr",
		Aliases:     []string{"Firefox", "firefox", "firefox-esr", "Firefox ESR", "Mozilla Firefox", "Navigator", "firefox-bin"},
	},
	{
		Canonical:   "terminal",
		DisplayName: "Terminal",
		Command:     "xterm",
		Aliases:     []string{"xterm", "XTerm", "terminal", "x-terminal-emulator", "lxterminal", "uxterm"},
	},
	{
		Canonical:   "file_manager",
		DisplayName: "File Manager",
		Command:     "pcmanfm",
		Aliases:     []string{"pcmanfm", "Pcmanfm", "file manager", "files", "thunar"},
	},
	{
		Canonical:   "text_editor",
		DisplayName: "Text Editor",
		Command:     "mousepad",
		Aliases:     []string{"mousepad", "Mousepad", "text editor", "editor", "gedit", "leafpad"},
	},
}

var (
	aliasIndexOnce sync.Once
	aliasIndex     map[string]*AppSpec
)

func buildAliasIndex() {
	aliasIndex = make(map[string]*AppSpec)
	for i := range knownApps {
		spec := &knownApps[i]
		aliasIndex[strings.ToLower(spec.Canonical)] = spec
		aliasIndex[strings.ToLower(spec.DisplayName)] = spec
		aliasIndex[strings.ToLower(spec.Command)] = spec
		for _, a := range spec.Aliases {
			aliasIndex[strings.ToLower(a)] = spec
		}
	}
}

// LookupApp resolves any alias (process name, WM_CLASS, display name) to its spec.
func LookupApp(name string) (AppSpec, bool) {
	aliasIndexOnce.Do(buildAliasIndex)
	spec, ok := aliasIndex[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return AppSpec{}, false
	}
	return *spec, true
}

// ResolveApp folds a process or application name into its canonical app name.
// Unknown names are lowercased and returned as-is.
func ResolveApp(name string) string {
	if spec, ok := LookupApp(name); ok {
		return spec.Canonical
	}
	return strings.ToLower(strings.TrimSpace(name))
}

// LaunchableApp is a catalog entry whose command was found on PATH.
type LaunchableApp struct {
	Name    string
	Command string
	Path    string
}

// Catalog lists the applications that can actually be launched on this host.
type Catalog struct {
	lookPath func(string) (string, error)

	once sync.Once
	apps []LaunchableApp
}

// NewCatalog returns a catalog that probes PATH lazily.
func NewCatalog() *Catalog {
	return &Catalog{lookPath: exec.LookPath}
}

// Apps returns the discovered applications sorted by name.
func (c *Catalog) Apps() []LaunchableApp {
	c.once.Do(func() {
		for _, spec := range knownApps {
			candidates := append([]string{spec.Command}, spec.Aliases...)
			for _, cand := range candidates {
				if strings.ContainsAny(cand, " ") {
					continue
				}
				if p, err := c.lookPath(cand); err == nil {
					c.apps = append(c.apps, LaunchableApp{Name: spec.DisplayName, Command: cand, Path: p})
					break
				}
			}
		}
		sort.Slice(c.apps, func(i, j int) bool { return c.apps[i].Name < c.apps[j].Name })
	})
	out := make([]LaunchableApp, len(c.apps))
	copy(out, c.apps)
	return out
}

// Resolve returns the command used to launch name, or false when the app is unknown
// or not installed.
func (c *Catalog) Resolve(name string) (LaunchableApp, bool) {
	spec, ok := LookupApp(name)
	if !ok {
		return LaunchableApp{}, false
	}
	for _, app := range c.Apps() {
		if app.Name == spec.DisplayName {
			return app, true
		}
	}
	return LaunchableApp{}, false
}
