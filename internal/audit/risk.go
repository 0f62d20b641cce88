// internal/audit/risk.go
package audit

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Risk weights.
const (
	WeightSuspiciousPath = 20
	WeightShellPattern   = 30
	WeightPrivilege      = 40
	WeightRapidRepeat    = 25
	WeightHostMode       = 10
	WeightForbiddenPath  = 35
	MaxRisk              = 100
)

// Repetition is flagged above burstLimit same-action events in burstWindow,
// or above sustainedLimit in sustainedWindow.
const (
	burstLimit      = 5
	burstWindow     = 10 * time.Second
	sustainedLimit  = 20
	sustainedWindow = 60 * time.Second
)

var suspiciousPaths = []string{
	"/etc/passwd",
	"/etc/shadow",
	"/etc/sudoers",
	"/etc/crontab",
	"/root/",
	"/.ssh/",
	"id_rsa",
	"/var/log/",
	"/proc/",
	"/sys/",
	"/boot/",
	"/dev/sd",
}

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

func np(name, expr string) namedPattern {
	return namedPattern{name: name, re: regexp.MustCompile(expr)}
}

var shellPatterns = []namedPattern{
	np("recursive_delete", `(?i)\brm\s+-[a-z]*r[a-z]*f|\brm\s+-[a-z]*f[a-z]*r`),
	np("pipe_to_shell", `(?i)\b(curl|wget)\b[^|]*\|\s*(ba|z|da)?sh\b`),
	np("decode_to_shell", `(?i)base64\s+(-d|--decode)[^|]*\|\s*(ba)?sh`),
	np("reverse_shell", `(?i)\b(nc|ncat|netcat)\b.*\s-[a-z]*e\b|/dev/tcp/`),
	np("world_writable", `(?i)\bchmod\s+(-R\s+)?777\b`),
	np("disk_format", `(?i)\bmkfs(\.\w+)?\b|\bdd\s+if=`),
	np("fork_bomb", `:\(\)\s*\{\s*:\|:&\s*\};:`),
	np("history_wipe", `(?i)\bhistory\s+-c\b|>\s*~?/?\.bash_history`),
}

var privilegePatterns = []namedPattern{
	np("sudo", `(?i)(^|[\s;&|])sudo\s`),
	np("su_root", `(?i)(^|[\s;&|])su(\s+-|\s+root|\s*$)`),
	np("pkexec", `(?i)\bpkexec\b`),
	np("doas", `(?i)(^|[\s;&|])doas\s`),
	np("setuid", `(?i)\bchmod\s+[ugo]*\+s\b|\bchmod\s+[4-7][0-7]{3}\b`),
	np("chown_root", `(?i)\bchown\s+(-R\s+)?root\b`),
}

// RiskInput is what ScoreRisk looks at for one action.
type RiskInput struct {
	// Text is the concatenated action, target and detail strings.
	Text           string
	HostMode       bool
	ForbiddenPaths []string
	// Same-action events in the last 10 s and 60 s, counting this one.
	RecentBurst     int
	RecentSustained int
}

// ScoreRisk sums the weights of every matching pattern, capped at MaxRisk.
// The returned names identify what matched.
func ScoreRisk(in RiskInput) (int, []string) {
	score := 0
	var hits []string
	lower := strings.ToLower(in.Text)

	for _, p := range suspiciousPaths {
		if strings.Contains(lower, p) {
			score += WeightSuspiciousPath
			hits = append(hits, "suspicious_path:"+p)
		}
	}
	for _, p := range shellPatterns {
		if p.re.MatchString(in.Text) {
			score += WeightShellPattern
			hits = append(hits, "shell:"+p.name)
		}
	}
	for _, p := range privilegePatterns {
		if p.re.MatchString(in.Text) {
			score += WeightPrivilege
			hits = append(hits, "privilege:"+p.name)
		}
	}
	if in.RecentBurst > burstLimit || in.RecentSustained > sustainedLimit {
		score += WeightRapidRepeat
		hits = append(hits, "rapid_repetition")
	}
	if in.HostMode {
		score += WeightHostMode
		hits = append(hits, "host_mode")
		for _, fp := range in.ForbiddenPaths {
			fp = strings.TrimSpace(fp)
			if fp == "" {
				continue
			}
			if strings.Contains(in.Text, filepath.Clean(fp)) {
				score += WeightForbiddenPath
				hits = append(hits, "forbidden_path:"+fp)
			}
		}
	}

	if score > MaxRisk {
		score = MaxRisk
	}
	return score, hits
}
