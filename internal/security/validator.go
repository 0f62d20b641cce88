// internal/security/validator.go
package security

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/config"
	"github.com/Vrooli/agent-s2/internal/routing"
)

// URLRouter is the part of the search router the validator consults.
type URLRouter interface {
	ValidateURL(ctx context.Context, rawURL, task string) schemas.URLValidation
	AlternativeURL(ctx context.Context, task, rejectedURL string, reject func(host string) bool) string
	IsSearchURL(u string) bool
}

var emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// injectionTokens are shell metacharacters and idioms that never belong in an application name.
var injectionTokens = []string{";", "&&", "||", "`", "$(", "${", "|", ">", "<", "\n", "\r", "rm ", "sudo", "chmod ", "chown ", "wget ", "curl ", "eval ", "exec ", "nc ", "bash -c", "sh -c"}

// destructiveVerbs are commands whose mere presence blocks a launch.
var destructiveVerbs = []string{"shutdown", "reboot", "poweroff", "halt", "mkfs", "dd if=", "fdisk", "wipefs", "shred", ":(){", "killall", "init 0"}

// ActionValidator applies the security profile to planned actions.
type ActionValidator struct {
	profile string
	allowed []string
	blocked []string
	router  URLRouter
	logger  *zap.Logger
}

func NewActionValidator(cfg config.SecurityConfig, router URLRouter, logger *zap.Logger) *ActionValidator {
	profile := strings.ToLower(strings.TrimSpace(cfg.Profile))
	if profile == "" {
		profile = config.ProfileModerate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActionValidator{
		profile: profile,
		allowed: normalizeDomains(cfg.AllowedDomains),
		blocked: normalizeDomains(cfg.BlockedDomains),
		router:  router,
		logger:  logger.Named("action_validator"),
	}
}

func (v *ActionValidator) Profile() string { return v.profile }

// ClassifyTypeAction decides whether typed text is a URL, an email address, or plain text.
func ClassifyTypeAction(text string) schemas.TypeActionType {
	t := strings.TrimSpace(text)
	switch {
	case emailRe.MatchString(t):
		return schemas.TypeActionEmail
	case routing.LooksLikeURL(t):
		return schemas.TypeActionURL
	default:
		return schemas.TypeActionText
	}
}

// ValidateAction dispatches on the action variant. Variants without a policy pass.
func (v *ActionValidator) ValidateAction(ctx context.Context, action schemas.Action, task string) schemas.ActionSecurityResult {
	switch action.Type {
	case schemas.ActionTypeText:
		return v.ValidateTypeAction(ctx, action, task)
	case schemas.ActionLaunchApp:
		return v.ValidateLaunchApp(action.AppName)
	default:
		return schemas.ActionSecurityResult{Valid: true, Reason: "no policy for action type " + string(action.Type)}
	}
}

// ValidateTypeAction applies the URL policy to typed URLs. Emails and plain text pass.
func (v *ActionValidator) ValidateTypeAction(ctx context.Context, action schemas.Action, task string) schemas.ActionSecurityResult {
	textType := ClassifyTypeAction(action.Text)
	res := schemas.ActionSecurityResult{Valid: true, TextType: textType}
	if textType != schemas.TypeActionURL {
		res.Reason = "typed " + string(textType) + " is not a navigation target"
		return res
	}

	text := strings.TrimSpace(action.Text)
	host := hostOf(text)
	switch {
	case matchesDomain(host, v.blocked):
		return v.block(ctx, action, task, res, fmt.Sprintf("domain %s is blocked by policy", host), "")
	case v.router != nil && v.router.IsSearchURL(text):
		res.Reason = "router-generated search URL"
		return res
	case routing.IsSafeDomain(host):
		res.Reason = fmt.Sprintf("%s is in the safe-domain set", host)
		return res
	case matchesDomain(host, v.allowed):
		res.Reason = fmt.Sprintf("%s is explicitly allowed", host)
		return res
	}

	if v.router == nil {
		return v.block(ctx, action, task, res, "no URL validator available", "")
	}
	if v.profile == config.ProfileStrict {
		return v.block(ctx, action, task, res, fmt.Sprintf("strict profile only permits safe or allowed domains, not %s", host), "")
	}

	validation := v.router.ValidateURL(ctx, text, task)
	res.Warnings = append(res.Warnings, validation.Issues...)
	switch v.profile {
	case config.ProfilePermissive:
		if validation.IsValid {
			res.Reason = fmt.Sprintf("validator accepted %s (confidence %.2f)", host, validation.Confidence)
			return res
		}
	default:
		if _, known := routing.LegitimateKeywords(host); known && validation.IsValid {
			res.Reason = fmt.Sprintf("%s is a known legitimate domain (confidence %.2f)", host, validation.Confidence)
			return res
		}
	}
	reason := fmt.Sprintf("URL %s failed validation (confidence %.2f)", host, validation.Confidence)
	if len(validation.Issues) > 0 {
		reason += ": " + strings.Join(validation.Issues, ", ")
	}
	return v.block(ctx, action, task, res, reason, validation.AlternativeURL)
}

// block records a blocked type action and proposes a router URL in its place.
func (v *ActionValidator) block(ctx context.Context, action schemas.Action, task string, res schemas.ActionSecurityResult, reason, alternative string) schemas.ActionSecurityResult {
	res.Valid = false
	res.Reason = reason
	res.BlockedReason = reason
	isBlocked := func(host string) bool { return matchesDomain(host, v.blocked) }
	if v.router != nil && (alternative == "" || isBlocked(hostOf(alternative))) {
		alternative = v.router.AlternativeURL(ctx, task, action.Text, isBlocked)
	}
	if alternative != "" && hostOf(alternative) != hostOf(action.Text) && !isBlocked(hostOf(alternative)) {
		suggested := action
		suggested.Text = alternative
		suggested.Description = fmt.Sprintf("replaced unsafe URL %q", strings.TrimSpace(action.Text))
		res.SuggestedAction = &suggested
	}
	v.logger.Warn("Blocked typed URL",
		zap.String("profile", v.profile),
		zap.String("text", action.Text),
		zap.String("reason", reason),
		zap.Bool("has_suggestion", res.SuggestedAction != nil))
	return res
}

// ValidateLaunchApp rejects application names carrying shell syntax or destructive commands.
func (v *ActionValidator) ValidateLaunchApp(name string) schemas.ActionSecurityResult {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return schemas.ActionSecurityResult{Valid: false, Reason: "empty app name", BlockedReason: "empty app name"}
	}
	lower := strings.ToLower(trimmed)
	for _, tok := range injectionTokens {
		if strings.Contains(lower, tok) {
			return v.blockLaunch(trimmed, fmt.Sprintf("dangerous app name: contains %q", strings.TrimSpace(tok)))
		}
	}
	for _, verb := range destructiveVerbs {
		if strings.Contains(lower, verb) {
			return v.blockLaunch(trimmed, fmt.Sprintf("dangerous app name: destructive command %q", verb))
		}
	}
	return schemas.ActionSecurityResult{Valid: true, Reason: "app name is clean"}
}

func (v *ActionValidator) blockLaunch(name, reason string) schemas.ActionSecurityResult {
	v.logger.Warn("Blocked application launch", zap.String("app", name), zap.String("reason", reason))
	return schemas.ActionSecurityResult{Valid: false, Reason: reason, BlockedReason: reason}
}

func hostOf(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(raw, "://"); i >= 0 {
		raw = raw[i+3:]
	}
	if i := strings.IndexAny(raw, "/?#"); i >= 0 {
		raw = raw[:i]
	}
	if i := strings.LastIndex(raw, "@"); i >= 0 {
		raw = raw[i+1:]
	}
	if i := strings.LastIndex(raw, ":"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimPrefix(raw, "www.")
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		if h := hostOf(d); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// matchesDomain is true when host equals a listed domain or is a subdomain of it.
func matchesDomain(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
