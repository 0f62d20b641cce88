// internal/routing/validator.go
package routing

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/Vrooli/agent-s2/api/schemas"
)

const (
	validThreshold    = 0.5
	trustedConfidence = 0.95
)

var (
	hyphenTriplet  = regexp.MustCompile(`^[a-z0-9]+-[a-z0-9]+-[a-z0-9]+`)
	shortPlusDigit = regexp.MustCompile(`^[a-z]{1,3}[0-9]{2,}$`)
	obscureTLDs    = []string{".tk", ".ml", ".cf", ".ga"}
)

// SemanticValidator judges whether a URL is a plausible destination for a task.
type SemanticValidator struct {
	trusted map[string]bool
}

// NewSemanticValidator trusts the safe-domain set plus the given extra base
// URLs (typically the SearXNG instance).
func NewSemanticValidator(trustedBases ...string) *SemanticValidator {
	v := &SemanticValidator{trusted: map[string]bool{}}
	for _, b := range trustedBases {
		if u, err := url.Parse(b); err == nil && u.Host != "" {
			v.trusted[strings.ToLower(u.Host)] = true
		}
	}
	return v
}

// Validate scores rawURL against task. Confidence below 0.5 is always invalid,
// and an invalid verdict always carries an alternative search URL.
func (v *SemanticValidator) Validate(rawURL, task string) (res schemas.URLValidation) {
	res = schemas.URLValidation{Issues: []string{}, Suggestions: []string{}}
	defer func() {
		if res.Confidence < validThreshold {
			res.IsValid = false
		}
		if !res.IsValid && res.AlternativeURL == "" {
			res.AlternativeURL = DuckDuckGoURL(fallbackQuery(task, rawURL), false)
			res.Suggestions = append(res.Suggestions, "search for the topic instead of guessing a domain")
		}
	}()

	u, err := parseLoose(rawURL)
	if err != nil {
		res.Confidence = 0.1
		res.Issues = append(res.Issues, fmt.Sprintf("unparseable URL: %v", err))
		res.Reasoning = "the text could not be parsed as a URL"
		return res
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		res.Confidence = 0.0
		res.Issues = append(res.Issues, fmt.Sprintf("scheme %q is not allowed", u.Scheme))
		res.Reasoning = "only http and https destinations are navigable"
		return res
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if v.trusted[strings.ToLower(u.Host)] || IsSafeDomain(host) {
		res.IsValid = true
		res.Confidence = trustedConfidence
		res.Reasoning = fmt.Sprintf("%s is a trusted destination", host)
		return res
	}

	score := 0.5
	var reasons []string

	if net.ParseIP(host) != nil {
		score -= 0.2
		res.Issues = append(res.Issues, "raw IP address instead of a domain name")
	}
	for _, issue := range suspiciousPatterns(host) {
		score -= 0.3
		res.Issues = append(res.Issues, issue)
	}

	taskWords := tokenize(task)
	if keywords, ok := LegitimateKeywords(host); ok {
		score += 0.3
		reasons = append(reasons, "known legitimate domain")
		if overlaps(taskWords, keywords) {
			score += 0.1
			reasons = append(reasons, "relevant to the task")
		} else {
			res.Issues = append(res.Issues, "domain is not obviously related to the task")
		}
	} else {
		rel := lexicalRelevance(host, taskWords)
		switch {
		case rel >= 0.8:
			score += 0.2
			reasons = append(reasons, "domain name matches the task wording")
		case rel >= 0.5:
			reasons = append(reasons, "domain name partially matches the task wording")
		default:
			score -= 0.15
			res.Issues = append(res.Issues, "low relevance between domain and task")
		}
	}

	res.Confidence = clamp01(score)
	res.IsValid = res.Confidence >= validThreshold && len(suspiciousPatterns(host)) == 0
	if len(reasons) == 0 {
		reasons = append(reasons, "no positive signals")
	}
	res.Reasoning = strings.Join(reasons, "; ")
	return res
}

// suspiciousPatterns lists the lexical red flags of a host.
func suspiciousPatterns(host string) []string {
	var issues []string
	for _, tld := range obscureTLDs {
		if strings.HasSuffix(host, tld) {
			issues = append(issues, fmt.Sprintf("obscure top-level domain %s", tld))
		}
	}
	label := host
	if i := strings.Index(host, "."); i > 0 {
		label = host[:i]
	}
	if hyphenTriplet.MatchString(label) {
		issues = append(issues, "hyphenated multi-word domain")
	} else if parts := strings.Split(label, "-"); len(parts) > 1 && allEqual(parts) {
		issues = append(issues, "repeated-word domain")
	}
	if shortPlusDigit.MatchString(label) {
		issues = append(issues, "short letters followed by digits")
	}
	return issues
}

func allEqual(parts []string) bool {
	for _, p := range parts[1:] {
		if p != parts[0] {
			return false
		}
	}
	return true
}

func overlaps(words, keywords []string) bool {
	set := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		set[k] = true
	}
	for _, w := range words {
		if set[w] {
			return true
		}
	}
	return false
}

// lexicalRelevance is the best sequence similarity between any domain token
// and any task word, where exact token overlap scores 1.
func lexicalRelevance(host string, taskWords []string) float64 {
	var best float64
	for _, tok := range tokenize(siteName(host)) {
		for _, w := range taskWords {
			if tok == w || (len(w) >= 4 && strings.Contains(tok, w)) {
				return 1
			}
			if r := similarity(tok, w); r > best {
				best = r
			}
		}
	}
	return best
}

// similarity is 2*LCS/(len(a)+len(b)).
func similarity(a, b string) float64 {
	if len(a)+len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return 2 * float64(prev[len(b)]) / float64(len(a)+len(b))
}

func parseLoose(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty")
	}
	if !strings.Contains(raw, "://") && !strings.HasPrefix(strings.ToLower(raw), "javascript:") && !strings.HasPrefix(strings.ToLower(raw), "file:") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		if u.Hostname() == "" {
			return nil, fmt.Errorf("missing host")
		}
	}
	return u, nil
}

func fallbackQuery(task, rawURL string) string {
	if q := ExtractQuery(task); strings.TrimSpace(q) != "" {
		return q
	}
	return hostOf(rawURL)
}

func clamp01(f float64) float64 {
	return max(0, min(1, f))
}

// LooksLikeURL reports whether typed text is meant as a web address: it has a
// scheme, or is a single token containing a dot followed by a TLD-like suffix.
func LooksLikeURL(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" || strings.ContainsAny(t, " \t\n") {
		return false
	}
	lower := strings.ToLower(t)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return true
	}
	if strings.Contains(lower, "@") {
		return false
	}
	host := hostOf(lower)
	if !domainRe.MatchString(lower) || !strings.Contains(host, ".") {
		return false
	}
	_, icann := publicsuffix.PublicSuffix(host)
	return icann
}
