// internal/routing/classifier.go
package routing

import (
	"regexp"
	"strings"

	"github.com/Vrooli/agent-s2/api/schemas"
)

type weightedPattern struct {
	re     *regexp.Regexp
	weight float64
}

type family struct {
	taskType schemas.TaskType
	patterns []weightedPattern
}

func wp(expr string, weight float64) weightedPattern {
	return weightedPattern{re: regexp.MustCompile(`(?i)` + expr), weight: weight}
}

// families are evaluated in order; the order only matters for reporting.
var families = []family{
	{schemas.TaskImageSearch, []weightedPattern{
		wp(`\bshow me\b`, 2.0),
		wp(`\b(pictures?|images?|photos?|wallpapers?) of\b`, 2.5),
		wp(`\b(pictures?|images?|photos?)\b`, 1.0),
		wp(`\b(puppies|kittens|cute)\b`, 0.5),
	}},
	{schemas.TaskSearch, []weightedPattern{
		wp(`\b(search( the web)? for|look up|google)\b`, 2.5),
		wp(`\b(what|who|where|when|why|how) (is|are|was|were|do|does|to)\b`, 1.5),
		wp(`\bfind\b`, 1.0),
		wp(`\b(information|info|news) (about|on)\b`, 1.0),
	}},
	{schemas.TaskNavigation, []weightedPattern{
		wp(`\b(go to|navigate to|visit|browse to|take me to)\b`, 2.0),
		wp(`\b[a-z0-9-]+\.(com|org|net|io|dev|edu|gov|tv|co|uk|de)\b`, 1.5),
		wp(`\b(youtube|reddit|github|stackoverflow|wikipedia|google|duckduckgo|bing|mozilla|npmjs|pypi)\b`, 1.0),
		wp(`\bwebsite\b`, 0.5),
	}},
	{schemas.TaskApplication, []weightedPattern{
		wp(`\b(open|launch|start|run)\b`, 1.0),
		wp(`\b(terminal|firefox|browser|file manager|text editor|editor|calculator|application|app)\b`, 1.0),
	}},
	{schemas.TaskSystem, []weightedPattern{
		wp(`\b(shutdown|shut down|reboot|restart the (system|computer)|install|uninstall|sudo|chmod|chown|format)\b`, 2.5),
		wp(`\b(delete|remove|kill) (all|every|the)?\s*(files?|folders?|process(es)?|directory)\b`, 2.0),
	}},
	{schemas.TaskAutomation, []weightedPattern{
		wp(`\b(click|double[- ]click|type|press|scroll|drag|fill (in|out)|screenshot)\b`, 1.0),
		wp(`\b(every|repeat|automate|then)\b`, 0.5),
	}},
}

var recommendedActions = map[schemas.TaskType]string{
	schemas.TaskSearch:      "search",
	schemas.TaskImageSearch: "image_search",
	schemas.TaskNavigation:  "navigate",
	schemas.TaskApplication: "launch_app",
	schemas.TaskSystem:      "manual_review",
	schemas.TaskAutomation:  "automate",
	schemas.TaskUnknown:     "search",
}

var (
	targetRe = regexp.MustCompile(`(?i)\b(?:go to|navigate to|visit|browse to|take me to|open)\s+(?:the\s+)?(?:website\s+)?([a-z0-9][a-z0-9.\-/:]*)`)
	domainRe = regexp.MustCompile(`(?i)\b((?:https?://)?[a-z0-9-]+(?:\.[a-z0-9-]+)*\.[a-z]{2,}(?:/\S*)?)`)
	leadRe   = regexp.MustCompile(`(?i)^\s*(?:please\s+|can you\s+)?(?:search(?: the web)? for|look up|google|find(?: me)?|show me(?: some)?|(?:pictures?|images?|photos?|wallpapers?) of|information (?:about|on))\s+`)
)

// Classifier maps a natural-language task to its intent family.
type Classifier struct{}

func NewClassifier() *Classifier { return &Classifier{} }

// Classify scores every family and picks the best one. Ties and tasks that
// match nothing are unknown, whose recommended action is a plain search.
func (c *Classifier) Classify(task string) schemas.TaskClassification {
	scores := make(map[schemas.TaskType]float64, len(families))
	var total, best float64
	bestType := schemas.TaskUnknown
	tie := false
	for _, f := range families {
		var s float64
		for _, p := range f.patterns {
			if p.re.MatchString(task) {
				s += p.weight
			}
		}
		scores[f.taskType] = s
		total += s
		switch {
		case s > best:
			best, bestType, tie = s, f.taskType, false
		case s == best && s > 0:
			tie = true
		}
	}

	cls := schemas.TaskClassification{
		TaskType: bestType,
		Metadata: map[string]interface{}{},
		Scores:   scores,
	}
	if best == 0 || tie {
		cls.TaskType = schemas.TaskUnknown
	}
	if total > 0 && cls.TaskType != schemas.TaskUnknown {
		cls.Confidence = (best / total) * min(1, best/2)
	}
	cls.RecommendedAction = recommendedActions[cls.TaskType]
	cls.SafeToExecute = cls.TaskType != schemas.TaskSystem

	switch cls.TaskType {
	case schemas.TaskNavigation:
		if target := ExtractTarget(task); target != "" {
			cls.Metadata["target"] = target
			cls.Metadata["is_safe_domain"] = IsSafeDomain(target)
		}
	case schemas.TaskSearch, schemas.TaskImageSearch, schemas.TaskUnknown:
		cls.Metadata["query"] = ExtractQuery(task)
	}
	return cls
}

// ExtractTarget pulls the destination out of "go to X"-style tasks, or the
// first domain-looking token.
func ExtractTarget(task string) string {
	if m := domainRe.FindStringSubmatch(task); m != nil {
		return strings.ToLower(strings.TrimRight(m[1], ".,!?"))
	}
	if m := targetRe.FindStringSubmatch(task); m != nil {
		return strings.ToLower(strings.TrimRight(m[1], ".,!?/"))
	}
	return ""
}

// ExtractQuery strips leading request phrases ("show me", "search for", ...).
func ExtractQuery(task string) string {
	q := strings.TrimSpace(task)
	for {
		next := leadRe.ReplaceAllString(q, "")
		if next == q {
			break
		}
		q = next
	}
	q = strings.TrimRight(strings.TrimSpace(q), ".!?")
	if q == "" {
		return strings.TrimSpace(task)
	}
	return q
}
