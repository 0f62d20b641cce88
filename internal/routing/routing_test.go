// internal/routing/routing_test.go
package routing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/config"
)

func TestClassify(t *testing.T) {
	c := NewClassifier()
	tests := []struct {
		task string
		want schemas.TaskType
	}{
		{"go to YouTube", schemas.TaskNavigation},
		{"visit github.com", schemas.TaskNavigation},
		{"open reddit.com please", schemas.TaskNavigation},
		{"show me puppies", schemas.TaskImageSearch},
		{"pictures of mountains", schemas.TaskImageSearch},
		{"search for golang generics", schemas.TaskSearch},
		{"what is the capital of France", schemas.TaskSearch},
		{"open the terminal", schemas.TaskApplication},
		{"sudo shutdown now", schemas.TaskSystem},
		{"scroll down then click the button", schemas.TaskAutomation},
		{"banana", schemas.TaskUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.task, func(t *testing.T) {
			got := c.Classify(tt.task)
			assert.Equal(t, tt.want, got.TaskType, "scores: %v", got.Scores)
			assert.GreaterOrEqual(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestClassifyNavigationMetadata(t *testing.T) {
	cls := NewClassifier().Classify("go to YouTube")
	assert.Equal(t, "youtube", cls.Target())
	assert.Equal(t, true, cls.Metadata["is_safe_domain"])
	assert.Equal(t, "navigate", cls.RecommendedAction)
	assert.True(t, cls.SafeToExecute)

	cls = NewClassifier().Classify("navigate to paw-paw.com")
	assert.Equal(t, "paw-paw.com", cls.Target())
	assert.Equal(t, false, cls.Metadata["is_safe_domain"])
}

func TestClassifyUnknownRecommendsSearch(t *testing.T) {
	cls := NewClassifier().Classify("zebra")
	assert.Equal(t, schemas.TaskUnknown, cls.TaskType)
	assert.Equal(t, "search", cls.RecommendedAction)
	assert.Equal(t, 0.0, cls.Confidence)

	sys := NewClassifier().Classify("sudo rm everything and reboot")
	assert.False(t, sys.SafeToExecute)
}

func TestExtractQuery(t *testing.T) {
	assert.Equal(t, "puppies", ExtractQuery("show me puppies"))
	assert.Equal(t, "puppies", ExtractQuery("show me pictures of puppies"))
	assert.Equal(t, "rust borrow checker", ExtractQuery("search for rust borrow checker."))
	assert.Equal(t, "show me", ExtractQuery("show me"))
}

func TestIsSafeDomain(t *testing.T) {
	for _, d := range []string{"youtube", "youtube.com", "https://www.youtube.com/watch?v=1", "developer.mozilla.org", "docs.python.org", "en.wikipedia.org", "pypi.org"} {
		assert.True(t, IsSafeDomain(d), d)
	}
	for _, d := range []string{"paw-paw.com", "youtube.tk.example", "evil.com", "", "youtube.com.evil.com", "notyoutube.com"} {
		assert.False(t, IsSafeDomain(d), d)
	}
	u, ok := SafeDomainURL("YouTube")
	require.True(t, ok)
	assert.Equal(t, "https://youtube.com", u)

	u, ok = SafeDomainURL("https://en.wikipedia.org/wiki/Go")
	require.True(t, ok)
	assert.Equal(t, "https://wikipedia.org", u)
}

func TestSafeDomainRejectsLookalikeTLDs(t *testing.T) {
	tests := []string{
		"youtube.tk",
		"google.ml",
		"github.cf",
		"https://github.cf/login",
		"https://www.wikipedia.ga/wiki",
		"reddit.co.uk",
		"docs.python.tk",
	}
	v := NewSemanticValidator()
	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			assert.False(t, IsSafeDomain(target))
			_, ok := SafeDomainURL(target)
			assert.False(t, ok)

			res := v.Validate(target, "go to "+target)
			assert.NotEqual(t, trustedConfidence, res.Confidence)
			assert.NotContains(t, res.Reasoning, "trusted destination")
		})
	}
}

func TestValidatorFlagsObscureTLDOfSafeName(t *testing.T) {
	res := NewSemanticValidator().Validate("https://google.tk/login", "search google")
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Issues, "obscure top-level domain .tk")
	assert.NotEmpty(t, res.AlternativeURL)
}

func TestLooksLikeURL(t *testing.T) {
	assert.True(t, LooksLikeURL("https://youtube.com"))
	assert.True(t, LooksLikeURL("paw-paw.com"))
	assert.True(t, LooksLikeURL("www.github.com/golang/go"))
	assert.False(t, LooksLikeURL("hello world"))
	assert.False(t, LooksLikeURL("notes.txt"))
	assert.False(t, LooksLikeURL("alice@example.com"))
	assert.False(t, LooksLikeURL("3.14"))
}

func TestValidatorSuspiciousPatterns(t *testing.T) {
	v := NewSemanticValidator()
	tests := []struct {
		url   string
		issue string
	}{
		{"paw-paw.com", "repeated-word domain"},
		{"best-cheap-deals.com", "hyphenated multi-word domain"},
		{"ab123.com", "short letters followed by digits"},
		{"freestuff.tk", "obscure top-level domain .tk"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			res := v.Validate(tt.url, "show me puppies")
			assert.False(t, res.IsValid)
			assert.Contains(t, res.Issues, tt.issue)
			assert.NotEmpty(t, res.AlternativeURL)
		})
	}
}

func TestValidatorVerdicts(t *testing.T) {
	v := NewSemanticValidator("http://localhost:9200")

	res := v.Validate("https://youtube.com", "go to YouTube")
	assert.True(t, res.IsValid)
	assert.GreaterOrEqual(t, res.Confidence, 0.9)

	res = v.Validate("https://unsplash.com/s/photos/puppies", "show me puppies")
	assert.True(t, res.IsValid)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)

	res = v.Validate("http://localhost:9200/search?q=x&format=html", "anything")
	assert.True(t, res.IsValid)

	res = v.Validate("javascript:alert(1)", "x")
	assert.False(t, res.IsValid)
	assert.Equal(t, 0.0, res.Confidence)

	res = v.Validate("kubernetes.io", "go to kubernetes.io")
	assert.True(t, res.IsValid, "issues: %v", res.Issues)
}

func TestValidatorLowConfidenceIsInvalid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		label := rapid.StringMatching(`[a-z]{2,8}(-[a-z]{2,8}){0,2}[0-9]{0,3}`).Draw(t, "label")
		tld := rapid.SampledFrom([]string{".com", ".net", ".tk", ".ml", ".org"}).Draw(t, "tld")
		res := NewSemanticValidator().Validate(label+tld, "show me puppies")
		if res.Confidence < 0.5 && res.IsValid {
			t.Fatalf("%s valid with confidence %.2f", label+tld, res.Confidence)
		}
		if !res.IsValid && res.AlternativeURL == "" {
			t.Fatalf("%s invalid without alternative", label+tld)
		}
	})
}

func newOfflineRouter() *Router {
	return NewRouter(config.SearchConfig{}, zap.NewNop())
}

func TestValidateAlternativeIsItselfValid(t *testing.T) {
	r := newOfflineRouter()
	tasks := []string{"show me puppies", "go to paw-paw.com", "search for cheap flights", "visit ab123.tk"}
	rapid.Check(t, func(t *rapid.T) {
		task := rapid.SampledFrom(tasks).Draw(t, "task")
		label := rapid.StringMatching(`[a-z]{2,6}-[a-z]{2,6}-[a-z]{2,6}`).Draw(t, "label")

		first := r.ValidateURL(context.Background(), label+".tk", task)
		if first.IsValid {
			t.Fatalf("%s.tk should be invalid", label)
		}
		second := r.ValidateURL(context.Background(), first.AlternativeURL, task)
		if !second.IsValid || second.Confidence < 0.7 {
			t.Fatalf("alternative %s not valid (%.2f, %v)", first.AlternativeURL, second.Confidence, second.Issues)
		}
	})
}

func TestIntelligentURLScenarios(t *testing.T) {
	r := newOfflineRouter()
	ctx := context.Background()

	cls := r.Classify("go to YouTube")
	assert.Equal(t, "https://youtube.com", r.IntelligentURL(ctx, "go to YouTube", cls))

	cls = r.Classify("show me puppies")
	assert.Equal(t, "https://duckduckgo.com/?q=puppies&iax=images&ia=images", r.IntelligentURL(ctx, "show me puppies", cls))

	cls = r.Classify("search for go generics")
	assert.Equal(t, "https://duckduckgo.com/?q=go+generics", r.IntelligentURL(ctx, "search for go generics", cls))

	cls = r.Classify("visit kubernetes.io")
	assert.Equal(t, "https://kubernetes.io", r.IntelligentURL(ctx, "visit kubernetes.io", cls))

	cls = r.Classify("navigate to puppies website")
	assert.Equal(t, schemas.TaskNavigation, cls.TaskType)
	assert.Equal(t, "https://unsplash.com/s/photos/puppies", r.IntelligentURL(ctx, "navigate to puppies website", cls))
}

func TestSuspiciousTypedURLIsReplaced(t *testing.T) {
	r := newOfflineRouter()
	v := r.ValidateURL(context.Background(), "paw-paw.com", "show me puppies")
	assert.False(t, v.IsValid)
	assert.Contains(t, v.Issues, "repeated-word domain")
	assert.Equal(t, "https://duckduckgo.com/?q=puppies&iax=images&ia=images", v.AlternativeURL)
	assert.True(t, r.IsSearchURL(v.AlternativeURL))
}

func newSearxng(t *testing.T, healthy *atomic.Bool) (*httptest.Server, *atomic.Int32) {
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/stats" {
			probes.Add(1)
		}
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &probes
}

func TestSearxngRoutingAndHealthCache(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv, probes := newSearxng(t, &healthy)

	r := NewRouter(config.SearchConfig{SearxngURL: srv.URL + "/", HealthTTL: 5 * time.Minute, HealthTimeout: time.Second, Language: "en"}, zap.NewNop())
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	ctx := context.Background()

	got := r.SearchURL(ctx, "go generics")
	assert.Equal(t, srv.URL+"/search?format=html&language=en&q=go+generics", got)
	assert.True(t, r.IsSearchURL(got))

	img := r.ImageSearchURL(ctx, "puppies")
	assert.True(t, strings.Contains(img, "categories=images"), img)
	assert.Equal(t, int32(1), probes.Load(), "health is cached")

	healthy.Store(false)
	assert.True(t, r.SearxngHealthy(ctx), "stale verdict served within TTL")

	now = now.Add(6 * time.Minute)
	assert.Equal(t, "https://duckduckgo.com/?q=go+generics", r.SearchURL(ctx, "go generics"))
	assert.Equal(t, int32(2), probes.Load())

	v := r.ValidateURL(ctx, got, "search for go generics")
	assert.True(t, v.IsValid)
}

func TestRejectedURLAlternativeUsesHealthySearxng(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv, _ := newSearxng(t, &healthy)
	r := NewRouter(config.SearchConfig{SearxngURL: srv.URL, HealthTimeout: time.Second}, zap.NewNop())
	ctx := context.Background()

	v := r.ValidateURL(ctx, "paw-paw.com", "show me puppies")
	assert.False(t, v.IsValid)
	assert.True(t, strings.HasPrefix(v.AlternativeURL, srv.URL+"/search?"), v.AlternativeURL)
	assert.Contains(t, v.AlternativeURL, "categories=images")

	tests := []struct {
		name     string
		task     string
		rejected string
		reject   func(string) bool
		want     string
	}{
		{name: "task destination", task: "go to YouTube", rejected: "youtube.tk", want: "https://youtube.com"},
		{name: "same host falls back to search", task: "go to YouTube", rejected: "https://youtube.com/x", want: srv.URL + "/search?format=html&q=go+to+YouTube"},
		{name: "refused host falls back to search", task: "go to YouTube", rejected: "youtube.tk", reject: func(h string) bool { return h == "youtube.com" }, want: srv.URL + "/search?format=html&q=go+to+YouTube"},
		{name: "everything refused", task: "go to YouTube", rejected: "youtube.tk", reject: func(string) bool { return true }, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.AlternativeURL(ctx, tt.task, tt.rejected, tt.reject))
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity("abc", "abc"))
	assert.Equal(t, 0.0, similarity("abc", "xyz"))
	assert.InDelta(t, 0.75, similarity("abcd", "abce"), 1e-9)
	assert.Equal(t, 0.0, similarity("", ""))
}
