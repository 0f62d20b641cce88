// internal/routing/router.go
package routing

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/config"
)

const duckDuckGoBase = "https://duckduckgo.com/"

// DuckDuckGoURL builds the fallback search URL.
func DuckDuckGoURL(query string, images bool) string {
	u := duckDuckGoBase + "?q=" + url.QueryEscape(query)
	if images {
		u += "&iax=images&ia=images"
	}
	return u
}

// Router turns classified tasks into destination URLs, preferring a healthy
// SearXNG instance and falling back to DuckDuckGo.
type Router struct {
	cfg        config.SearchConfig
	classifier *Classifier
	validator  *SemanticValidator
	client     *http.Client
	logger     *zap.Logger
	now        func() time.Time

	group     singleflight.Group
	mu        sync.Mutex
	healthy   bool
	checkedAt time.Time
}

// NewRouter creates a router. The validator trusts the configured SearXNG host.
func NewRouter(cfg config.SearchConfig, logger *zap.Logger) *Router {
	if cfg.HealthTTL <= 0 {
		cfg.HealthTTL = 5 * time.Minute
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 3 * time.Second
	}
	cfg.SearxngURL = strings.TrimRight(cfg.SearxngURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	var trusted []string
	if cfg.SearxngURL != "" {
		trusted = append(trusted, cfg.SearxngURL)
	}
	return &Router{
		cfg:        cfg,
		classifier: NewClassifier(),
		validator:  NewSemanticValidator(trusted...),
		client:     &http.Client{},
		logger:     logger.Named("search_router"),
		now:        time.Now,
	}
}

func (r *Router) Classifier() *Classifier { return r.classifier }
func (r *Router) Classify(task string) schemas.TaskClassification {
	return r.classifier.Classify(task)
}

// SearxngHealthy reports SearXNG health, re-checking at most once per HealthTTL.
// Concurrent callers share one probe.
func (r *Router) SearxngHealthy(ctx context.Context) bool {
	if r.cfg.SearxngURL == "" {
		return false
	}
	r.mu.Lock()
	if !r.checkedAt.IsZero() && r.now().Sub(r.checkedAt) < r.cfg.HealthTTL {
		h := r.healthy
		r.mu.Unlock()
		return h
	}
	r.mu.Unlock()

	v, _, _ := r.group.Do("health", func() (interface{}, error) {
		ok := r.probe(ctx)
		r.mu.Lock()
		r.healthy, r.checkedAt = ok, r.now()
		r.mu.Unlock()
		if !ok {
			r.logger.Info("SearXNG unavailable, using DuckDuckGo", zap.String("url", r.cfg.SearxngURL))
		}
		return ok, nil
	})
	return v.(bool)
}

// probe requires both /stats and a trial search to answer 200.
func (r *Router) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.HealthTimeout)
	defer cancel()
	for _, target := range []string{r.cfg.SearxngURL + "/stats", r.searxngURL("test", "")} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return false
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
	}
	return true
}

func (r *Router) searxngURL(query, category string) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("format", "html")
	if category != "" {
		v.Set("categories", category)
	}
	if r.cfg.Language != "" {
		v.Set("language", r.cfg.Language)
	}
	return r.cfg.SearxngURL + "/search?" + v.Encode()
}

// SearchURL returns a web-search URL for query.
func (r *Router) SearchURL(ctx context.Context, query string) string {
	if r.SearxngHealthy(ctx) {
		return r.searxngURL(query, "")
	}
	return DuckDuckGoURL(query, false)
}

// ImageSearchURL returns an image-search URL for query.
func (r *Router) ImageSearchURL(ctx context.Context, query string) string {
	if r.SearxngHealthy(ctx) {
		return r.searxngURL(query, "images")
	}
	return DuckDuckGoURL(query, true)
}

// IsSearchURL reports whether u was produced by SearchURL or ImageSearchURL.
func (r *Router) IsSearchURL(u string) bool {
	if strings.HasPrefix(u, duckDuckGoBase+"?q=") {
		return true
	}
	return r.cfg.SearxngURL != "" && strings.HasPrefix(u, r.cfg.SearxngURL+"/search?")
}

// IntelligentURL picks the destination for a task: the canonical URL of a safe
// navigation target, a validated explicit domain, a keyword mapping, or a search.
func (r *Router) IntelligentURL(ctx context.Context, task string, cls schemas.TaskClassification) string {
	switch cls.TaskType {
	case schemas.TaskNavigation:
		target := cls.Target()
		if u, ok := SafeDomainURL(target); ok {
			return u
		}
		if target != "" && LooksLikeURL(target) {
			candidate := target
			if !strings.Contains(candidate, "://") {
				candidate = "https://" + candidate
			}
			if v := r.validator.Validate(candidate, task); v.IsValid {
				return candidate
			}
		}
		if mapped := MappedURLs(task); len(mapped) > 0 {
			return mapped[0]
		}
		if target != "" {
			return r.SearchURL(ctx, target)
		}
		return r.SearchURL(ctx, ExtractQuery(task))
	case schemas.TaskImageSearch:
		return r.ImageSearchURL(ctx, ExtractQuery(task))
	default:
		return r.SearchURL(ctx, ExtractQuery(task))
	}
}

// ValidateURL runs the semantic validator and, for invalid URLs, replaces the
// alternative with the router's own destination for the task.
func (r *Router) ValidateURL(ctx context.Context, rawURL, task string) schemas.URLValidation {
	v := r.validator.Validate(rawURL, task)
	if v.IsValid {
		return v
	}
	v.AlternativeURL = r.AlternativeURL(ctx, task, rawURL, nil)
	r.logger.Info("Replacing invalid URL",
		zap.String("url", rawURL),
		zap.String("alternative", v.AlternativeURL),
		zap.Float64("confidence", v.Confidence),
		zap.Strings("issues", v.Issues))
	return v
}

// AlternativeURL is the destination offered in place of a rejected URL: the
// task's IntelligentURL, or a search when that lands on the rejected host or
// on a host refused by reject. It returns "" when every candidate is refused.
func (r *Router) AlternativeURL(ctx context.Context, task, rejectedURL string, reject func(host string) bool) string {
	refused := func(u string) bool {
		h := hostOf(u)
		return h == hostOf(rejectedURL) || (reject != nil && reject(h))
	}
	if alt := r.URLForTask(ctx, task); !refused(alt) {
		return alt
	}
	if alt := r.SearchURL(ctx, fallbackQuery(task, rejectedURL)); !refused(alt) {
		return alt
	}
	return ""
}

// URLForTask classifies task and returns its IntelligentURL.
func (r *Router) URLForTask(ctx context.Context, task string) string {
	return r.IntelligentURL(ctx, task, r.classifier.Classify(task))
}
