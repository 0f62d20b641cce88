// internal/llmclient/ollama.go
package llmclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/config"
)

// OllamaClient talks to an Ollama-shaped endpoint discovered at Initialize time.
type OllamaClient struct {
	cfg        config.AIConfig
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.RWMutex
	initialized bool
	baseURL     string
	model       string
	models      []string
}

var _ schemas.LLMClient = (*OllamaClient)(nil)

// ProbeResult is the outcome of checking one candidate host.
type ProbeResult struct {
	Host    string        `json:"host"`
	Healthy bool          `json:"healthy"`
	Models  []string      `json:"models,omitempty"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Stream bool     `json:"stream"`
	System string   `json:"system,omitempty"`
	Images []string `json:"images,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func NewOllamaClient(cfg config.AIConfig, logger *zap.Logger) *OllamaClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger.Named("ollama_client"),
	}
}

// Candidates returns the hosts to probe in priority order: the configured URL,
// then the fallbacks, without duplicates.
func (c *OllamaClient) Candidates() []string {
	seen := map[string]bool{}
	var out []string
	for _, h := range append([]string{c.cfg.APIURL}, c.cfg.FallbackHosts...) {
		h = strings.TrimRight(strings.TrimSpace(h), "/")
		if h == "" {
			continue
		}
		if !strings.Contains(h, "://") {
			h = "http://" + h
		}
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

// Probe checks every candidate concurrently. Results keep candidate order.
func (c *OllamaClient) Probe(ctx context.Context) []ProbeResult {
	hosts := c.Candidates()
	results := make([]ProbeResult, len(hosts))
	var g errgroup.Group
	for i, host := range hosts {
		g.Go(func() error {
			results[i] = c.probeHost(ctx, host)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *OllamaClient) probeHost(ctx context.Context, host string) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	res := ProbeResult{Host: host}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/tags", nil)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		res.Error = err.Error()
		res.Latency = time.Since(start)
		return res
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		res.Error = fmt.Sprintf("status %d", resp.StatusCode)
		res.Latency = time.Since(start)
		return res
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		res.Error = fmt.Sprintf("decoding tags: %v", err)
		res.Latency = time.Since(start)
		return res
	}
	for _, m := range tags.Models {
		res.Models = append(res.Models, m.Name)
	}
	res.Healthy = true
	res.Latency = time.Since(start)
	return res
}

// Initialize discovers a healthy host and selects a model. It returns false
// when AI is disabled, no host answers, or the host serves no models.
func (c *OllamaClient) Initialize(ctx context.Context) (bool, error) {
	if !c.cfg.Enabled {
		return false, fmt.Errorf("%w: AI is disabled", schemas.ErrNotReady)
	}
	if c.cfg.Provider != "" && !strings.EqualFold(c.cfg.Provider, config.ProviderOllama) {
		return false, fmt.Errorf("%w: unsupported AI provider %q", schemas.ErrInvalidInput, c.cfg.Provider)
	}

	results := c.Probe(ctx)
	var chosen *ProbeResult
	for i := range results {
		if results[i].Healthy {
			chosen = &results[i]
			break
		}
		c.logger.Debug("Ollama host unavailable", zap.String("host", results[i].Host), zap.String("error", results[i].Error))
	}
	if chosen == nil {
		c.logger.Warn("No Ollama host reachable", zap.Strings("candidates", c.Candidates()))
		return false, fmt.Errorf("%w: no reachable Ollama host", schemas.ErrExternalUnavailable)
	}

	model, err := PickModel(c.cfg.Model, chosen.Models)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.baseURL = chosen.Host
	c.model = model
	c.models = chosen.Models
	c.initialized = true
	c.mu.Unlock()

	if model != c.cfg.Model {
		c.logger.Warn("Configured model not available, using fallback",
			zap.String("configured", c.cfg.Model), zap.String("selected", model))
	}
	c.logger.Info("Ollama client initialized", zap.String("host", chosen.Host), zap.String("model", model))
	return true, nil
}

// PickModel prefers the configured model, then any vision-capable model, then
// the first one listed.
func PickModel(configured string, available []string) (string, error) {
	if len(available) == 0 {
		return "", fmt.Errorf("%w: host serves no models", schemas.ErrExternalUnavailable)
	}
	for _, m := range available {
		if m == configured || strings.TrimSuffix(m, ":latest") == configured {
			return m, nil
		}
	}
	for _, m := range available {
		lower := strings.ToLower(m)
		if strings.Contains(lower, "vision") || strings.Contains(lower, "llava") {
			return m, nil
		}
	}
	return available[0], nil
}

// IsReady reports whether Initialize succeeded and AI is enabled.
func (c *OllamaClient) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized && c.cfg.Enabled
}

func (c *OllamaClient) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

func (c *OllamaClient) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// Generate runs one non-streaming completion.
func (c *OllamaClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if !c.IsReady() {
		return "", fmt.Errorf("%w: ollama client not initialized", schemas.ErrNotReady)
	}
	c.mu.RLock()
	base, model := c.baseURL, c.model
	c.mu.RUnlock()

	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: req.UserPrompt,
		System: req.SystemPrompt,
		Images: NormalizeImages(req.Images),
	})
	if err != nil {
		return "", fmt.Errorf("encoding generate request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: generate timed out after %s", schemas.ErrTransient, c.cfg.Timeout)
		}
		return "", fmt.Errorf("%w: %v", schemas.ErrExternalUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading generate response: %v", schemas.ErrTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: generate returned status %d: %s", schemas.ErrExternalUnavailable, resp.StatusCode, truncate(string(raw), 200))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decoding generate response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", schemas.ErrExternalUnavailable, out.Error)
	}

	c.logger.Info("LLM generation complete",
		zap.String("model", model),
		zap.Int("images", len(req.Images)),
		zap.Duration("duration", time.Since(start)),
		zap.Int("response_chars", len(out.Response)))
	return out.Response, nil
}

func (c *OllamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
