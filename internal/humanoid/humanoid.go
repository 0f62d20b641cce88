// internal/humanoid/humanoid.go
package humanoid

import (
	"math/rand"
	"sync"
	"time"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"
)

// Humanoid turns coordinate-level input requests into human-paced event streams.
type Humanoid struct {
	// mu guards every field below except executor and logger.
	mu            sync.Mutex
	baseConfig    Config
	dynamicConfig Config
	logger        *zap.Logger
	executor      Executor
	currentPos    Vector2D
	currentButton schemas.MouseButton
	fatigueLevel  float64
	screenW       int
	screenH       int
	rng           *rand.Rand
	noiseX        *perlin.Perlin
	noiseY        *perlin.Perlin
}

// New creates a Humanoid that dispatches through executor.
func New(cfg Config, logger *zap.Logger, executor Executor) *Humanoid {
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := time.Now().UnixNano()
	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(seed))
	}
	return &Humanoid{
		baseConfig:    cfg,
		dynamicConfig: cfg,
		logger:        logger.Named("humanoid"),
		executor:      executor,
		currentButton: schemas.ButtonNone,
		rng:           rng,
		noiseX:        perlin.NewPerlin(2, 2, 3, seed),
		noiseY:        perlin.NewPerlin(2, 2, 3, seed+1),
	}
}

// NewTestHumanoid returns a deterministic instance for tests.
func NewTestHumanoid(executor Executor, seed int64) *Humanoid {
	cfg := DefaultConfig()
	cfg.Rng = rand.New(rand.NewSource(seed))
	h := New(cfg, zap.NewNop(), executor)
	h.noiseX = perlin.NewPerlin(2, 2, 3, seed)
	h.noiseY = perlin.NewPerlin(2, 2, 3, seed+1)
	// Keep simulated moves short so tests stay fast.
	h.baseConfig.FittsA, h.baseConfig.FittsB = 5, 5
	h.dynamicConfig = h.baseConfig
	return h
}

// SetBounds clamps every dispatched pointer position into a w x h screen.
func (h *Humanoid) SetBounds(w, ht int) {
	h.mu.Lock()
	h.screenW, h.screenH = w, ht
	h.mu.Unlock()
}

// Position reports the last dispatched pointer position.
func (h *Humanoid) Position() schemas.Point {
	h.mu.Lock()
	defer h.mu.Unlock()
	x, y := h.currentPos.rounded()
	return schemas.Point{X: x, Y: y}
}

func (h *Humanoid) enabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.baseConfig.Enabled
}
