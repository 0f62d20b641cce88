// internal/humanoid/behavior.go
package humanoid

import (
	"math"
	"time"

	"github.com/Vrooli/agent-s2/api/schemas"
)

// applyFatigueEffects scales the dynamic persona. Caller holds mu.
func (h *Humanoid) applyFatigueEffects() {
	factor := 1.0 + h.fatigueLevel
	h.dynamicConfig.GaussianStrength = h.baseConfig.GaussianStrength * factor
	h.dynamicConfig.PerlinAmplitude = h.baseConfig.PerlinAmplitude * factor
	h.dynamicConfig.FittsA = h.baseConfig.FittsA * factor
}

func (h *Humanoid) updateFatigue(intensity float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fatigueLevel = math.Min(1.0, h.fatigueLevel+h.baseConfig.FatigueIncreaseRate*intensity)
	h.applyFatigueEffects()
}

// recoverFatigue lowers fatigue proportionally to idle time.
func (h *Humanoid) recoverFatigue(idle time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fatigueLevel = math.Max(0.0, h.fatigueLevel-h.baseConfig.FatigueRecoveryRate*idle.Seconds())
	h.applyFatigueEffects()
}

// Fatigue reports the current fatigue level in [0,1].
func (h *Humanoid) Fatigue() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fatigueLevel
}

func buttonsBitfield(b schemas.MouseButton) int64 {
	switch b {
	case schemas.ButtonLeft:
		return 1
	case schemas.ButtonRight:
		return 2
	case schemas.ButtonMiddle:
		return 4
	}
	return 0
}

// clickHold samples how long a button stays down.
func (h *Humanoid) clickHold() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	lo, hi := h.dynamicConfig.ClickHoldMinMs, h.dynamicConfig.ClickHoldMaxMs
	ms := lo
	if hi > lo {
		ms += h.rng.Intn(hi - lo + 1)
	}
	return time.Duration(ms) * time.Millisecond
}
