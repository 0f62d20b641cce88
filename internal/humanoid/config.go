// internal/humanoid/config.go
package humanoid

import (
	"math/rand"

	"github.com/Vrooli/agent-s2/internal/config"
)

// Config is the motor model of the synthetic user.
type Config struct {
	// Enabled switches between modelled movement and direct jumps.
	Enabled bool

	// Fitts's law: MT = FittsA + FittsB * log2(1 + D/W), in milliseconds.
	FittsA float64
	FittsB float64

	PerlinAmplitude  float64
	GaussianStrength float64

	ClickHoldMinMs int
	ClickHoldMaxMs int

	KeyHoldMeanMs   float64
	KeyHoldStdDevMs float64
	TypeIntervalMs  float64

	FatigueIncreaseRate float64
	FatigueRecoveryRate float64

	// Rng makes runs reproducible in tests. Nil seeds from the clock.
	Rng *rand.Rand
}

// DefaultConfig returns a calm, accurate persona.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		FittsA:              120,
		FittsB:              110,
		PerlinAmplitude:     1.5,
		GaussianStrength:    0.4,
		ClickHoldMinMs:      45,
		ClickHoldMaxMs:      110,
		KeyHoldMeanMs:       60,
		KeyHoldStdDevMs:     15,
		TypeIntervalMs:      70,
		FatigueIncreaseRate: 0.01,
		FatigueRecoveryRate: 0.02,
	}
}

// FromAppConfig maps the application configuration onto the motor model.
func FromAppConfig(c config.HumanoidConfig) Config {
	cfg := DefaultConfig()
	cfg.Enabled = c.Enabled
	if c.FittsA > 0 {
		cfg.FittsA = c.FittsA
	}
	if c.FittsB > 0 {
		cfg.FittsB = c.FittsB
	}
	if c.PerlinAmplitude >= 0 {
		cfg.PerlinAmplitude = c.PerlinAmplitude
	}
	if c.GaussianStrength >= 0 {
		cfg.GaussianStrength = c.GaussianStrength
	}
	if c.ClickHoldMinMs > 0 {
		cfg.ClickHoldMinMs = c.ClickHoldMinMs
	}
	if c.ClickHoldMaxMs >= cfg.ClickHoldMinMs {
		cfg.ClickHoldMaxMs = c.ClickHoldMaxMs
	}
	if c.KeyHoldMeanMs > 0 {
		cfg.KeyHoldMeanMs = c.KeyHoldMeanMs
	}
	if c.KeyHoldStdDevMs >= 0 {
		cfg.KeyHoldStdDevMs = c.KeyHoldStdDevMs
	}
	if c.TypeIntervalMs > 0 {
		cfg.TypeIntervalMs = c.TypeIntervalMs
	}
	if c.FatigueIncreaseRate >= 0 {
		cfg.FatigueIncreaseRate = c.FatigueIncreaseRate
	}
	if c.FatigueRecoveryRate >= 0 {
		cfg.FatigueRecoveryRate = c.FatigueRecoveryRate
	}
	return cfg
}
