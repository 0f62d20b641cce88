// internal/humanoid/potential_field.go
package humanoid

import "math"

type fieldSource struct {
	pos      Vector2D
	strength float64 // positive attracts, negative repels
	falloff  float64
}

// PotentialField bends pointer paths toward attractors and away from repulsors.
type PotentialField struct {
	sources []fieldSource
}

func NewPotentialField() *PotentialField { return &PotentialField{} }

// AddSource registers a source whose influence decays as exp(-d/falloff).
func (f *PotentialField) AddSource(pos Vector2D, strength, falloff float64) {
	if falloff <= 0 {
		falloff = 100
	}
	f.sources = append(f.sources, fieldSource{pos: pos, strength: strength, falloff: falloff})
}

// CalculateNetForce sums the unit-direction forces at p, capped at magnitude 1.
func (f *PotentialField) CalculateNetForce(p Vector2D) Vector2D {
	var net Vector2D
	for _, s := range f.sources {
		d := s.pos.Sub(p)
		dist := d.Mag()
		if dist < 1e-6 {
			continue
		}
		net = net.Add(d.Normalize().Mul(s.strength * math.Exp(-dist/s.falloff)))
	}
	return net.Limit(1)
}
