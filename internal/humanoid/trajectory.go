// internal/humanoid/trajectory.go
package humanoid

import (
	"context"
	"math"
	"time"

	"github.com/Vrooli/agent-s2/api/schemas"
	"go.uber.org/zap"
)

// fittsTargetWidth is the assumed target width W in pixels.
const fittsTargetWidth = 30.0

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// fittsDuration is MT = A + B*log2(1 + D/W) with +/-15% jitter. Caller holds mu.
func (h *Humanoid) fittsDuration(distance float64) time.Duration {
	id := math.Log2(1.0 + distance/fittsTargetWidth)
	mt := h.dynamicConfig.FittsA + h.dynamicConfig.FittsB*id
	mt += mt * (h.rng.Float64()*0.3 - 0.15)
	return time.Duration(mt * float64(time.Millisecond))
}

// idealPath samples a cubic Bezier whose control points are bent by field.
func idealPath(start, end Vector2D, field *PotentialField, numSteps int) []Vector2D {
	main := end.Sub(start)
	dist := main.Mag()
	if dist < 1.0 || numSteps <= 1 {
		return []Vector2D{end}
	}
	dir := main.Normalize()

	s1 := start.Add(dir.Mul(dist / 3.0))
	s2 := start.Add(dir.Mul(dist * 2.0 / 3.0))
	p1 := s1.Add(field.CalculateNetForce(s1).Mul(dist * 0.1))
	p2 := s2.Add(field.CalculateNetForce(s2).Mul(dist * 0.1))

	path := make([]Vector2D, numSteps)
	for i := 0; i < numSteps; i++ {
		t := float64(i) / float64(numSteps-1)
		omt := 1.0 - t
		path[i] = start.Mul(omt * omt * omt).
			Add(p1.Mul(3 * omt * omt * t)).
			Add(p2.Mul(3 * omt * t * t)).
			Add(end.Mul(t * t * t))
	}
	return path
}

// pathField pulls the curve to one side of the straight line so that
// consecutive moves do not trace identical arcs.
func (h *Humanoid) pathField(start, end Vector2D) *PotentialField {
	field := NewPotentialField()
	mid := start.Add(end.Sub(start).Mul(0.5))
	side := end.Sub(start).Perp().Normalize()
	if h.rng.Intn(2) == 0 {
		side = side.Mul(-1)
	}
	dist := start.Dist(end)
	field.AddSource(mid.Add(side.Mul(dist*0.5)), 0.3+h.rng.Float64()*0.5, math.Max(dist, 50))
	return field
}

// simulateTrajectory walks the pointer from its current position to end.
// A zero duration derives the movement time from Fitts's law.
func (h *Humanoid) simulateTrajectory(ctx context.Context, end Vector2D, duration time.Duration) error {
	h.mu.Lock()
	start := h.currentPos
	if duration <= 0 {
		duration = h.fittsDuration(start.Dist(end))
	}
	field := h.pathField(start, end)
	buttons := buttonsBitfield(h.currentButton)
	h.mu.Unlock()

	numSteps := int(duration.Seconds() * 100)
	if numSteps < 2 {
		numSteps = 2
	}
	path := idealPath(start, end, field, numSteps)
	began := time.Now()

	for i := range path {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := 1.0
		if len(path) > 1 {
			t = float64(i) / float64(len(path)-1)
		}
		eased := easeInOutCubic(t)
		idx := int(eased * float64(len(path)-1))
		if idx >= len(path) {
			idx = len(path) - 1
		}

		if wait := time.Until(began.Add(time.Duration(eased * float64(duration)))); wait > 0 {
			if err := h.executor.Sleep(ctx, wait); err != nil {
				return err
			}
		}

		point := path[idx]
		if i < len(path)-1 {
			point = h.perturb(point, time.Since(began).Seconds())
		}
		point = h.clampToScreen(point)

		data := schemas.MouseEventData{
			Type:    schemas.MouseMove,
			X:       point.X,
			Y:       point.Y,
			Button:  schemas.ButtonNone,
			Buttons: buttons,
		}
		if err := h.executor.DispatchMouseEvent(ctx, data); err != nil {
			if ctx.Err() == nil {
				h.logger.Warn("Failed to dispatch mouse move", zap.Error(err))
			}
			return err
		}
		h.mu.Lock()
		h.currentPos = point
		h.mu.Unlock()
	}
	h.updateFatigue(start.Dist(end) / 1000.0)
	return nil
}

// perturb adds low-frequency Perlin drift and Gaussian tremor.
func (h *Humanoid) perturb(p Vector2D, elapsed float64) Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	const freq = 0.8
	amp := h.dynamicConfig.PerlinAmplitude
	p = p.Add(Vector2D{
		X: h.noiseX.Noise1D(elapsed*freq) * amp,
		Y: h.noiseY.Noise1D(elapsed*freq) * amp,
	})
	strength := h.dynamicConfig.GaussianStrength * (0.5 + h.rng.Float64())
	return Vector2D{X: p.X + h.rng.NormFloat64()*strength, Y: p.Y + h.rng.NormFloat64()*strength}
}

func (h *Humanoid) clampToScreen(p Vector2D) Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	return p.clamp(h.screenW, h.screenH)
}
