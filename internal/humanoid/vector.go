// internal/humanoid/vector.go
package humanoid

import "math"

// Vector2D is a screen point or a displacement.
type Vector2D struct {
	X, Y float64
}

func (v Vector2D) Add(o Vector2D) Vector2D { return Vector2D{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vector2D) Sub(o Vector2D) Vector2D { return Vector2D{X: v.X - o.X, Y: v.Y - o.Y} }
func (v Vector2D) Mul(s float64) Vector2D  { return Vector2D{X: v.X * s, Y: v.Y * s} }
func (v Vector2D) Mag() float64            { return math.Hypot(v.X, v.Y) }
func (v Vector2D) Dist(o Vector2D) float64 { return math.Hypot(v.X-o.X, v.Y-o.Y) }
func (v Vector2D) Perp() Vector2D          { return Vector2D{X: -v.Y, Y: v.X} }
func pointOf(x, y int) Vector2D            { return Vector2D{X: float64(x), Y: float64(y)} }
func (v Vector2D) rounded() (int, int)     { return int(math.Round(v.X)), int(math.Round(v.Y)) }

// Normalize returns the unit vector, or zero for a zero-length vector.
func (v Vector2D) Normalize() Vector2D {
	m := v.Mag()
	if m < 1e-9 {
		return Vector2D{}
	}
	return v.Mul(1 / m)
}

// Limit caps the magnitude at max.
func (v Vector2D) Limit(max float64) Vector2D {
	if m := v.Mag(); m > max && m > 0 {
		return v.Mul(max / m)
	}
	return v
}

// clamp keeps a point inside a w x h screen.
func (v Vector2D) clamp(w, h int) Vector2D {
	if w <= 0 || h <= 0 {
		return v
	}
	return Vector2D{
		X: math.Max(0, math.Min(float64(w-1), v.X)),
		Y: math.Max(0, math.Min(float64(h-1), v.Y)),
	}
}
