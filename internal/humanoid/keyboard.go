// internal/humanoid/keyboard.go
package humanoid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Vrooli/agent-s2/api/schemas"
)

var modifierNames = map[string]schemas.KeyModifier{
	"ctrl":    schemas.ModCtrl,
	"control": schemas.ModCtrl,
	"alt":     schemas.ModAlt,
	"shift":   schemas.ModShift,
	"meta":    schemas.ModMeta,
	"super":   schemas.ModMeta,
	"win":     schemas.ModMeta,
	"cmd":     schemas.ModMeta,
}

// ParseKeyCombo turns "Ctrl+Shift+T" or "Enter" into a structured key event.
// A trailing "++" means the plus key itself.
func ParseKeyCombo(combo string) (schemas.KeyEventData, error) {
	combo = strings.TrimSpace(combo)
	if combo == "" {
		return schemas.KeyEventData{}, fmt.Errorf("%w: empty key", schemas.ErrInvalidInput)
	}
	if combo == "+" {
		return schemas.KeyEventData{Key: "+"}, nil
	}

	var key string
	head := combo
	if strings.HasSuffix(combo, "++") {
		key = "+"
		head = strings.TrimSuffix(combo, "++")
	} else if i := strings.LastIndex(combo, "+"); i >= 0 {
		key = combo[i+1:]
		head = combo[:i]
	} else {
		return schemas.KeyEventData{Key: combo}, nil
	}

	var data schemas.KeyEventData
	for _, part := range strings.Split(head, "+") {
		mod, ok := modifierNames[strings.ToLower(strings.TrimSpace(part))]
		if !ok {
			return schemas.KeyEventData{}, fmt.Errorf("%w: unknown modifier %q in %q", schemas.ErrInvalidInput, part, combo)
		}
		data.Modifiers |= mod
	}
	data.Key = strings.TrimSpace(key)
	if data.Key == "" {
		return schemas.KeyEventData{}, fmt.Errorf("%w: missing key in %q", schemas.ErrInvalidInput, combo)
	}
	return data, nil
}

// Type enters text. A positive interval spaces characters evenly; zero lets the
// model pick inter-key delays, or sends the whole string at once when disabled.
func (h *Humanoid) Type(ctx context.Context, text string, interval time.Duration) error {
	if text == "" {
		return nil
	}
	if !h.enabled() && interval <= 0 {
		return h.executor.SendKeys(ctx, text)
	}

	for i, r := range text {
		if err := h.executor.SendKeys(ctx, string(r)); err != nil {
			return fmt.Errorf("typing character %d: %w", i, err)
		}
		pause := interval
		if pause <= 0 {
			pause = h.keyPause()
		}
		if err := h.executor.Sleep(ctx, pause); err != nil {
			return err
		}
	}
	h.updateFatigue(float64(len(text)) * 0.01)
	return nil
}

// Press dispatches each key or combination in order.
func (h *Humanoid) Press(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return fmt.Errorf("%w: no keys to press", schemas.ErrInvalidInput)
	}
	for _, k := range keys {
		data, err := ParseKeyCombo(k)
		if err != nil {
			return err
		}
		if err := h.executor.DispatchStructuredKey(ctx, data); err != nil {
			return fmt.Errorf("pressing %q: %w", k, err)
		}
		if h.enabled() {
			if err := h.executor.Sleep(ctx, h.keyPause()); err != nil {
				return err
			}
		}
	}
	return nil
}

// keyPause samples an inter-key delay around the configured typing interval.
func (h *Humanoid) keyPause() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	fatigue := 1.0 + h.fatigueLevel
	hold := h.dynamicConfig.KeyHoldMeanMs + h.rng.NormFloat64()*h.dynamicConfig.KeyHoldStdDevMs
	ms := (h.dynamicConfig.TypeIntervalMs*(0.6+0.8*h.rng.Float64()) + hold*0.3) * fatigue
	if ms < 10 {
		ms = 10
	}
	return time.Duration(ms * float64(time.Millisecond))
}
