// internal/capture/monitor.go
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/Vrooli/agent-s2/api/schemas"
	"go.uber.org/zap"
)

// DetectOptions configures one change-monitoring run.
type DetectOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	// Threshold is the changed-pixel fraction above which a change is reported.
	Threshold float64
}

// DetectChanges samples the screen every Interval until Timeout, ctx cancellation
// or StopChangeDetection, reporting each sample whose changed-pixel fraction
// against the previous reported frame exceeds Threshold.
// Only one run may be active per service.
func (s *Service) DetectChanges(ctx context.Context, opts DetectOptions) ([]schemas.ChangeEvent, error) {
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("%w: threshold must be within [0,1]", schemas.ErrInvalidInput)
	}
	if !s.monitoring.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: change detection already running", schemas.ErrInvalidInput)
	}
	defer s.monitoring.Store(false)

	baseline, err := s.grab(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var events []schemas.ChangeEvent
	for s.monitoring.Load() {
		select {
		case <-ctx.Done():
			return events, nil
		case <-ticker.C:
		}
		if !s.monitoring.Load() {
			break
		}

		frame, err := s.grab(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return events, nil
			}
			s.logger.Warn("Change monitor capture failed", zap.Error(err))
			continue
		}
		cmp, err := compareImages(baseline, frame, schemas.ComparePixelDiff, s.opts.PixelDiffThreshold)
		if err != nil {
			return events, err
		}
		ratio := float64(cmp.ChangedPixels) / float64(cmp.TotalPixels)
		if ratio > opts.Threshold {
			events = append(events, schemas.ChangeEvent{
				Timestamp:     s.now(),
				ChangedRatio:  ratio,
				ChangedPixels: cmp.ChangedPixels,
			})
			baseline = frame
		}
	}
	return events, nil
}

// StopChangeDetection asks a running DetectChanges to return at its next tick.
func (s *Service) StopChangeDetection() {
	s.monitoring.Store(false)
}

// Monitoring reports whether a change-detection run is active.
func (s *Service) Monitoring() bool {
	return s.monitoring.Load()
}
