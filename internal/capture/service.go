// internal/capture/service.go
package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// WindowLocator is the slice of the window registry that window capture needs.
type WindowLocator interface {
	FindByTitle(ctx context.Context, title string) (*schemas.Window, error)
	WindowByID(ctx context.Context, id string) (*schemas.Window, error)
	Focus(ctx context.Context, windowID string) (bool, error)
}

// Options are the capture defaults.
type Options struct {
	Format             schemas.ImageFormat
	Quality            int
	MaxDimension       int
	MaxBytesMB         int
	WindowGrace        time.Duration
	PixelDiffThreshold int
}

// Request describes one capture. Zero fields fall back to the service options.
type Request struct {
	Format       schemas.ImageFormat
	Quality      int
	Region       *schemas.Region
	MaxDimension int
}

// Service captures and analyses the screen.
type Service struct {
	grabber Grabber
	windows WindowLocator
	logger  *zap.Logger
	opts    Options
	now     func() time.Time

	// grabMu serializes access to the capture tool.
	grabMu     sync.Mutex
	monitoring atomic.Bool
}

// NewService creates a capture service. windows may be nil when window capture is not needed.
func NewService(grabber Grabber, windows WindowLocator, logger *zap.Logger, opts Options) *Service {
	if opts.Format == "" {
		opts.Format = schemas.FormatPNG
	}
	if opts.Quality == 0 {
		opts.Quality = 85
	}
	if opts.MaxDimension <= 0 || opts.MaxDimension > MaxDimension {
		opts.MaxDimension = MaxDimension
	}
	if opts.MaxBytesMB <= 0 || opts.MaxBytesMB*1024*1024 > MaxEncodedBytes {
		opts.MaxBytesMB = MaxEncodedBytes / (1024 * 1024)
	}
	if opts.WindowGrace <= 0 {
		opts.WindowGrace = 200 * time.Millisecond
	}
	if opts.PixelDiffThreshold <= 0 {
		opts.PixelDiffThreshold = 30
	}
	return &Service{
		grabber: grabber,
		windows: windows,
		logger:  logger.Named("screen_capture"),
		opts:    opts,
		now:     time.Now,
	}
}

func (s *Service) grab(ctx context.Context) (*image.NRGBA, error) {
	s.grabMu.Lock()
	defer s.grabMu.Unlock()
	img, err := s.grabber.Grab(ctx)
	if err != nil {
		return nil, err
	}
	return imaging.Clone(img), nil
}

// Capture takes a screenshot honoring format, quality, region and size limits.
func (s *Service) Capture(ctx context.Context, req Request) (*schemas.Screenshot, error) {
	return s.capture(ctx, req, false)
}

// capture grabs and encodes the screen. With clip the region is first cut
// down to the part that lies on screen instead of being rejected.
func (s *Service) capture(ctx context.Context, req Request, clip bool) (*schemas.Screenshot, error) {
	format, quality, maxDim, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	if req.Region != nil {
		if err := req.Region.Validate(); err != nil {
			return nil, err
		}
	}

	img, err := s.grab(ctx)
	if err != nil {
		return nil, err
	}
	if req.Region != nil {
		if clip {
			r, ok := clipRegion(*req.Region, img.Bounds())
			if !ok {
				return nil, fmt.Errorf("%w: region (%d,%d %dx%d) lies outside the screen",
					schemas.ErrInvalidInput, req.Region.X, req.Region.Y, req.Region.Width, req.Region.Height)
			}
			req.Region = &r
		}
		if img, err = crop(img, *req.Region); err != nil {
			return nil, err
		}
	}

	shot, err := s.encode(img, format, quality, maxDim)
	if err != nil {
		return nil, err
	}
	shot.Region = req.Region
	s.logger.Debug("Captured screenshot",
		zap.String("format", string(format)),
		zap.Int("width", shot.Size.Width),
		zap.Int("height", shot.Size.Height),
		zap.Float64("bytes_mb", shot.BytesMB))
	return shot, nil
}

func (s *Service) resolve(req Request) (schemas.ImageFormat, int, int, error) {
	format := req.Format
	if format == "" {
		format = s.opts.Format
	}
	if format != schemas.FormatPNG && format != schemas.FormatJPEG {
		return "", 0, 0, fmt.Errorf("%w: unsupported format %q", schemas.ErrInvalidInput, format)
	}
	quality := req.Quality
	if quality == 0 {
		quality = s.opts.Quality
	}
	if quality < 1 || quality > 100 {
		return "", 0, 0, fmt.Errorf("%w: quality must be in [1,100], got %d", schemas.ErrInvalidInput, quality)
	}
	maxDim := req.MaxDimension
	if maxDim <= 0 || maxDim > s.opts.MaxDimension {
		maxDim = s.opts.MaxDimension
	}
	return format, quality, maxDim, nil
}

// clipRegion intersects r with a screen of the given bounds. It reports false
// when nothing of r is visible.
func clipRegion(r schemas.Region, screen image.Rectangle) (schemas.Region, bool) {
	visible := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height).
		Intersect(image.Rect(0, 0, screen.Dx(), screen.Dy()))
	if visible.Empty() {
		return schemas.Region{}, false
	}
	return schemas.Region{X: visible.Min.X, Y: visible.Min.Y, Width: visible.Dx(), Height: visible.Dy()}, true
}

func crop(img *image.NRGBA, r schemas.Region) (*image.NRGBA, error) {
	b := img.Bounds()
	if r.X+r.Width > b.Dx() || r.Y+r.Height > b.Dy() {
		return nil, fmt.Errorf("%w: region (%d,%d %dx%d) exceeds screen %dx%d",
			schemas.ErrInvalidInput, r.X, r.Y, r.Width, r.Height, b.Dx(), b.Dy())
	}
	return imaging.Crop(img, image.Rect(b.Min.X+r.X, b.Min.Y+r.Y, b.Min.X+r.X+r.Width, b.Min.Y+r.Y+r.Height)), nil
}

// encode downscales oversized images and produces the data URI.
func (s *Service) encode(img *image.NRGBA, format schemas.ImageFormat, quality, maxDim int) (*schemas.Screenshot, error) {
	if b := img.Bounds(); b.Dx() > maxDim || b.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	switch format {
	case schemas.FormatJPEG:
		// JPEG has no alpha channel; flatten onto white first.
		b := img.Bounds()
		flat := imaging.Overlay(imaging.New(b.Dx(), b.Dy(), color.White), img, image.Pt(0, 0), 1.0)
		if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, fmt.Errorf("encoding jpeg: %w", err)
		}
	default:
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("encoding png: %w", err)
		}
	}

	limit := s.opts.MaxBytesMB * 1024 * 1024
	if buf.Len() > limit {
		return nil, fmt.Errorf("%w: encoded screenshot is %d bytes, limit %d", schemas.ErrInvalidInput, buf.Len(), limit)
	}

	b := img.Bounds()
	return &schemas.Screenshot{
		Format:     format,
		Size:       schemas.Size{Width: b.Dx(), Height: b.Dy()},
		Data:       dataURIPrefix(format) + base64.StdEncoding.EncodeToString(buf.Bytes()),
		BytesMB:    float64(buf.Len()) / (1024 * 1024),
		CapturedAt: s.now(),
	}, nil
}

// CaptureWindowByTitle focuses the first window whose title matches and captures its geometry.
func (s *Service) CaptureWindowByTitle(ctx context.Context, title string, req Request) (*schemas.Screenshot, error) {
	if s.windows == nil {
		return nil, fmt.Errorf("%w: window capture requires a window registry", schemas.ErrNotReady)
	}
	w, err := s.windows.FindByTitle(ctx, title)
	if err != nil {
		return nil, err
	}
	return s.captureWindow(ctx, w, req)
}

// CaptureWindowByID focuses the window and captures its geometry.
func (s *Service) CaptureWindowByID(ctx context.Context, id string, req Request) (*schemas.Screenshot, error) {
	if s.windows == nil {
		return nil, fmt.Errorf("%w: window capture requires a window registry", schemas.ErrNotReady)
	}
	w, err := s.windows.WindowByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.captureWindow(ctx, w, req)
}

func (s *Service) captureWindow(ctx context.Context, w *schemas.Window, req Request) (*schemas.Screenshot, error) {
	ok, err := s.windows.Focus(ctx, w.WindowID)
	if err != nil || !ok {
		// A window that refuses focus is still worth capturing.
		s.logger.Warn("Window did not take focus before capture", zap.String("window_id", w.WindowID), zap.Error(err))
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.opts.WindowGrace):
	}

	g := w.Geometry
	if g.X < 0 {
		g.Width += g.X
		g.X = 0
	}
	if g.Y < 0 {
		g.Height += g.Y
		g.Y = 0
	}
	if g.Width <= 0 || g.Height <= 0 {
		return nil, fmt.Errorf("%w: window %s lies outside the screen", schemas.ErrInvalidInput, w.WindowID)
	}
	region := schemas.RegionFromGeometry(g)
	req.Region = &region
	return s.capture(ctx, req, true)
}

// PixelColor returns the color at (x, y) of a fresh capture.
func (s *Service) PixelColor(ctx context.Context, x, y int) (schemas.RGB, error) {
	img, err := s.grab(ctx)
	if err != nil {
		return schemas.RGB{}, err
	}
	b := img.Bounds()
	if x < 0 || y < 0 || x >= b.Dx() || y >= b.Dy() {
		return schemas.RGB{}, fmt.Errorf("%w: pixel (%d,%d) outside %dx%d", schemas.ErrInvalidInput, x, y, b.Dx(), b.Dy())
	}
	return pixelAt(img, b.Min.X+x, b.Min.Y+y), nil
}

// PixelColorsRegion returns the colors of every pixel in region, row-major.
func (s *Service) PixelColorsRegion(ctx context.Context, region schemas.Region) ([][]schemas.RGB, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}
	img, err := s.grab(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := crop(img, region)
	if err != nil {
		return nil, err
	}
	rows := make([][]schemas.RGB, region.Height)
	for y := 0; y < region.Height; y++ {
		rows[y] = make([]schemas.RGB, region.Width)
		for x := 0; x < region.Width; x++ {
			rows[y][x] = pixelAt(sub, x, y)
		}
	}
	return rows, nil
}

func pixelAt(img *image.NRGBA, x, y int) schemas.RGB {
	i := img.PixOffset(x, y)
	return schemas.RGB{R: img.Pix[i], G: img.Pix[i+1], B: img.Pix[i+2]}
}
