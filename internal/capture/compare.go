// internal/capture/compare.go
package capture

import (
	"fmt"
	"image"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/disintegration/imaging"
)

// Compare measures how similar two screenshots are. When sizes differ the second
// image is resized to the first before comparing.
func (s *Service) Compare(a, b *schemas.Screenshot, method schemas.CompareMethod) (*schemas.Comparison, error) {
	imgA, err := Decode(a)
	if err != nil {
		return nil, fmt.Errorf("first screenshot: %w", err)
	}
	imgB, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("second screenshot: %w", err)
	}
	return compareImages(imaging.Clone(imgA), imaging.Clone(imgB), method, s.opts.PixelDiffThreshold)
}

func compareImages(a, b *image.NRGBA, method schemas.CompareMethod, threshold int) (*schemas.Comparison, error) {
	resized := false
	if a.Bounds().Size() != b.Bounds().Size() {
		b = imaging.Resize(b, a.Bounds().Dx(), a.Bounds().Dy(), imaging.Lanczos)
		resized = true
	}
	total := a.Bounds().Dx() * a.Bounds().Dy()
	if total == 0 {
		return nil, fmt.Errorf("%w: empty image", schemas.ErrInvalidInput)
	}

	result := &schemas.Comparison{Method: method, TotalPixels: total, Resized: resized}
	switch method {
	case schemas.CompareMSE:
		result.MSE = meanSquaredError(a, b)
		result.Similarity = 1 - result.MSE/(255*255)
	case schemas.CompareHistogram:
		result.Similarity = histogramIntersection(a, b)
	case schemas.ComparePixelDiff, "":
		result.Method = schemas.ComparePixelDiff
		result.ChangedPixels = changedPixels(a, b, threshold)
		result.Similarity = 1 - float64(result.ChangedPixels)/float64(total)
	default:
		return nil, fmt.Errorf("%w: unknown comparison method %q", schemas.ErrInvalidInput, method)
	}
	return result, nil
}

func meanSquaredError(a, b *image.NRGBA) float64 {
	var sum float64
	n := 0
	for i := 0; i+3 < len(a.Pix) && i+3 < len(b.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			d := float64(a.Pix[i+c]) - float64(b.Pix[i+c])
			sum += d * d
		}
		n += 3
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func histogramIntersection(a, b *image.NRGBA) float64 {
	var ha, hb [3][256]float64
	for i := 0; i+3 < len(a.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			ha[c][a.Pix[i+c]]++
		}
	}
	for i := 0; i+3 < len(b.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			hb[c][b.Pix[i+c]]++
		}
	}
	na := float64(len(a.Pix) / 4)
	nb := float64(len(b.Pix) / 4)
	var score float64
	for c := 0; c < 3; c++ {
		for v := 0; v < 256; v++ {
			pa, pb := ha[c][v]/na, hb[c][v]/nb
			if pa < pb {
				score += pa
			} else {
				score += pb
			}
		}
	}
	return score / 3
}

// changedPixels counts pixels where any RGB channel moved more than threshold.
func changedPixels(a, b *image.NRGBA, threshold int) int {
	changed := 0
	for i := 0; i+3 < len(a.Pix) && i+3 < len(b.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			d := int(a.Pix[i+c]) - int(b.Pix[i+c])
			if d < 0 {
				d = -d
			}
			if d > threshold {
				changed++
				break
			}
		}
	}
	return changed
}

// DifferenceImage renders the per-channel absolute difference of two screenshots as PNG.
func (s *Service) DifferenceImage(a, b *schemas.Screenshot) (*schemas.Screenshot, error) {
	imgA, err := Decode(a)
	if err != nil {
		return nil, fmt.Errorf("first screenshot: %w", err)
	}
	imgB, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("second screenshot: %w", err)
	}
	na, nb := imaging.Clone(imgA), imaging.Clone(imgB)
	if na.Bounds().Size() != nb.Bounds().Size() {
		nb = imaging.Resize(nb, na.Bounds().Dx(), na.Bounds().Dy(), imaging.Lanczos)
	}

	diff := image.NewNRGBA(na.Bounds())
	for i := 0; i+3 < len(na.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			d := int(na.Pix[i+c]) - int(nb.Pix[i+c])
			if d < 0 {
				d = -d
			}
			diff.Pix[i+c] = uint8(d)
		}
		diff.Pix[i+3] = 0xff
	}
	return s.encode(diff, schemas.FormatPNG, s.opts.Quality, s.opts.MaxDimension)
}
