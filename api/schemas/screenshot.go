// api/schemas/screenshot.go
package schemas

import "time"

// ImageFormat is the encoding of a captured screenshot.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
)

// Size is a pixel size.
type Size struct {
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Screenshot is an encoded capture of the display or one of its regions.
// Data always holds a base64 data URI.
type Screenshot struct {
	Format     ImageFormat `json:"format"`
	Size       Size        `json:"size"`
	Data       string      `json:"data"`
	BytesMB    float64     `json:"bytes_mb"`
	CapturedAt time.Time   `json:"captured_at"`
	Region     *Region     `json:"region,omitempty"`
}

// RGB is a single pixel color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// CompareMethod selects the screenshot similarity metric.
type CompareMethod string

const (
	CompareMSE       CompareMethod = "mse"
	CompareHistogram CompareMethod = "histogram"
	ComparePixelDiff CompareMethod = "pixel_diff"
)

// Comparison is the outcome of comparing two screenshots.
type Comparison struct {
	Method        CompareMethod `json:"method"`
	Similarity    float64       `json:"similarity"`
	MSE           float64       `json:"mse,omitempty"`
	ChangedPixels int           `json:"changed_pixels,omitempty"`
	TotalPixels   int           `json:"total_pixels"`
	Resized       bool          `json:"resized,omitempty"`
}

// ChangeEvent is emitted by the change monitor when the screen moved past the threshold.
type ChangeEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	ChangedRatio  float64   `json:"changed_ratio"`
	ChangedPixels int       `json:"changed_pixels"`
}
